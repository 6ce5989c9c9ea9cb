package resilience

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// State é o estado do circuit breaker.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerOptions configura thresholds.
type BreakerOptions struct {
	FailureThreshold int
	Cooldown         time.Duration
}

func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Snapshot é uma cópia consistente do estado.
type Snapshot struct {
	Service             string    `json:"service"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// Breaker guarda o estado de um destino. Todas as transições passam pelo mutex,
// então chamadores concorrentes veem sempre um estado consistente.
type Breaker struct {
	service  string
	opts     BreakerOptions
	clock    clock.PassiveClock
	onChange func(service string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	// trial indica que a tentativa do HALF_OPEN está em voo.
	trial bool
}

func newBreaker(service string, opts BreakerOptions, clk clock.PassiveClock, onChange func(string, State, State)) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultBreakerOptions().FailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBreakerOptions().Cooldown
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Breaker{service: service, opts: opts, clock: clk, onChange: onChange}
}

// allow decide se a chamada pode seguir e em qual estado ela foi admitida.
func (b *Breaker) allow() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.clock.Since(b.openedAt)
		if elapsed < b.opts.Cooldown {
			return b.state, &OpenError{Service: b.service, RetryAfter: b.opts.Cooldown - elapsed}
		}
		b.transition(StateHalfOpen)
		b.trial = true
		return StateHalfOpen, nil
	case StateHalfOpen:
		if b.trial {
			return b.state, &OpenError{Service: b.service}
		}
		b.trial = true
		return StateHalfOpen, nil
	default:
		return StateClosed, nil
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trial = false
	if b.state != StateClosed {
		b.openedAt = time.Time{}
		b.transition(StateClosed)
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.failures >= b.opts.FailureThreshold {
			b.open()
		}
	}
}

// release devolve o trial sem registrar resultado (ex.: chamador cancelou).
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

func (b *Breaker) open() {
	b.openedAt = b.clock.Now()
	b.transition(StateOpen)
}

// transition exige b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(b.service, from, to)
	}
}

// Reset força CLOSED (operação administrativa).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	b.openedAt = time.Time{}
	b.transition(StateClosed)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Service:             b.service,
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}
