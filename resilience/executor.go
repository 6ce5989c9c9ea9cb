package resilience

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Executor mantém um breaker por serviço e aplica a política de retry.
type Executor struct {
	policy  RetryPolicy
	breaker BreakerOptions
	clock   clock.PassiveClock
	log     logr.Logger
	metrics *Metrics
	sleep   func(context.Context, time.Duration) error

	mu       sync.Mutex
	breakers map[string]*Breaker
}

type Option func(*Executor)

func WithClock(c clock.PassiveClock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l logr.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSleep troca a espera entre tentativas (testes).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func NewExecutor(policy RetryPolicy, breaker BreakerOptions, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy,
		breaker:  breaker,
		clock:    clock.RealClock{},
		sleep:    sleepContext,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker devolve (criando se preciso) o breaker do serviço.
func (e *Executor) Breaker(service string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[service]
	if !ok {
		b = newBreaker(service, e.breaker, e.clock, e.onTransition)
		e.breakers[service] = b
	}
	return b
}

func (e *Executor) onTransition(service string, from, to State) {
	e.metrics.transition(service, from, to)
	e.log.Info("circuit breaker transition", "service", service, "from", from.String(), "to", to.String())
}

// Snapshots lista o estado dos breakers conhecidos, ordenado por serviço.
func (e *Executor) Snapshots() []Snapshot {
	e.mu.Lock()
	list := make([]*Breaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		list = append(list, b)
	}
	e.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.Service, b.Service) })
	return out
}

// Reset fecha o breaker do serviço. Retorna false se ele nunca foi usado.
func (e *Executor) Reset(service string) bool {
	e.mu.Lock()
	b, ok := e.breakers[service]
	e.mu.Unlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Do executa fn sob o breaker de service.
//
// Breaker OPEN: devolve *OpenError sem chamar fn. No HALF_OPEN só uma tentativa é feita.
// Se todas as tentativas falharem, devolve *RetryExhaustedError e conta uma falha no breaker.
// Cancelamento do ctx do chamador interrompe as tentativas e não conta como falha.
func (e *Executor) Do(ctx context.Context, service string, fn func(context.Context) error) error {
	b := e.Breaker(service)
	state, err := b.allow()
	if err != nil {
		e.metrics.attempt(service, "rejected")
		return err
	}

	attempts := e.policy.attempts()
	if state == StateHalfOpen {
		attempts = 1
	}

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			b.release()
			return err
		}

		last = fn(ctx)
		if last == nil {
			e.metrics.attempt(service, "success")
			b.onSuccess()
			return nil
		}
		e.metrics.attempt(service, "failure")

		if ctxErr := ctx.Err(); ctxErr != nil {
			b.release()
			return errors.Join(ctxErr, last)
		}
		if IsPermanent(last) {
			b.release()
			return last
		}

		e.log.V(1).Info("backend attempt failed", "service", service, "attempt", n, "of", attempts, "err", last.Error())
		if n < attempts {
			if err := e.sleep(ctx, e.policy.Backoff(n)); err != nil {
				b.release()
				return errors.Join(err, last)
			}
		}
	}

	b.onFailure()
	return &RetryExhaustedError{Service: service, Attempts: attempts, Last: last}
}
