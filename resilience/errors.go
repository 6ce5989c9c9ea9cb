package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen permite errors.Is(err, ErrCircuitOpen) sem conhecer o serviço.
var ErrCircuitOpen = errors.New("circuit breaker open")

// OpenError é devolvido sem nenhuma chamada de rede.
type OpenError struct {
	Service string
	// RetryAfter é quanto falta para o cooldown terminar (0 se há um trial em andamento).
	RetryAfter time.Duration
}

func (e *OpenError) Error() string { return "circuit breaker open for " + e.Service }

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// RetryExhaustedError indica que todas as tentativas falharam.
type RetryExhaustedError struct {
	Service  string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempt(s) failed: %v", e.Service, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marca um erro local que não deve ser repetido nem contar contra o breaker
// (ex.: falha ao serializar o corpo).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
