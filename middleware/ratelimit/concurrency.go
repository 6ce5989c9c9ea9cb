package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"guard-gateway/middleware/ratelimit/application"
	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max <= 0 desliga o limite.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// InFlight, se informado, recebe o número de vagas ocupadas a cada mudança (ex: gauge).
	InFlight func(n int)
}

// ConcurrencyMiddleware segura uma vaga por requisição enquanto o handler roda.
// Sem vaga no prazo responde CONCURRENCY_LIMIT; se o cliente desistir antes, não escreve nada.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewSlotPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}
	report := func() {
		if opts.InFlight != nil {
			opts.InFlight(svc.InFlight())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if errors.Is(err, domain.ErrSaturated) {
				w.Header().Set("X-Concurrency-Limit", strconv.Itoa(svc.Capacity()))
				writeReject(w, opts.RejectStatus, "CONCURRENCY_LIMIT", "too many requests in flight", 0)
				return
			}
			if err != nil {
				return
			}
			report()
			defer func() {
				release()
				report()
			}()

			next.ServeHTTP(w, r)
		})
	}
}
