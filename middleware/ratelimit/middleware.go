package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"

	"guard-gateway/middleware/ratelimit/domain"
)

// Checker é o que o middleware precisa da camada application.
type Checker interface {
	Check(ctx context.Context, req domain.Request) domain.Decision
}

type Options struct {
	Checker             Checker
	Identity            IdentityFunc
	UserHeader          string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	// ExemptPaths nunca são limitadas (ex: /health, /metrics).
	ExemptPaths []string
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.Identity == nil {
		opts.Identity = DefaultIdentityFunc(opts.UserHeader, opts.TrustXForwardedFor)
	}
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if opts.Checker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			id := opts.Identity(r)
			dec := opts.Checker.Check(r.Context(), domain.Request{
				Identity: id.Key,
				UserID:   id.UserID,
				IP:       id.IP,
				Method:   r.Method,
				Path:     RoutePath(r),
			})

			if opts.AddRateLimitHeaders || !dec.Allowed {
				WriteHeaders(w.Header(), dec)
			}
			if !dec.Allowed {
				writeReject(w, opts.RejectStatus, "RATE_LIMIT_EXCEEDED", "rate limit exceeded", RetryAfterSeconds(dec.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type rejectBody struct {
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeReject(w http.ResponseWriter, status int, code, msg string, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejectBody{ErrorCode: code, Message: msg, RetryAfter: retryAfter})
}
