package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"guard-gateway/middleware/ratelimit/domain"
)

// helpers dos headers X-RateLimit-* e Retry-After.

func formatInt(v int) string { return strconv.Itoa(v) }

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// RetryAfterSeconds arredonda para cima: 0.2s vira 1, nunca 0.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// WriteHeaders escreve os headers X-RateLimit-* (e Retry-After quando negado).
func WriteHeaders(h http.Header, dec domain.Decision) {
	if dec.Limit > 0 {
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(max(dec.Remaining, 0)))
		if !dec.ResetAt.IsZero() {
			h.Set("X-RateLimit-Reset", formatUnix(dec.ResetAt))
		}
	}
	if !dec.Allowed {
		h.Set("Retry-After", formatInt(RetryAfterSeconds(dec.RetryAfter)))
	}
}
