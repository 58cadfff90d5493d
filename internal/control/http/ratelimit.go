package http

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// rateLimitMiddleware bounds the admin/observability surface to rps
// requests per second per client IP using a sliding-window counter,
// grounded on the teacher's internal/api/middleware.RateLimit (same
// httprate.Limit + httprate.WithKeyFuncs(httprate.KeyByIP) shape,
// trimmed to this package's single always-on admin router instead of a
// per-route-configurable whitelist).
func rateLimitMiddleware(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(
		rps,
		time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}
