package auth

import (
	"log/slog"
	"math"
	"net"
	"net/http"

	"github.com/Steve-IX/Ezra/pkg/api"
)

// RateLimitMiddleware limits each caller, keyed by token subject when
// authenticated and by remote IP otherwise. Limiter errors fail open.
func RateLimitMiddleware(store api.LimiterStore) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "ratelimit")
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if p, err := GetPrincipal(r.Context()); err == nil {
				key = "sub:" + p.Subject
			}

			allowed, retryAfter, err := store.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				api.WriteTooManyRequests(w, max(1, int(math.Ceil(retryAfter.Seconds()))))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
