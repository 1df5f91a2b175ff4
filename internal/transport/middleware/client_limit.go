// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"
)

// ClientRateLimit limits requests per client address to limitPerMinute. It
// guards the unauthenticated write endpoints of the read API.
func ClientRateLimit(limitPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return clientRateLimitWith(newClientLimiter(limitPerMinute, time.Now), logger)
}

func clientRateLimitWith(limiter *clientLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)

			v := limiter.take(client)
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(limiter.limit()))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(v.remaining))
			if !v.allowed {
				logger.Warn("request blocked by rate limit",
					"path", r.URL.Path,
					"client", client,
					"retry_after", v.retryAfter,
				)
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(v.retryAfter/time.Second)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
