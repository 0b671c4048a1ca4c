package middleware

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/blogging-api/internal/envelope"
	"github.com/sakif/blogging-api/internal/ratelimit"
)

// RateLimit rejects requests with 429 once the client address has used up
// its quota in l. The address is r.RemoteAddr without the port, so chi's
// RealIP must run first when the server sits behind a proxy.
//
// A limiter error lets the request through and is logged.
func RateLimit(l ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Error("rate limiter unavailable",
					slog.String("client", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				envelope.WriteMessage(w, logger, http.StatusTooManyRequests, "Too many requests, please try again later.")
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
