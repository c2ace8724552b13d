package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Throttle rejects inbound requests beyond r per second (burst b) with 429.
// This protects the process itself; the shared upstream window is enforced
// separately at the client.
func Throttle(r rate.Limit, b int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(r, b)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
