// Package middleware provides the HTTP middleware stack: panic recovery,
// permissive CORS, and inbound request throttling.
package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Recovery converts handler panics into JSON 500 responses.
func Recovery(next http.Handler) http.Handler {
	return RecoveryWithLogger(zap.NewNop())(next)
}

// RecoveryWithLogger is Recovery with panic logging.
func RecoveryWithLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("Handler panic",
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{
						"error": map[string]string{
							"code":    "INTERNAL",
							"message": "internal server error",
						},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
