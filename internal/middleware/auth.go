package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type clientKeyType struct{}

var clientIDKey = clientKeyType{}

// BearerToken rejects requests whose Authorization header does not carry
// token. An empty token disables the check. Callers may name themselves
// with X-Client-ID, which then keys rate limiting.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				authHeader := r.Header.Get("Authorization")
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					writeUnauthorized(w, "missing bearer token")
					return
				}
				if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(token)) != 1 {
					writeUnauthorized(w, "invalid token")
					return
				}
			}
			ctx := r.Context()
			if id := strings.TrimSpace(r.Header.Get("X-Client-ID")); id != "" {
				ctx = context.WithValue(ctx, clientIDKey, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + msg + `"}`))
}
