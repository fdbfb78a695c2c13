// Package admin guards operator-only endpoints (onboarding, activity ingestion)
// behind the X-Admin-Token header.
package admin

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"gigsafe/pkg/requestcontext"
)

// HashToken hashes the configured admin token once at startup so the
// plaintext never stays in memory longer than configuration loading.
func HashToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match tokenHash.
func RequireAdminToken(tokenHash []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" || bcrypt.CompareHashAndPassword(tokenHash, []byte(token)) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}
			if requestcontext.Requester(r.Context()) == "" {
				r = r.WithContext(requestcontext.WithRequester(r.Context(), "admin"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
