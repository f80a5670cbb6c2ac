// Package caller authenticates the account behind each request. The bearer
// token's subject becomes the caller every service call acts on behalf of.
package caller

import (
	"log/slog"
	"net/http"
	"strings"

	"proofdrop/pkg/domain"
	"proofdrop/pkg/requestcontext"
)

// Validator resolves a bearer token to an account.
type Validator interface {
	ValidateCaller(token string) (domain.Address, error)
}

func RequireCaller(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing bearer token")
				return
			}

			account, err := validator.ValidateCaller(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, account)))
		})
	}
}

// RequireAccount admits only the given account, for routes that a single
// configured party may call (the owner on /admin). It must run after
// RequireCaller.
func RequireAccount(expected domain.Address, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			account, ok := requestcontext.Caller(ctx)
			if !ok || account != expected {
				logger.WarnContext(ctx, "forbidden caller",
					"caller", account.Hex(),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"caller not permitted","retryable":false}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `","retryable":false}`))
}
