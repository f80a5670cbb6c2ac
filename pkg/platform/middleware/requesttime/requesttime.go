// Package requesttime captures one clock reading per HTTP request so expiry
// checks, stored timestamps and emitted events inside that request agree.
package requesttime

import (
	"net/http"
	"time"

	"proofdrop/pkg/requestcontext"
)

// Middleware pins time.Now() into the request context.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock lets tests drive the captured instant.
func MiddlewareWithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
