// Package requesttime pins one "now" per request so every timestamp written
// while serving it (offer creation, expiry checks, audit events) agrees.
package requesttime

import (
	"net/http"
	"time"

	"medssi/pkg/requestcontext"
)

// Middleware captures the time at the start of the request. Read it with
// requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
