// Package auth authenticates sandbox callers with static bearer tokens, one
// per audience (issuer, verifier, wallet).
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/httputil"
	"medssi/pkg/requestcontext"
)

const (
	AudienceIssuer   = "issuer"
	AudienceVerifier = "verifier"
	AudienceWallet   = "wallet"
)

// Tokens maps an audience to its expected bearer token. An audience with an
// empty token accepts any request, which is how local sandboxes run.
type Tokens map[string]string

// RequireAudience admits requests whose bearer token matches one of the
// audiences. The first match is recorded with requestcontext.WithAudience.
func RequireAudience(tokens Tokens, logger *slog.Logger, audiences ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			presented, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			for _, aud := range audiences {
				expected, configured := tokens[aud]
				if !configured {
					continue
				}
				if expected == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1 {
					next.ServeHTTP(w, r.WithContext(requestcontext.WithAudience(ctx, aud)))
					return
				}
			}
			logger.WarnContext(ctx, "unauthorized access - bearer token rejected",
				"audiences", audiences,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid bearer token"))
		})
	}
}
