package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/httputil"
)

// AdminTokenHeader carries the shared secret guarding the audit API.
const AdminTokenHeader = "X-Admin-Token"

// TokenVerifier checks a presented admin token. secrets.HashedToken implements it.
type TokenVerifier interface {
	Verify(token string) error
}

// RequireAdminToken rejects requests whose admin token does not match expectedToken.
// An empty expectedToken rejects every request.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(expectedToken)
	return requireToken(func(token string) bool {
		return len(expected) > 0 && subtle.ConstantTimeCompare([]byte(token), expected) == 1
	}, logger)
}

// RequireAdminTokenVerifier delegates the check to v, typically backed by a
// bcrypt hash of the token.
func RequireAdminTokenVerifier(v TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireToken(func(token string) bool {
		return v.Verify(token) == nil
	}, logger)
}

func requireToken(valid func(token string) bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !valid(r.Header.Get(AdminTokenHeader)) {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
