package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fastidp/fastidp-backend/api/responses"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
)

// InternalTokenHeader authenticates operator and automation callers.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken guards operator-only endpoints with a shared secret, read from
// X-Internal-Token or a bearer Authorization header. An empty configured
// token rejects every request.
func InternalToken(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "internal api disabled"))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(InternalTokenHeader))
			if provided == "" {
				raw := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
					provided = strings.TrimSpace(raw[7:])
				}
			}
			if provided == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
				return
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithField(ctx, "caller", "internal")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
