package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/auth"
	"github.com/markdave123-py/memora/internal/models"
)

type contextKey string

// identityKey carries the resolved models.Identity in the request context.
const identityKey contextKey = "identity"

// IdentityFrom extracts the resolved identity placed by Auth.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// WithIdentity is used by tests and the MCP layer to seed a request
// context with an already-resolved identity.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Auth resolves the per-request credential to an identity and attaches it
// to the request context. Browsers send a signed session token; assistants
// send the raw access credential. Both arrive as Bearer or X-API-Key and
// both end as the same (tenant, user) pair -- nothing downstream ever sees
// the credential itself.
func Auth(gate *auth.Gate, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				writeAuthError(w, apperr.New(apperr.Unauthorized, "missing credential"))
				return
			}

			if id, ok := identityFromJWT(credential, jwtSecret); ok {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}

			id, err := gate.Resolve(r.Context(), credential, claimedUserID(r))
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

func extractCredential(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	return strings.TrimPrefix(authz, "Bearer ")
}

func claimedUserID(r *http.Request) *int64 {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// identityFromJWT accepts a session token minted at login. Invalid tokens
// are not an error here; the credential is retried as a raw access key.
func identityFromJWT(token, secret string) (models.Identity, bool) {
	if secret == "" {
		return models.Identity{}, false
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return models.Identity{}, false
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return models.Identity{}, false
	}
	tenantID, ok := claims["tenant_id"].(string)
	if !ok {
		return models.Identity{}, false
	}
	return models.Identity{TenantID: tenantID, UserID: int64(userID)}, true
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if apperr.Is(err, apperr.Forbidden) {
		status = http.StatusForbidden
	}
	http.Error(w, http.StatusText(status), status)
}
