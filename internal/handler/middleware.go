package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/token"
	"github.com/alam-gir/wafipix-backend/internal/web"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the per-request security context. It is an explicit value
// carried in the request context, never a global.
type Identity struct {
	UserID string
	Email  string
	Role   model.Role
}

// IdentityFrom extracts the authenticated identity, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// AuthGate verifies bearer credentials on inbound requests.
//
// A missing credential is not an error; the request proceeds
// unauthenticated and route guards decide what that means. A present
// but invalid credential is terminal: the gate responds with the
// uniform envelope itself and never reaches the handlers.
//
// The identity comes from the verified claims alone; the gate does not
// re-resolve the principal against the store. Deactivating an account
// therefore takes effect when its access token expires, a window
// bounded by the access TTL. Refresh re-checks the store.
type AuthGate struct {
	tokens         *token.Manager
	bypassPrefixes []string
}

func NewAuthGate(tokens *token.Manager, bypassPrefixes []string) *AuthGate {
	return &AuthGate{
		tokens:         tokens,
		bypassPrefixes: bypassPrefixes,
	}
}

func (g *AuthGate) bypassed(path string) bool {
	for _, prefix := range g.bypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractCredential prefers the Authorization header, then the access
// cookie.
func extractCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if c, err := r.Cookie(web.AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypassed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Authenticate at most once per request
		if _, already := IdentityFrom(r.Context()); already {
			next.ServeHTTP(w, r)
			return
		}

		credential := extractCredential(r)
		if credential == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.ParseOfType(credential, token.TypeAccess)
		if err != nil {
			respondError(w, r, apperr.Unauthenticated("invalid or expired credential"))
			return
		}

		id := &Identity{
			UserID: claims.UserID,
			Email:  claims.Subject,
			Role:   model.ParseRole(claims.Role),
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			respondError(w, r, apperr.Unauthenticated("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route on an explicit role set. Pure allow/deny on
// the resolved identity.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				respondError(w, r, apperr.Unauthenticated("authentication required"))
				return
			}
			if !allowed[id.Role] {
				respondError(w, r, apperr.Forbidden("insufficient role for this resource"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
