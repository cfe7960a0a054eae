package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/recycleops/recycleops/internal/auth"
	"github.com/recycleops/recycleops/internal/platform/httpx"
	"github.com/recycleops/recycleops/internal/shared"
)

// Guard is the single enforcement point between a request and a protected
// operation. Authenticate verifies the presented token and resolves the
// caller's permissions fresh from the store; RequireAny/RequireAll gate
// individual routes on the resolved set.
type Guard struct {
	Logger      *slog.Logger
	Tokens      *auth.TokenService
	Revocations *auth.RevocationStore
	Resolver    *Resolver
}

// Authenticate verifies the request's token and attaches the resolved
// identity to the context. Any token failure, whatever its internal reason,
// is answered with a uniform unauthenticated outcome so probing clients
// learn nothing about token validity.
func (g Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Tokens.Verify(auth.ExtractToken(r))
		if err != nil {
			g.warn(r, "token rejected", err)
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		if g.Revocations != nil {
			revoked, err := g.Revocations.IsRevoked(r.Context(), claims.TokenID)
			if err != nil {
				g.warn(r, "revocation lookup", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if revoked {
				g.warn(r, "token revoked", nil)
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
		}

		// Permissions are resolved from the store on every request rather
		// than trusted from the token, so a role edit takes effect on the
		// subject's next request without re-login.
		access, err := g.Resolver.Resolve(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				g.warn(r, "token subject missing", nil)
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			g.warn(r, "resolve permissions", err)
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}

		identity := &shared.Identity{
			UserID:      claims.UserID,
			Email:       claims.Email,
			Role:        access.RoleName,
			IsAdmin:     access.IsAdmin,
			Permissions: access.PermissionNames(),
			TokenID:     claims.TokenID,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAny ensures the current identity holds at least one of the required
// permissions.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return g.require(normalized, func(a Access) bool { return a.HasAny(normalized...) })
}

// RequireAll ensures the current identity holds every required permission.
func (g Guard) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return g.require(normalized, func(a Access) bool { return a.HasAll(normalized...) })
}

func (g Guard) require(normalized []string, allowed func(Access) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if allowed(NewAccess(identity.Role, identity.IsAdmin, identity.Permissions)) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func (g Guard) warn(r *http.Request, msg string, err error) {
	if g.Logger == nil {
		return
	}
	attrs := []any{slog.String("path", r.URL.Path)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	g.Logger.Warn(msg, attrs...)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
