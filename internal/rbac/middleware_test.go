package rbac

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/recycleops/recycleops/internal/auth"
	"github.com/recycleops/recycleops/internal/shared"
	_ "github.com/recycleops/recycleops/testing"
)

const guardSecret = "guard-secret"

type guardFixture struct {
	repo        *memoryRepo
	tokens      *auth.TokenService
	revocations *auth.RevocationStore
	router      chi.Router
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	repo := newMemoryRepo()
	tokens := auth.NewTokenService(guardSecret, time.Hour)
	mr := miniredis.RunT(t)
	revocations := auth.NewRevocationStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	guard := Guard{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tokens:      tokens,
		Revocations: revocations,
		Resolver:    NewResolver(repo),
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.With(guard.RequireAny(shared.PermRolesView)).Get("/any", okHandler)
		r.With(guard.RequireAll(shared.PermRolesView, shared.PermPermissionsView)).Get("/all", okHandler)
	})
	return &guardFixture{repo: repo, tokens: tokens, revocations: revocations, router: r}
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (f *guardFixture) request(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func (f *guardFixture) issueFor(t *testing.T, userID int64) string {
	t.Helper()
	raw, _, err := f.tokens.Issue(&auth.User{ID: userID, Email: "user@recycleops.local"})
	require.NoError(t, err)
	return raw
}

func expiredToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(1, 10),
		ID:        "expired-token",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(guardSecret))
	require.NoError(t, err)
	return raw
}

func TestGuardRejectsMissingToken(t *testing.T) {
	f := newGuardFixture(t)
	res := f.request(t, "/any", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGuardRejectsMalformedToken(t *testing.T) {
	f := newGuardFixture(t)
	res := f.request(t, "/any", "garbage.token.value")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGuardRejectsExpiredToken(t *testing.T) {
	f := newGuardFixture(t)
	res := f.request(t, "/any", expiredToken(t))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGuardRejectsRevokedToken(t *testing.T) {
	f := newGuardFixture(t)
	role := f.repo.addRole("viewer")
	f.repo.addUser(1, &role.ID, false)

	raw, claims, err := f.tokens.Issue(&auth.User{ID: 1, Email: "user@recycleops.local"})
	require.NoError(t, err)
	require.NoError(t, f.revocations.Revoke(context.Background(), claims.TokenID, claims.ExpiresAt))

	res := f.request(t, "/any", raw)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGuardRejectsUnknownUser(t *testing.T) {
	f := newGuardFixture(t)
	// Valid signature, but the account is gone.
	res := f.request(t, "/any", f.issueFor(t, 404))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGuardForbidsInsufficientPermissions(t *testing.T) {
	f := newGuardFixture(t)
	role := f.repo.addRole("viewer")
	f.repo.addUser(1, &role.ID, false)

	res := f.request(t, "/any", f.issueFor(t, 1))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestGuardAllowsGrantedPermission(t *testing.T) {
	f := newGuardFixture(t)
	role := f.repo.addRole("viewer")
	perm := f.repo.addPermission(shared.PermRolesView, "roles")
	f.repo.grants[role.ID] = []int64{perm.ID}
	f.repo.addUser(1, &role.ID, false)

	res := f.request(t, "/any", f.issueFor(t, 1))
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestGuardRequireAllNeedsEveryPermission(t *testing.T) {
	f := newGuardFixture(t)
	role := f.repo.addRole("viewer")
	rolesView := f.repo.addPermission(shared.PermRolesView, "roles")
	f.repo.grants[role.ID] = []int64{rolesView.ID}
	f.repo.addUser(1, &role.ID, false)
	token := f.issueFor(t, 1)

	res := f.request(t, "/all", token)
	require.Equal(t, http.StatusForbidden, res.Code)

	permsView := f.repo.addPermission(shared.PermPermissionsView, "permissions")
	f.repo.grants[role.ID] = []int64{rolesView.ID, permsView.ID}

	res = f.request(t, "/all", token)
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestGuardAdminBypassesChecks(t *testing.T) {
	f := newGuardFixture(t)
	f.repo.addUser(1, nil, true)

	raw, _, err := f.tokens.Issue(&auth.User{ID: 1, Email: "root@recycleops.local", IsAdmin: true})
	require.NoError(t, err)

	for _, path := range []string{"/any", "/all"} {
		res := f.request(t, path, raw)
		require.Equal(t, http.StatusNoContent, res.Code)
	}
}

func TestGuardSeesRoleEditsWithoutRelogin(t *testing.T) {
	f := newGuardFixture(t)
	role := f.repo.addRole("viewer")
	f.repo.addUser(1, &role.ID, false)
	token := f.issueFor(t, 1)

	res := f.request(t, "/any", token)
	require.Equal(t, http.StatusForbidden, res.Code)

	// Granting the permission takes effect on the very next request with the
	// same token; permissions are resolved fresh each time.
	perm := f.repo.addPermission(shared.PermRolesView, "roles")
	f.repo.grants[role.ID] = []int64{perm.ID}

	res = f.request(t, "/any", token)
	require.Equal(t, http.StatusNoContent, res.Code)

	// And a revocation is honored just as quickly.
	f.repo.grants[role.ID] = nil
	res = f.request(t, "/any", token)
	require.Equal(t, http.StatusForbidden, res.Code)
}
