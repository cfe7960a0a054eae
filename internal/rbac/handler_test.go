package rbac

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/recycleops/recycleops/internal/auth"
	_ "github.com/recycleops/recycleops/testing"
)

type handlerFixture struct {
	repo   *memoryRepo
	router chi.Router
	token  string
}

// newHandlerFixture wires the full route tree behind the guard and returns an
// admin token so individual tests can focus on endpoint behavior.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := newMemoryRepo()
	repo.addUser(1, nil, true)

	tokens := auth.NewTokenService("handler-secret", time.Hour)
	guard := Guard{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tokens:   tokens,
		Resolver: NewResolver(repo),
	}
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo), guard)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		handler.MountRoutes(r)
	})

	raw, _, err := tokens.Issue(&auth.User{ID: 1, Email: "root@recycleops.local", IsAdmin: true})
	require.NoError(t, err)
	return &handlerFixture{repo: repo, router: r, token: raw}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: f.token})
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func decodeEnvelope(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &envelope))
	return envelope
}

func TestRolesCRUD(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, http.MethodPost, "/roles", `{"name":"dispatcher","description":"routes trucks"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	envelope := decodeEnvelope(t, res)
	created := envelope["data"].(map[string]any)
	roleID := int64(created["id"].(float64))
	require.Equal(t, "dispatcher", created["name"])

	res = f.do(t, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "dispatcher")

	path := "/roles/" + strconv.FormatInt(roleID, 10)
	res = f.do(t, http.MethodPut, path, `{"name":"dispatch lead","isActive":false}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "dispatch lead")
	require.Contains(t, res.Body.String(), `"isActive":false`)

	res = f.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestCreateRoleDuplicateReturnsBadRequest(t *testing.T) {
	f := newHandlerFixture(t)
	f.repo.addRole("staff")

	res := f.do(t, http.MethodPost, "/roles", `{"name":"staff"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "already exists")
}

func TestRoleInvalidID(t *testing.T) {
	f := newHandlerFixture(t)

	for _, path := range []string{"/roles/abc", "/roles/0", "/roles/-3"} {
		res := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusBadRequest, res.Code)
	}
}

func TestDeleteAssignedRoleConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	role := f.repo.addRole("staff")
	f.repo.addUser(2, &role.ID, false)

	res := f.do(t, http.MethodDelete, "/roles/"+strconv.FormatInt(role.ID, 10), "")
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestPermissionsCRUD(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, http.MethodPost, "/permissions", `{"name":"Tickets.View","description":"View tickets","module":"tickets"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	envelope := decodeEnvelope(t, res)
	created := envelope["data"].(map[string]any)
	require.Equal(t, "tickets.view", created["name"])
	permID := int64(created["id"].(float64))

	res = f.do(t, http.MethodPost, "/permissions", `{"name":"tickets.view","description":"dup","module":"tickets"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/permissions", `{"name":"tickets.edit","description":"Edit tickets"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	path := "/permissions/" + strconv.FormatInt(permID, 10)
	res = f.do(t, http.MethodPut, path, `{"name":"tickets.view","description":"View all tickets","module":"tickets"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, res.Code)
}

func TestSetRolePermissionsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	role := f.repo.addRole("staff")
	perm := f.repo.addPermission("tickets.view", "tickets")
	path := "/roles/" + strconv.FormatInt(role.ID, 10) + "/permissions"

	res := f.do(t, http.MethodPut, path, `{"permissions":[`+strconv.FormatInt(perm.ID, 10)+`]}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, []int64{perm.ID}, f.repo.grants[role.ID])

	res = f.do(t, http.MethodPut, path, `{"permissions":[9999]}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "unknown permission")
}

func TestMatrixRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)
	admin := f.repo.addRole("admin")
	staff := f.repo.addRole("staff")
	view := f.repo.addPermission("tickets.view", "tickets")
	create := f.repo.addPermission("tickets.create", "tickets")

	body := `{"grants":{"` + strconv.FormatInt(admin.ID, 10) + `":[` +
		strconv.FormatInt(view.ID, 10) + `,` + strconv.FormatInt(create.ID, 10) + `],"` +
		strconv.FormatInt(staff.ID, 10) + `":[` + strconv.FormatInt(view.ID, 10) + `]}}`
	res := f.do(t, http.MethodPut, "/role-permissions", body)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Permissions updated successfully")

	res = f.do(t, http.MethodGet, "/role-permissions", "")
	require.Equal(t, http.StatusOK, res.Code)
	envelope := decodeEnvelope(t, res)
	data := envelope["data"].(map[string]any)
	grants := data["grants"].(map[string]any)
	require.Len(t, grants[strconv.FormatInt(admin.ID, 10)].([]any), 2)
	require.Len(t, grants[strconv.FormatInt(staff.ID, 10)].([]any), 1)
}

func TestMatrixCommitReportsPerRoleFailures(t *testing.T) {
	f := newHandlerFixture(t)
	good := f.repo.addRole("admin")
	bad := f.repo.addRole("staff")
	perm := f.repo.addPermission("tickets.view", "tickets")
	f.repo.replaceErr[bad.ID] = errors.New("replace failed")

	body := `{"grants":{"` + strconv.FormatInt(good.ID, 10) + `":[` + strconv.FormatInt(perm.ID, 10) + `],"` +
		strconv.FormatInt(bad.ID, 10) + `":[` + strconv.FormatInt(perm.ID, 10) + `]}}`
	res := f.do(t, http.MethodPut, "/role-permissions", body)

	// The commit as a whole still answers 200; failures are itemized.
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "Some roles failed to update")

	envelope := decodeEnvelope(t, res)
	results := envelope["data"].(map[string]any)["results"].([]any)
	require.Len(t, results, 2)
	byRole := make(map[float64]map[string]any, 2)
	for _, entry := range results {
		m := entry.(map[string]any)
		byRole[m["roleId"].(float64)] = m
	}
	require.Equal(t, true, byRole[float64(good.ID)]["ok"])
	require.Equal(t, false, byRole[float64(bad.ID)]["ok"])
	require.NotEmpty(t, byRole[float64(bad.ID)]["error"])

	require.Equal(t, []int64{perm.ID}, f.repo.grants[good.ID])
}

func TestMatrixCommitRejectsBadRoleKey(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, http.MethodPut, "/role-permissions", `{"grants":{"abc":[1]}}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPut, "/role-permissions", `{}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetPermissionByID(t *testing.T) {
	f := newHandlerFixture(t)
	perm := f.repo.addPermission("tickets.view", "tickets")

	res := f.do(t, http.MethodGet, "/permissions/"+strconv.FormatInt(perm.ID, 10), "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "tickets.view")

	res = f.do(t, http.MethodGet, "/permissions/9999", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetRolePermissions(t *testing.T) {
	f := newHandlerFixture(t)
	role := f.repo.addRole("staff")
	perm := f.repo.addPermission("tickets.view", "tickets")
	f.repo.grants[role.ID] = []int64{perm.ID}

	res := f.do(t, http.MethodGet, "/roles/"+strconv.FormatInt(role.ID, 10)+"/permissions", "")
	require.Equal(t, http.StatusOK, res.Code)
	envelope := decodeEnvelope(t, res)
	data := envelope["data"].(map[string]any)
	require.Len(t, data["permissions"].([]any), 1)

	res = f.do(t, http.MethodGet, "/roles/9999/permissions", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}
