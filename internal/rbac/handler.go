package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/recycleops/recycleops/internal/platform/httpx"
	"github.com/recycleops/recycleops/internal/shared"
)

// Handler manages role, permission and matrix endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers role, permission and matrix routes. The caller is
// expected to have already applied Guard.Authenticate to the group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.RequireAny(shared.PermRolesView)).Get("/", h.listRoles)
		r.With(h.guard.RequireAny(shared.PermRolesCreate)).Post("/", h.createRole)
		r.With(h.guard.RequireAny(shared.PermRolesView)).Get("/{id}", h.getRole)
		r.With(h.guard.RequireAny(shared.PermRolesEdit)).Put("/{id}", h.updateRole)
		r.With(h.guard.RequireAny(shared.PermRolesDelete)).Delete("/{id}", h.deleteRole)
		r.With(h.guard.RequireAny(shared.PermRolesView)).Get("/{id}/permissions", h.getRolePermissions)
		r.With(h.guard.RequireAny(shared.PermRolesEdit)).Put("/{id}/permissions", h.setRolePermissions)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.guard.RequireAny(shared.PermPermissionsView)).Get("/", h.listPermissions)
		r.With(h.guard.RequireAny(shared.PermPermissionsView)).Get("/{id}", h.getPermission)
		r.With(h.guard.RequireAny(shared.PermPermissionsCreate)).Post("/", h.createPermission)
		r.With(h.guard.RequireAny(shared.PermPermissionsEdit)).Put("/{id}", h.updatePermission)
		r.With(h.guard.RequireAny(shared.PermPermissionsDelete)).Delete("/{id}", h.deletePermission)
	})
	r.Route("/role-permissions", func(r chi.Router) {
		r.With(h.guard.RequireAll(shared.PermRolesView, shared.PermPermissionsView)).Get("/", h.loadMatrix)
		r.With(h.guard.RequireAny(shared.PermRolesEdit)).Put("/", h.commitMatrix)
	})
}

type rolePayload struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type permissionPayload struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Module      string    `json:"module"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRolePayload(role Role) rolePayload {
	return rolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func toPermissionPayload(perm Permission) permissionPayload {
	return permissionPayload{
		ID:          perm.ID,
		Name:        perm.Name,
		Description: perm.Description,
		Module:      perm.Module,
		IsActive:    perm.IsActive,
		CreatedAt:   perm.CreatedAt,
		UpdatedAt:   perm.UpdatedAt,
	}
}

func parseID(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]rolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, toRolePayload(role))
	}
	httpx.Success(w, http.StatusOK, "", payload)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", toRolePayload(role))
}

type roleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive"`
}

func (r roleRequest) active() bool {
	if r.IsActive == nil {
		return true
	}
	return *r.IsActive
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, req.active())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "Role created", toRolePayload(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description, req.active())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Role updated", toRolePayload(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Role deleted successfully", nil)
}

func (h *Handler) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	ids, err := h.service.RolePermissionIDs(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.Success(w, http.StatusOK, "", map[string]any{"roleId": id, "permissions": ids})
}

type rolePermissionsRequest struct {
	Permissions []int64 `json:"permissions"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Permissions updated successfully", nil)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]permissionPayload, 0, len(perms))
	for _, perm := range perms {
		payload = append(payload, toPermissionPayload(perm))
	}
	httpx.Success(w, http.StatusOK, "", payload)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", toPermissionPayload(perm))
}

type permissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Module      string `json:"module"`
	IsActive    *bool  `json:"isActive"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Description, req.Module)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "Permission created successfully", toPermissionPayload(perm))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, req.Name, req.Description, req.Module, active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Permission updated successfully", toPermissionPayload(perm))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Permission deleted successfully", nil)
}

type matrixPayload struct {
	Roles       []rolePayload       `json:"roles"`
	Permissions []permissionPayload `json:"permissions"`
	Grants      map[string][]int64  `json:"grants"`
}

func (h *Handler) loadMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.service.LoadMatrix(r.Context())
	if err != nil {
		h.logger.Error("load matrix", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := matrixPayload{
		Roles:       make([]rolePayload, 0, len(matrix.Roles)),
		Permissions: make([]permissionPayload, 0, len(matrix.Permissions)),
		Grants:      make(map[string][]int64, len(matrix.Grants)),
	}
	for _, role := range matrix.Roles {
		payload.Roles = append(payload.Roles, toRolePayload(role))
	}
	for _, perm := range matrix.Permissions {
		payload.Permissions = append(payload.Permissions, toPermissionPayload(perm))
	}
	for roleID, permIDs := range matrix.Grants {
		payload.Grants[strconv.FormatInt(roleID, 10)] = permIDs
	}
	httpx.Success(w, http.StatusOK, "", payload)
}

type matrixCommitRequest struct {
	Grants map[string][]int64 `json:"grants"`
}

type roleResultPayload struct {
	RoleID int64  `json:"roleId"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) commitMatrix(w http.ResponseWriter, r *http.Request) {
	var req matrixCommitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Grants == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	grants := make(map[int64][]int64, len(req.Grants))
	for rawID, permIDs := range req.Grants {
		roleID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || roleID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id in grants")
			return
		}
		grants[roleID] = permIDs
	}

	results := h.service.CommitMatrix(r.Context(), grants)
	payload := make([]roleResultPayload, 0, len(results))
	failed := 0
	for _, result := range results {
		entry := roleResultPayload{RoleID: result.RoleID, OK: result.Err == nil}
		if result.Err != nil {
			failed++
			entry.Error = result.Err.Error()
			h.logger.Warn("matrix commit role failed", slog.Int64("role_id", result.RoleID), slog.Any("error", result.Err))
		}
		payload = append(payload, entry)
	}
	message := "Permissions updated successfully"
	if failed > 0 {
		message = "Some roles failed to update"
	}
	httpx.Success(w, http.StatusOK, message, map[string]any{"results": payload})
}
