package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/recycleops/recycleops/internal/observability"
	"github.com/recycleops/recycleops/internal/platform/httpx"
	"github.com/recycleops/recycleops/internal/shared"
)

// CookieName is the credential cookie presented on authenticated requests.
const CookieName = "token"

// ExtractToken pulls the session token from the request's credential channel:
// the token cookie first, then an Authorization bearer header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	tokens        *TokenService
	revocations   *RevocationStore
	secureCookies bool
	validator     *validator.Validate
	metrics       *observability.Metrics
}

// NewHandler constructs a Handler instance. revocations may be nil when no
// denylist store is configured.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenService, revocations *RevocationStore, secureCookies bool, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		tokens:        tokens,
		revocations:   revocations,
		secureCookies: secureCookies,
		validator:     validator.New(),
		metrics:       metrics,
	}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountProtected registers routes that require an authenticated identity.
func (h *Handler) MountProtected(r chi.Router) {
	r.Get("/user-permissions", h.handleUserPermissions)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Email & Password required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Email & Password required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin("failure")
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid Email or Password")
		return
	}

	token, claims, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if err := h.service.RegisterSession(r.Context(), claims.TokenID, user.ID, claims.ExpiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.metrics.RecordLogin("success")

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt,
		MaxAge:   int(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	httpx.Success(w, http.StatusOK, "Login successful", map[string]any{
		"token": token,
		"user": userPayload{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.RoleName,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw := ExtractToken(r); raw != "" {
		if claims, err := h.tokens.Verify(raw); err == nil {
			if h.revocations != nil {
				if err := h.revocations.Revoke(r.Context(), claims.TokenID, claims.ExpiresAt); err != nil {
					h.logger.Warn("revoke token", slog.Any("error", err))
				}
			}
			if err := h.service.RemoveSession(r.Context(), claims.TokenID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	httpx.Success(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	// The account is re-checked on every call so a deactivation cuts off an
	// otherwise valid token immediately.
	user, err := h.service.User(r.Context(), identity.UserID)
	if err != nil || !user.IsActive {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.Success(w, http.StatusOK, "", map[string]any{
		"userId":      identity.UserID,
		"name":        user.Name,
		"email":       user.Email,
		"role":        identity.Role,
		"permissions": identity.Permissions,
		"isAdmin":     identity.IsAdmin,
	})
}
