package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/attendly-backend/internal/auth/service"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
)

// AuthHandler handles employee authentication endpoints
type AuthHandler struct {
	service *service.AuthService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  log,
	}
}

// Routes returns the auth routes
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/employee/login", h.LoginEmployee)
	r.Post("/employee/logout", h.LogoutEmployee)
	return r
}

// LoginEmployee handles POST /auth/employee/login
func (h *AuthHandler) LoginEmployee(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.service.LoginEmployee(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, resp)
}

// LogoutEmployee handles POST /auth/employee/logout. Always succeeds; an
// already dead token is a no-op.
func (h *AuthHandler) LogoutEmployee(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if err := h.service.Logout(r.Context(), parts[1]); err != nil {
			h.logger.Warn().Err(err).Msg("logout failed")
		}
	}

	httputil.NoContent(w)
}
