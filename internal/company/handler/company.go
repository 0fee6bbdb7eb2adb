package handler

import (
	"net/http"

	"github.com/attendly/attendly-backend/internal/company/service"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// CompanyHandler handles company provisioning and settings endpoints
type CompanyHandler struct {
	companies *service.CompanyService
	settings  *service.SettingsService
	logger    *logger.Logger
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(companies *service.CompanyService, settings *service.SettingsService, log *logger.Logger) *CompanyHandler {
	return &CompanyHandler{
		companies: companies,
		settings:  settings,
		logger:    log,
	}
}

// Provision handles POST /companies (platform credential)
func (h *CompanyHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req service.ProvisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.companies.Provision(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, resp)
}

// GetSettings handles GET /company/settings (admin)
func (h *CompanyHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	p := principal.MustFromContext(r.Context())

	settings, err := h.settings.Get(r.Context(), p.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /company/settings (admin)
func (h *CompanyHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	settings, err := h.settings.Update(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, settings)
}
