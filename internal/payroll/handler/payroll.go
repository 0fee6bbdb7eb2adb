package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/attendly-backend/internal/payroll/service"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
)

// PayrollHandler handles the admin payroll endpoints
type PayrollHandler struct {
	projector *service.ProjectorService
	logger    *logger.Logger
}

// NewPayrollHandler creates a new payroll handler
func NewPayrollHandler(projector *service.ProjectorService, log *logger.Logger) *PayrollHandler {
	return &PayrollHandler{
		projector: projector,
		logger:    log,
	}
}

// Routes returns the payroll routes
func (h *PayrollHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/preview", h.Preview)
	return r
}

// Preview handles POST /payroll/preview
func (h *PayrollHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req service.PreviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	projection, err := h.projector.Preview(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, projection)
}
