package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/attendly-backend/internal/attendance/service"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
)

// InternalHandler exposes operational endpoints for the scheduler and ops
// tooling. These routes sit behind the system credential, not tenant auth.
type InternalHandler struct {
	reconciler *service.Reconciler
	logger     *logger.Logger
}

// NewInternalHandler creates a new internal handler
func NewInternalHandler(reconciler *service.Reconciler, log *logger.Logger) *InternalHandler {
	return &InternalHandler{
		reconciler: reconciler,
		logger:     log,
	}
}

// Routes returns the internal routes
func (h *InternalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/reconciler/run", h.RunReconciler)
	return r
}

// RunReconciler handles POST /internal/reconciler/run. It triggers one
// reconciliation pass synchronously and reports what it did, the same pass
// the ticker runs every minute.
func (h *InternalHandler) RunReconciler(w http.ResponseWriter, r *http.Request) {
	stats := h.reconciler.RunOnce(r.Context())
	httputil.JSON(w, http.StatusOK, stats)
}
