package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/attendly-backend/internal/attendance/service"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// AttendanceHandler handles the employee-facing attendance endpoints
type AttendanceHandler struct {
	admission  *service.AdmissionService
	pendings   *service.PendingService
	heartbeats *service.HeartbeatService
	logger     *logger.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(
	admission *service.AdmissionService,
	pendings *service.PendingService,
	heartbeats *service.HeartbeatService,
	log *logger.Logger,
) *AttendanceHandler {
	return &AttendanceHandler{
		admission:  admission,
		pendings:   pendings,
		heartbeats: heartbeats,
		logger:     log,
	}
}

// Routes returns the attendance routes. All of them sit behind the employee
// gatekeeper.
func (h *AttendanceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check-in", h.CheckIn)
	r.Post("/check-out", h.CheckOut)
	r.Get("/current", h.Current)
	r.Get("/logs", h.Logs)
	r.Post("/heartbeat", h.Heartbeat)
	r.Post("/auto-checkout/propose", h.ProposeAutoCheckout)
	r.Post("/auto-checkout/cancel", h.CancelAutoCheckout)
	return r
}

// CheckIn handles POST /attendance/check-in
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req service.CheckInRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	log, err := h.admission.CheckIn(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, log)
}

// CheckOut handles POST /attendance/check-out
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req service.CheckOutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	log, err := h.admission.CheckOut(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, log)
}

// Current handles GET /attendance/current
func (h *AttendanceHandler) Current(w http.ResponseWriter, r *http.Request) {
	log, err := h.admission.Current(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, log)
}

// Logs handles GET /attendance/logs?from=...&to=...
func (h *AttendanceHandler) Logs(w http.ResponseWriter, r *http.Request) {
	p := principal.MustFromContext(r.Context())

	from, to, err := parseRange(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	logs, err := h.admission.History(r.Context(), p.SubjectID, from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}

// Heartbeat handles POST /attendance/heartbeat
func (h *AttendanceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req service.ReportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	heartbeat, err := h.heartbeats.Report(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, heartbeat)
}

// ProposeAutoCheckout handles POST /attendance/auto-checkout/propose
func (h *AttendanceHandler) ProposeAutoCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.ProposeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	pending, err := h.pendings.Propose(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, pending)
}

// CancelAutoCheckout handles POST /attendance/auto-checkout/cancel
func (h *AttendanceHandler) CancelAutoCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.CancelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	pending, err := h.pendings.Cancel(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pending)
}

// parseRange reads the from/to query window, defaulting to the last 30 days.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.BadRequest("from must be an RFC3339 timestamp")
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.BadRequest("to must be an RFC3339 timestamp")
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.BadRequest("to must be after from")
	}

	return from, to, nil
}
