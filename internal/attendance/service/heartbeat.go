package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// HeartbeatFreshness is how recent a heartbeat must be to count as a live
// signal. The reconciler's final gate uses the same window.
const HeartbeatFreshness = 2 * time.Minute

// HeartbeatService ingests periodic location snapshots from clients with an
// open session. Each report overwrites the previous one; the table holds
// state, not history.
type HeartbeatService struct {
	ledger     *repository.LedgerRepository
	heartbeats *repository.HeartbeatRepository
	logger     *logger.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewHeartbeatService creates a new heartbeat service
func NewHeartbeatService(ledger *repository.LedgerRepository, heartbeats *repository.HeartbeatRepository, log *logger.Logger) *HeartbeatService {
	return &HeartbeatService{
		ledger:     ledger,
		heartbeats: heartbeats,
		logger:     log,
		now:        time.Now,
	}
}

// ReportRequest is one location snapshot from the client tracker.
type ReportRequest struct {
	AttendanceLogID string  `json:"attendance_log_id" validate:"required,uuid"`
	InBranch        bool    `json:"in_branch"`
	GPSOk           bool    `json:"gps_ok"`
	Reason          *string `json:"reason,omitempty" validate:"omitempty,oneof=GPS_BLOCKED OUTSIDE_BRANCH"`
}

// Report upserts the session's heartbeat. Reports against closed or foreign
// sessions are rejected; a late report after checkout is not an error worth
// retrying, so closed sessions answer with a conflict the client drops.
func (s *HeartbeatService) Report(ctx context.Context, req *ReportRequest) (*repository.LocationHeartbeat, error) {
	p := principal.MustFromContext(ctx)

	log, err := s.ledger.GetByID(ctx, p.CompanyID, req.AttendanceLogID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("attendance session")
		}
		return nil, err
	}
	if !p.OwnsRow(log.CompanyID, log.EmployeeID) {
		return nil, errors.Forbidden("session belongs to another employee")
	}
	if !log.IsOpen() {
		return nil, errors.Conflict("attendance session is already closed")
	}

	heartbeat := &repository.LocationHeartbeat{
		EmployeeID:      log.EmployeeID,
		AttendanceLogID: log.ID,
		CompanyID:       log.CompanyID,
		LastSeenAt:      s.now(),
		InBranch:        req.InBranch,
		GPSOk:           req.GPSOk,
		Reason:          req.Reason,
	}

	if err := s.heartbeats.Upsert(ctx, heartbeat); err != nil {
		return nil, err
	}

	return heartbeat, nil
}
