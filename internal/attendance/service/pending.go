package service

import (
	"context"
	"database/sql"
	"time"

	companysvc "github.com/attendly/attendly-backend/internal/company/service"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// PendingService manages client-authored auto-checkout intents. The client
// tracker proposes when its countdown completes and cancels when it sees the
// employee recover; the reconciler owns execution.
type PendingService struct {
	db        *database.DB
	ledger    *repository.LedgerRepository
	pendings  *repository.PendingRepository
	settings  *companysvc.SettingsService
	publisher EventPublisher
	logger    *logger.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewPendingService creates a new pending service
func NewPendingService(
	db *database.DB,
	ledger *repository.LedgerRepository,
	pendings *repository.PendingRepository,
	settings *companysvc.SettingsService,
	publisher EventPublisher,
	log *logger.Logger,
) *PendingService {
	return &PendingService{
		db:        db,
		ledger:    ledger,
		pendings:  pendings,
		settings:  settings,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// ProposeRequest asks for an auto-checkout of the given session. EndsAt is
// optional; when absent the company's configured delay applies.
type ProposeRequest struct {
	AttendanceLogID string     `json:"attendance_log_id" validate:"required,uuid"`
	Reason          string     `json:"reason" validate:"required,oneof=GPS_BLOCKED OUTSIDE_BRANCH"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
}

// CancelRequest withdraws a proposal after the client observed recovery.
type CancelRequest struct {
	PendingID string `json:"pending_id" validate:"required,uuid"`
}

// Propose records an auto-checkout intent for an open session. Any earlier
// PENDING row for the session is superseded first; ends_at is fixed at
// insert and never updated in place.
func (s *PendingService) Propose(ctx context.Context, req *ProposeRequest) (*repository.AutoCheckoutPending, error) {
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

	settings, err := s.settings.Get(ctx, p.CompanyID)
	if err != nil {
		return nil, err
	}
	if !settings.AutoCheckoutEnabled {
		return nil, errors.Conflict("auto-checkout is disabled for this company")
	}

	endsAt := s.now().Add(time.Duration(settings.AutoCheckoutAfterSeconds) * time.Second)
	if req.EndsAt != nil {
		endsAt = *req.EndsAt
	}

	pending := &repository.AutoCheckoutPending{
		CompanyID:       log.CompanyID,
		EmployeeID:      log.EmployeeID,
		AttendanceLogID: log.ID,
		Reason:          req.Reason,
		EndsAt:          endsAt,
	}

	var superseded *repository.AutoCheckoutPending

	err = s.db.Serializable(ctx, func(ctx context.Context) error {
		prior, err := s.pendings.FindPendingForLog(ctx, log.ID)
		if err == nil {
			if _, err := s.pendings.Cancel(ctx, prior.ID, repository.CancelReasonSuperseded); err != nil {
				return err
			}
			superseded = prior
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = s.pendings.Insert(ctx, pending)
		return err
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	if superseded != nil {
		s.publish(ctx, messaging.EventAutoCheckoutCancelled, messaging.AutoCheckoutCancelledEvent{
			PendingID:       superseded.ID,
			AttendanceLogID: superseded.AttendanceLogID,
			EmployeeID:      superseded.EmployeeID,
			CompanyID:       superseded.CompanyID,
			CancelReason:    repository.CancelReasonSuperseded,
		})
	}

	s.publish(ctx, messaging.EventAutoCheckoutProposed, messaging.AutoCheckoutProposedEvent{
		PendingID:       pending.ID,
		AttendanceLogID: pending.AttendanceLogID,
		EmployeeID:      pending.EmployeeID,
		CompanyID:       pending.CompanyID,
		Reason:          pending.Reason,
		EndsAt:          pending.EndsAt,
	})

	s.logger.Info().
		Str("pending_id", pending.ID).
		Str("attendance_log_id", pending.AttendanceLogID).
		Str("reason", pending.Reason).
		Time("ends_at", pending.EndsAt).
		Msg("auto-checkout proposed")

	return pending, nil
}

// Cancel withdraws a proposal because the client saw the employee recover.
// Cancelling a row that is no longer PENDING is a no-op: the first writer
// won, and repeating the call changes nothing.
func (s *PendingService) Cancel(ctx context.Context, req *CancelRequest) (*repository.AutoCheckoutPending, error) {
	p := principal.MustFromContext(ctx)

	pending, err := s.pendings.GetByID(ctx, p.CompanyID, req.PendingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("auto-checkout pending")
		}
		return nil, err
	}
	if !p.OwnsRow(pending.CompanyID, pending.EmployeeID) {
		return nil, errors.Forbidden("pending belongs to another employee")
	}

	cancelled, err := s.pendings.Cancel(ctx, pending.ID, repository.CancelReasonRecovered)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// Already settled by another writer; return the row as it is.
		return s.pendings.GetByID(ctx, p.CompanyID, pending.ID)
	}

	s.publish(ctx, messaging.EventAutoCheckoutCancelled, messaging.AutoCheckoutCancelledEvent{
		PendingID:       pending.ID,
		AttendanceLogID: pending.AttendanceLogID,
		EmployeeID:      pending.EmployeeID,
		CompanyID:       pending.CompanyID,
		CancelReason:    repository.CancelReasonRecovered,
	})

	s.logger.Info().
		Str("pending_id", pending.ID).
		Msg("auto-checkout cancelled by client")

	return s.pendings.GetByID(ctx, p.CompanyID, pending.ID)
}

func (s *PendingService) publish(ctx context.Context, eventType string, data interface{}) {
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
