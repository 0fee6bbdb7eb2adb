package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/config"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
)

// RunStats summarizes one reconciliation pass.
type RunStats struct {
	Due         int `json:"due"`
	Executed    int `json:"executed"`
	Recovered   int `json:"recovered"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	StaleClosed int `json:"stale_closed"`
}

// Reconciler executes due auto-checkout pendings. Every minute it picks up
// the PENDING rows whose deadline passed and settles each in its own
// serializable transaction, so one poisoned row never stalls the rest.
type Reconciler struct {
	db         *database.DB
	ledger     *repository.LedgerRepository
	pendings   *repository.PendingRepository
	heartbeats *repository.HeartbeatRepository
	publisher  EventPublisher
	config     *config.ReconcilerConfig
	logger     *logger.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(
	db *database.DB,
	ledger *repository.LedgerRepository,
	pendings *repository.PendingRepository,
	heartbeats *repository.HeartbeatRepository,
	publisher EventPublisher,
	cfg *config.ReconcilerConfig,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		db:         db,
		ledger:     ledger,
		pendings:   pendings,
		heartbeats: heartbeats,
		publisher:  publisher,
		config:     cfg,
		logger:     log.WithComponent("reconciler"),
		now:        time.Now,
	}
}

// Start runs the reconciliation loop until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().
		Dur("interval", r.config.Interval).
		Int("batch_size", r.config.BatchSize).
		Msg("reconciler started")

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			stats := r.RunOnce(ctx)
			if stats.Due > 0 || stats.StaleClosed > 0 || stats.Failed > 0 {
				r.logger.Info().
					Int("due", stats.Due).
					Int("executed", stats.Executed).
					Int("recovered", stats.Recovered).
					Int("skipped", stats.Skipped).
					Int("failed", stats.Failed).
					Int("stale_closed", stats.StaleClosed).
					Msg("reconciliation pass complete")
			}
		}
	}
}

// RunOnce performs a single reconciliation pass: settle due pendings in
// deadline order, then force-close sessions abandoned without a proposal.
func (r *Reconciler) RunOnce(ctx context.Context) RunStats {
	var stats RunStats
	now := r.now()

	due, err := r.pendings.ListDue(ctx, now, r.config.BatchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list due pendings")
		stats.Failed++
		return stats
	}
	stats.Due = len(due)

	for i := range due {
		pending := &due[i]

		rowCtx, cancel := context.WithTimeout(ctx, r.config.RowTimeout)
		outcome, err := r.settle(rowCtx, pending)
		cancel()

		switch {
		case err != nil:
			// Leave the row PENDING; the next tick retries it.
			stats.Failed++
			r.logger.Error().Err(err).
				Str("pending_id", pending.ID).
				Bool("retryable", database.IsRetryable(err)).
				Msg("failed to settle pending auto-checkout")
		case outcome == outcomeExecuted:
			stats.Executed++
		case outcome == outcomeRecovered:
			stats.Recovered++
		default:
			stats.Skipped++
		}
	}

	stats.StaleClosed = r.closeStale(ctx, now)

	return stats
}

type settleOutcome int

const (
	outcomeSkipped settleOutcome = iota
	outcomeExecuted
	outcomeRecovered
)

// settle decides one due pending inside a serializable transaction. The
// decision re-reads everything it depends on: the row may have been
// cancelled, the session closed, or the employee may have recovered since
// the deadline was set.
func (r *Reconciler) settle(ctx context.Context, pending *repository.AutoCheckoutPending) (settleOutcome, error) {
	outcome := outcomeSkipped
	var closedLog *repository.AttendanceLog
	var checkOutTime time.Time

	err := r.db.Serializable(ctx, func(ctx context.Context) error {
		log, err := r.ledger.GetByID(ctx, pending.CompanyID, pending.AttendanceLogID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_, err := r.pendings.Cancel(ctx, pending.ID, repository.CancelReasonLogNotFound)
				return err
			}
			return err
		}

		if !log.IsOpen() {
			// The session closed under us; the deadline is spent either way,
			// so retire the row as done rather than inventing a cancel.
			_, err := r.pendings.MarkDone(ctx, pending.ID)
			return err
		}

		// Final gate: a fresh heartbeat showing the employee back in the
		// branch with GPS on means the client recovered but its cancel
		// never arrived. Execution would be wrong, so abort instead.
		heartbeat, err := r.heartbeats.Get(ctx, pending.EmployeeID, pending.AttendanceLogID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if heartbeat != nil && heartbeat.GPSOk && heartbeat.InBranch &&
			heartbeat.FreshWithin(pending.EndsAt.Add(-r.config.HeartbeatGrace)) {
			cancelled, err := r.pendings.Cancel(ctx, pending.ID, repository.CancelReasonRecoveredBeforeExec)
			if err != nil {
				return err
			}
			if cancelled {
				outcome = outcomeRecovered
			}
			return nil
		}

		// The ledger records when the close actually happened, not the
		// deadline. Backdating to ends_at would fabricate history when the
		// reconciler runs late.
		checkOutTime = r.now()
		closed, err := r.ledger.Close(ctx, log.ID, checkOutTime, nil, nil,
			repository.CheckoutTypeAuto, closeReason(pending.Reason))
		if err != nil {
			return err
		}
		if !closed {
			_, err := r.pendings.MarkDone(ctx, pending.ID)
			return err
		}

		done, err := r.pendings.MarkDone(ctx, pending.ID)
		if err != nil {
			return err
		}
		if !done {
			// The row was cancelled between ListDue and here; the
			// serializable conflict aborts our close too.
			return errors.Conflict("pending settled concurrently")
		}

		if err := r.heartbeats.Delete(ctx, pending.EmployeeID, pending.AttendanceLogID); err != nil {
			return err
		}

		outcome = outcomeExecuted
		closedLog = log
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if outcome == outcomeExecuted {
		r.publish(ctx, messaging.EventAutoCheckoutExecuted, messaging.AutoCheckoutExecutedEvent{
			PendingID:       pending.ID,
			AttendanceLogID: pending.AttendanceLogID,
			EmployeeID:      pending.EmployeeID,
			CompanyID:       pending.CompanyID,
			Reason:          pending.Reason,
			CheckOutTime:    checkOutTime,
		})
		r.publish(ctx, messaging.EventAttendanceCheckedOut, messaging.AttendanceCheckedOutEvent{
			AttendanceLogID: closedLog.ID,
			EmployeeID:      closedLog.EmployeeID,
			CompanyID:       closedLog.CompanyID,
			CheckInTime:     closedLog.CheckInTime,
			CheckOutTime:    checkOutTime,
			CheckoutType:    repository.CheckoutTypeAuto,
			CheckoutReason:  closeReason(pending.Reason),
			WorkMinutes:     int(checkOutTime.Sub(closedLog.CheckInTime) / time.Minute),
		})
	}
	if outcome == outcomeRecovered {
		r.publish(ctx, messaging.EventAutoCheckoutCancelled, messaging.AutoCheckoutCancelledEvent{
			PendingID:       pending.ID,
			AttendanceLogID: pending.AttendanceLogID,
			EmployeeID:      pending.EmployeeID,
			CompanyID:       pending.CompanyID,
			CancelReason:    repository.CancelReasonRecoveredBeforeExec,
		})
	}

	return outcome, nil
}

// closeStale force-closes open sessions whose client vanished without ever
// proposing an auto-checkout. Each session gets its own transaction.
func (r *Reconciler) closeStale(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-r.config.StaleAfter)

	stale, err := r.ledger.ListStaleOpen(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list stale open sessions")
		return 0
	}

	closed := 0
	for i := range stale {
		log := &stale[i]

		rowCtx, cancel := context.WithTimeout(ctx, r.config.RowTimeout)
		err := r.db.Serializable(rowCtx, func(ctx context.Context) error {
			ok, err := r.ledger.Close(ctx, log.ID, now, nil, nil,
				repository.CheckoutTypeAuto, repository.CheckoutReasonStaleSession)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			// A live pending on a session we just force-closed is settled by
			// that close, so it retires as done.
			if p, err := r.pendings.FindPendingForLog(ctx, log.ID); err == nil {
				if _, err := r.pendings.MarkDone(ctx, p.ID); err != nil {
					return err
				}
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err := r.heartbeats.Delete(ctx, log.EmployeeID, log.ID); err != nil {
				return err
			}
			closed++
			return nil
		})
		cancel()
		if err != nil {
			r.logger.Error().Err(err).
				Str("attendance_log_id", log.ID).
				Msg("failed to close stale session")
			continue
		}

		r.publish(ctx, messaging.EventAttendanceCheckedOut, messaging.AttendanceCheckedOutEvent{
			AttendanceLogID: log.ID,
			EmployeeID:      log.EmployeeID,
			CompanyID:       log.CompanyID,
			CheckInTime:     log.CheckInTime,
			CheckOutTime:    now,
			CheckoutType:    repository.CheckoutTypeAuto,
			CheckoutReason:  repository.CheckoutReasonStaleSession,
			WorkMinutes:     int(now.Sub(log.CheckInTime) / time.Minute),
		})
	}

	return closed
}

// closeReason maps a proposal reason to the checkout reason recorded on the
// ledger row.
func closeReason(pendingReason string) string {
	switch pendingReason {
	case repository.PendingReasonGPSBlocked:
		return repository.CheckoutReasonLocationDisabled
	case repository.PendingReasonOutsideBranch:
		return repository.CheckoutReasonOutOfBranch
	default:
		return repository.CheckoutReasonOutOfBranch
	}
}

func (r *Reconciler) publish(ctx context.Context, eventType string, data interface{}) {
	if err := r.publisher.Publish(ctx, eventType, data); err != nil {
		r.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
