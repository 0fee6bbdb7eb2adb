package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Pending statuses and the reasons attached to proposals and cancellations.
const (
	PendingStatusPending   = "PENDING"
	PendingStatusCancelled = "CANCELLED"
	PendingStatusDone      = "DONE"

	PendingReasonGPSBlocked    = "GPS_BLOCKED"
	PendingReasonOutsideBranch = "OUTSIDE_BRANCH"

	CancelReasonRecovered           = "RECOVERED"
	CancelReasonSuperseded          = "SUPERSEDED"
	CancelReasonManualCheckout      = "MANUAL_CHECKOUT"
	CancelReasonRecoveredBeforeExec = "RECOVERED_BEFORE_EXEC"
	CancelReasonLogNotFound         = "LOG_NOT_FOUND"
)

// AutoCheckoutPending is a client-authored intent to close a session at
// ends_at unless the client recovers first. ends_at never moves after
// insert; a changed deadline is expressed by superseding the row.
type AutoCheckoutPending struct {
	ID              string     `db:"id" json:"id"`
	CompanyID       string     `db:"company_id" json:"company_id"`
	EmployeeID      string     `db:"employee_id" json:"employee_id"`
	AttendanceLogID string     `db:"attendance_log_id" json:"attendance_log_id"`
	Reason          string     `db:"reason" json:"reason"`
	EndsAt          time.Time  `db:"ends_at" json:"ends_at"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	DoneAt          *time.Time `db:"done_at" json:"done_at,omitempty"`
}

// PendingRepository handles auto_checkout_pendings persistence
type PendingRepository struct {
	db *database.DB
}

// NewPendingRepository creates a new pending repository
func NewPendingRepository(db *database.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

const pendingColumns = `
	id, company_id, employee_id, attendance_log_id, reason, ends_at, status,
	created_at, cancelled_at, cancel_reason, done_at
`

// Insert creates a PENDING row. The partial unique index on
// (attendance_log_id) WHERE status = 'PENDING' is the backstop: if two
// writers race past the supersede step, the second insert fails.
func (r *PendingRepository) Insert(ctx context.Context, p *AutoCheckoutPending) (*AutoCheckoutPending, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = PendingStatusPending
	p.CreatedAt = time.Now()

	query := `
		INSERT INTO auto_checkout_pendings (id, company_id, employee_id, attendance_log_id, reason, ends_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.CompanyID,
		p.EmployeeID,
		p.AttendanceLogID,
		p.Reason,
		p.EndsAt,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// FindPendingForLog returns the session's live PENDING row, or sql.ErrNoRows.
func (r *PendingRepository) FindPendingForLog(ctx context.Context, attendanceLogID string) (*AutoCheckoutPending, error) {
	var p AutoCheckoutPending
	query := `
		SELECT ` + pendingColumns + `
		FROM auto_checkout_pendings
		WHERE attendance_log_id = $1 AND status = 'PENDING'
	`

	if err := r.db.GetContext(ctx, &p, query, attendanceLogID); err != nil {
		return nil, err
	}

	return &p, nil
}

// GetByID gets a pending by id, scoped to the company.
func (r *PendingRepository) GetByID(ctx context.Context, companyID, id string) (*AutoCheckoutPending, error) {
	var p AutoCheckoutPending
	query := `SELECT ` + pendingColumns + ` FROM auto_checkout_pendings WHERE id = $1 AND company_id = $2`

	if err := r.db.GetContext(ctx, &p, query, id, companyID); err != nil {
		return nil, err
	}

	return &p, nil
}

// Cancel transitions a PENDING row to CANCELLED. First writer wins: the
// status guard in the WHERE clause makes later cancels and the executor's
// mark-done no-ops, so the returned bool tells the caller whether this call
// actually claimed the row.
func (r *PendingRepository) Cancel(ctx context.Context, id, cancelReason string) (bool, error) {
	query := `
		UPDATE auto_checkout_pendings
		SET status = $2, cancelled_at = NOW(), cancel_reason = $3
		WHERE id = $1 AND status = 'PENDING'
	`

	res, err := r.db.ExecContext(ctx, query, id, PendingStatusCancelled, cancelReason)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// CancelForLog cancels the session's live PENDING row, if any.
func (r *PendingRepository) CancelForLog(ctx context.Context, attendanceLogID, cancelReason string) (bool, error) {
	query := `
		UPDATE auto_checkout_pendings
		SET status = $2, cancelled_at = NOW(), cancel_reason = $3
		WHERE attendance_log_id = $1 AND status = 'PENDING'
	`

	res, err := r.db.ExecContext(ctx, query, attendanceLogID, PendingStatusCancelled, cancelReason)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// MarkDone transitions a PENDING row to DONE after the reconciler executed it.
func (r *PendingRepository) MarkDone(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE auto_checkout_pendings
		SET status = $2, done_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	res, err := r.db.ExecContext(ctx, query, id, PendingStatusDone)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListDue returns PENDING rows whose deadline has passed, oldest deadline
// first so the longest-overdue sessions close first.
func (r *PendingRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]AutoCheckoutPending, error) {
	pendings := make([]AutoCheckoutPending, 0)
	query := `
		SELECT ` + pendingColumns + `
		FROM auto_checkout_pendings
		WHERE status = 'PENDING' AND ends_at <= $1
		ORDER BY ends_at ASC
		LIMIT $2
	`

	if err := r.db.SelectContext(ctx, &pendings, query, now, limit); err != nil {
		return nil, err
	}

	return pendings, nil
}
