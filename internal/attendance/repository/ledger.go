package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Checkout types and reasons recorded on closed ledger rows.
const (
	CheckoutTypeManual = "MANUAL"
	CheckoutTypeAuto   = "AUTO"

	CheckoutReasonLocationDisabled = "LOCATION_DISABLED"
	CheckoutReasonOutOfBranch      = "OUT_OF_BRANCH"
	CheckoutReasonStaleSession     = "STALE_SESSION"

	StatusOnTime = "on_time"
	StatusLate   = "late"
)

// AttendanceLog is one row of the attendance ledger. A row with a NULL
// check_out_time is an open session; closing it is the only mutation the
// ledger allows.
type AttendanceLog struct {
	ID                string     `db:"id" json:"id"`
	CompanyID         string     `db:"company_id" json:"company_id"`
	EmployeeID        string     `db:"employee_id" json:"employee_id"`
	BranchID          string     `db:"branch_id" json:"branch_id"`
	CheckInTime       time.Time  `db:"check_in_time" json:"check_in_time"`
	CheckInDeviceTime *time.Time `db:"check_in_device_time" json:"check_in_device_time,omitempty"`
	CheckInLat        float64    `db:"check_in_lat" json:"check_in_lat"`
	CheckInLng        float64    `db:"check_in_lng" json:"check_in_lng"`
	CheckInAccuracyM  float64    `db:"check_in_accuracy_m" json:"check_in_accuracy_m"`
	CheckInDistanceM  float64    `db:"check_in_distance_m" json:"check_in_distance_m"`
	CheckOutTime      *time.Time `db:"check_out_time" json:"check_out_time,omitempty"`
	CheckOutLat       *float64   `db:"check_out_lat" json:"check_out_lat,omitempty"`
	CheckOutLng       *float64   `db:"check_out_lng" json:"check_out_lng,omitempty"`
	CheckoutType      *string    `db:"checkout_type" json:"checkout_type,omitempty"`
	CheckoutReason    *string    `db:"checkout_reason" json:"checkout_reason,omitempty"`
	Status            string     `db:"status" json:"status"`
	LateMinutes       int        `db:"late_minutes" json:"late_minutes"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the session has not been closed yet.
func (l *AttendanceLog) IsOpen() bool {
	return l.CheckOutTime == nil
}

// PresentDay is one distinct attendance day in the company timezone, carrying
// the worst lateness recorded across that day's sessions.
type PresentDay struct {
	Day         time.Time `db:"day" json:"day"`
	LateMinutes int       `db:"late_minutes" json:"late_minutes"`
}

// LedgerRepository handles attendance_logs persistence
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `
	id, company_id, employee_id, branch_id,
	check_in_time, check_in_device_time, check_in_lat, check_in_lng,
	check_in_accuracy_m, check_in_distance_m,
	check_out_time, check_out_lat, check_out_lng, checkout_type, checkout_reason,
	status, late_minutes, created_at, updated_at
`

// Insert opens a new attendance session. The partial unique index on open
// sessions rejects a second open row per employee; callers map that unique
// violation to the already-checked-in outcome.
func (r *LedgerRepository) Insert(ctx context.Context, log *AttendanceLog) (*AttendanceLog, error) {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	now := time.Now()
	log.CreatedAt = now
	log.UpdatedAt = now

	query := `
		INSERT INTO attendance_logs (id, company_id, employee_id, branch_id,
			check_in_time, check_in_device_time, check_in_lat, check_in_lng,
			check_in_accuracy_m, check_in_distance_m, status, late_minutes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.CompanyID,
		log.EmployeeID,
		log.BranchID,
		log.CheckInTime,
		log.CheckInDeviceTime,
		log.CheckInLat,
		log.CheckInLng,
		log.CheckInAccuracyM,
		log.CheckInDistanceM,
		log.Status,
		log.LateMinutes,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return log, nil
}

// FindOpen returns the employee's open session, or sql.ErrNoRows.
func (r *LedgerRepository) FindOpen(ctx context.Context, employeeID string) (*AttendanceLog, error) {
	var log AttendanceLog
	query := `SELECT ` + ledgerColumns + ` FROM attendance_logs WHERE employee_id = $1 AND check_out_time IS NULL`

	if err := r.db.GetContext(ctx, &log, query, employeeID); err != nil {
		return nil, err
	}

	return &log, nil
}

// GetByID gets a ledger row by id, scoped to the company.
func (r *LedgerRepository) GetByID(ctx context.Context, companyID, id string) (*AttendanceLog, error) {
	var log AttendanceLog
	query := `SELECT ` + ledgerColumns + ` FROM attendance_logs WHERE id = $1 AND company_id = $2`

	if err := r.db.GetContext(ctx, &log, query, id, companyID); err != nil {
		return nil, err
	}

	return &log, nil
}

// Close writes the checkout fields onto an open row. The WHERE clause guards
// idempotence: a row that is already closed stays exactly as it was, and the
// caller sees zero affected rows.
func (r *LedgerRepository) Close(ctx context.Context, id string, checkOutTime time.Time, lat, lng *float64, checkoutType, reason string) (bool, error) {
	query := `
		UPDATE attendance_logs
		SET check_out_time = $2, check_out_lat = $3, check_out_lng = $4,
			checkout_type = $5, checkout_reason = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 AND check_out_time IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, checkOutTime, lat, lng, checkoutType, reason)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListByEmployee returns the employee's ledger rows inside [from, to),
// newest first.
func (r *LedgerRepository) ListByEmployee(ctx context.Context, companyID, employeeID string, from, to time.Time) ([]AttendanceLog, error) {
	logs := make([]AttendanceLog, 0)
	query := `
		SELECT ` + ledgerColumns + `
		FROM attendance_logs
		WHERE company_id = $1 AND employee_id = $2
			AND check_in_time >= $3 AND check_in_time < $4
		ORDER BY check_in_time DESC
	`

	if err := r.db.SelectContext(ctx, &logs, query, companyID, employeeID, from, to); err != nil {
		return nil, err
	}

	return logs, nil
}

// DistinctDays projects the ledger onto calendar days in the given timezone.
// Several sessions on one local day collapse into a single present day, and
// the day carries the maximum lateness across its sessions.
func (r *LedgerRepository) DistinctDays(ctx context.Context, companyID, employeeID string, from, to time.Time, timezone string) ([]PresentDay, error) {
	days := make([]PresentDay, 0)
	query := `
		SELECT (check_in_time AT TIME ZONE $5)::date AS day,
			MAX(late_minutes) AS late_minutes
		FROM attendance_logs
		WHERE company_id = $1 AND employee_id = $2
			AND check_in_time >= $3 AND check_in_time < $4
		GROUP BY day
		ORDER BY day
	`

	if err := r.db.SelectContext(ctx, &days, query, companyID, employeeID, from, to, timezone); err != nil {
		return nil, err
	}

	return days, nil
}

// ListStaleOpen returns open sessions whose check-in is older than the cutoff.
// The reconciler closes these defensively when a client vanished without ever
// proposing an auto-checkout.
func (r *LedgerRepository) ListStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]AttendanceLog, error) {
	logs := make([]AttendanceLog, 0)
	query := `
		SELECT ` + ledgerColumns + `
		FROM attendance_logs
		WHERE check_out_time IS NULL AND check_in_time < $1
		ORDER BY check_in_time ASC
		LIMIT $2
	`

	if err := r.db.SelectContext(ctx, &logs, query, cutoff, limit); err != nil {
		return nil, err
	}

	return logs, nil
}
