package repository

import (
	"context"
	"time"

	"github.com/attendly/attendly-backend/pkg/database"
)

// LocationHeartbeat is the latest location snapshot for an open session.
// One row per (employee, session); each report overwrites the last.
type LocationHeartbeat struct {
	EmployeeID      string    `db:"employee_id" json:"employee_id"`
	AttendanceLogID string    `db:"attendance_log_id" json:"attendance_log_id"`
	CompanyID       string    `db:"company_id" json:"company_id"`
	LastSeenAt      time.Time `db:"last_seen_at" json:"last_seen_at"`
	InBranch        bool      `db:"in_branch" json:"in_branch"`
	GPSOk           bool      `db:"gps_ok" json:"gps_ok"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`
}

// FreshWithin reports whether the snapshot was taken at or after the cutoff.
func (h *LocationHeartbeat) FreshWithin(cutoff time.Time) bool {
	return !h.LastSeenAt.Before(cutoff)
}

// HeartbeatRepository handles location_heartbeats persistence
type HeartbeatRepository struct {
	db *database.DB
}

// NewHeartbeatRepository creates a new heartbeat repository
func NewHeartbeatRepository(db *database.DB) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Upsert writes the snapshot, replacing any previous one for the session.
func (r *HeartbeatRepository) Upsert(ctx context.Context, h *LocationHeartbeat) error {
	query := `
		INSERT INTO location_heartbeats (employee_id, attendance_log_id, company_id, last_seen_at, in_branch, gps_ok, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id, attendance_log_id)
		DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at,
			in_branch = EXCLUDED.in_branch,
			gps_ok = EXCLUDED.gps_ok,
			reason = EXCLUDED.reason
	`

	_, err := r.db.ExecContext(ctx, query,
		h.EmployeeID,
		h.AttendanceLogID,
		h.CompanyID,
		h.LastSeenAt,
		h.InBranch,
		h.GPSOk,
		h.Reason,
	)
	return err
}

// Get returns the session's snapshot, or sql.ErrNoRows.
func (r *HeartbeatRepository) Get(ctx context.Context, employeeID, attendanceLogID string) (*LocationHeartbeat, error) {
	var h LocationHeartbeat
	query := `
		SELECT employee_id, attendance_log_id, company_id, last_seen_at, in_branch, gps_ok, reason
		FROM location_heartbeats
		WHERE employee_id = $1 AND attendance_log_id = $2
	`

	if err := r.db.GetContext(ctx, &h, query, employeeID, attendanceLogID); err != nil {
		return nil, err
	}

	return &h, nil
}

// Delete removes the session's snapshot. Called when the session closes;
// heartbeats have no meaning past the session's lifetime.
func (r *HeartbeatRepository) Delete(ctx context.Context, employeeID, attendanceLogID string) error {
	query := `DELETE FROM location_heartbeats WHERE employee_id = $1 AND attendance_log_id = $2`
	_, err := r.db.ExecContext(ctx, query, employeeID, attendanceLogID)
	return err
}
