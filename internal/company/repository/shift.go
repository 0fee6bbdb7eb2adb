package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Shift represents a scheduled work window. Times are wall-clock strings in
// the company timezone ("08:00:00"); end before start denotes an overnight
// shift.
type Shift struct {
	ID           string    `db:"id" json:"id"`
	CompanyID    string    `db:"company_id" json:"company_id"`
	Name         string    `db:"name" json:"name"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	GraceMinutes int       `db:"grace_minutes" json:"grace_minutes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ShiftRepository handles shift persistence
type ShiftRepository struct {
	db *database.DB
}

// NewShiftRepository creates a new shift repository
func NewShiftRepository(db *database.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// Create inserts a new shift
func (r *ShiftRepository) Create(ctx context.Context, companyID, name, startTime, endTime string, graceMinutes int) (*Shift, error) {
	shift := &Shift{
		ID:           uuid.New().String(),
		CompanyID:    companyID,
		Name:         name,
		StartTime:    startTime,
		EndTime:      endTime,
		GraceMinutes: graceMinutes,
		CreatedAt:    time.Now(),
	}

	query := `
		INSERT INTO shifts (id, company_id, name, start_time, end_time, grace_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		shift.ID,
		shift.CompanyID,
		shift.Name,
		shift.StartTime,
		shift.EndTime,
		shift.GraceMinutes,
		shift.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return shift, nil
}

// GetByID gets a shift by ID, scoped to the company
func (r *ShiftRepository) GetByID(ctx context.Context, companyID, id string) (*Shift, error) {
	var shift Shift
	query := `
		SELECT id, company_id, name, start_time, end_time, grace_minutes, created_at
		FROM shifts
		WHERE id = $1 AND company_id = $2
	`

	if err := r.db.GetContext(ctx, &shift, query, id, companyID); err != nil {
		return nil, err
	}

	return &shift, nil
}
