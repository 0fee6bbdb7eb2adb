package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/attendly-backend/pkg/database"
)

// InputsRepository reads the payroll projection's storage inputs: approved
// leave, approved delay permissions and manual adjustments. Present days
// come from the attendance ledger, not from here.
type InputsRepository struct {
	db *database.DB
}

// NewInputsRepository creates a new payroll inputs repository
func NewInputsRepository(db *database.DB) *InputsRepository {
	return &InputsRepository{db: db}
}

// ApprovedLeaveDays counts approved leave days inside [from, to].
func (r *InputsRepository) ApprovedLeaveDays(ctx context.Context, companyID, employeeID string, from, to time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM leave_days
		WHERE company_id = $1 AND employee_id = $2
			AND status = 'approved'
			AND leave_date >= $3 AND leave_date <= $4
	`

	if err := r.db.GetContext(ctx, &count, query, companyID, employeeID, from, to); err != nil {
		return 0, err
	}

	return count, nil
}

// DelayMinutesByDay returns the approved delay minutes per calendar day
// inside [from, to], keyed by the date in 2006-01-02 form.
func (r *InputsRepository) DelayMinutesByDay(ctx context.Context, companyID, employeeID string, from, to time.Time) (map[string]int, error) {
	rows := make([]struct {
		Day     time.Time `db:"permission_date"`
		Minutes int       `db:"minutes"`
	}, 0)
	query := `
		SELECT permission_date, SUM(minutes) AS minutes
		FROM delay_permissions
		WHERE company_id = $1 AND employee_id = $2
			AND status = 'approved'
			AND permission_date >= $3 AND permission_date <= $4
		GROUP BY permission_date
	`

	if err := r.db.SelectContext(ctx, &rows, query, companyID, employeeID, from, to); err != nil {
		return nil, err
	}

	byDay := make(map[string]int, len(rows))
	for _, row := range rows {
		byDay[row.Day.Format("2006-01-02")] = row.Minutes
	}

	return byDay, nil
}

// AdjustmentTotals returns the bonus and penalty sums effective inside
// [from, to].
func (r *InputsRepository) AdjustmentTotals(ctx context.Context, companyID, employeeID string, from, to time.Time) (bonuses, penalties decimal.Decimal, err error) {
	rows := make([]struct {
		Type   string          `db:"adjustment_type"`
		Amount decimal.Decimal `db:"amount"`
	}, 0)
	query := `
		SELECT adjustment_type, COALESCE(SUM(amount), 0) AS amount
		FROM payroll_adjustments
		WHERE company_id = $1 AND employee_id = $2
			AND effective_date >= $3 AND effective_date <= $4
		GROUP BY adjustment_type
	`

	if err := r.db.SelectContext(ctx, &rows, query, companyID, employeeID, from, to); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	bonuses, penalties = decimal.Zero, decimal.Zero
	for _, row := range rows {
		switch row.Type {
		case "bonus":
			bonuses = row.Amount
		case "penalty":
			penalties = row.Amount
		}
	}

	return bonuses, penalties, nil
}

// WorkedMinutes sums the closed-session durations inside [from, to).
func (r *InputsRepository) WorkedMinutes(ctx context.Context, companyID, employeeID string, from, to time.Time) (int, error) {
	var minutes int
	query := `
		SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (check_out_time - check_in_time)) / 60), 0)::int
		FROM attendance_logs
		WHERE company_id = $1 AND employee_id = $2
			AND check_out_time IS NOT NULL
			AND check_in_time >= $3 AND check_in_time < $4
	`

	if err := r.db.GetContext(ctx, &minutes, query, companyID, employeeID, from, to); err != nil {
		return 0, err
	}

	return minutes, nil
}
