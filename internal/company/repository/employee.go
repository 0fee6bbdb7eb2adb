package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Employee represents an employee. Identity is the opaque id; the employee
// code and phone are login lookup keys only.
type Employee struct {
	ID                string          `db:"id" json:"id"`
	CompanyID         string          `db:"company_id" json:"company_id"`
	BranchID          string          `db:"branch_id" json:"branch_id"`
	ShiftID           *string         `db:"shift_id" json:"shift_id,omitempty"`
	EmployeeCode      string          `db:"employee_code" json:"employee_code"`
	FullName          string          `db:"full_name" json:"full_name"`
	Phone             *string         `db:"phone" json:"phone,omitempty"`
	BaseMonthlySalary decimal.Decimal `db:"base_monthly_salary" json:"base_monthly_salary"`
	MonthlyAllowances decimal.Decimal `db:"monthly_allowances" json:"monthly_allowances"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// EmployeeRepository handles employee persistence
type EmployeeRepository struct {
	db *database.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `
	id, company_id, branch_id, shift_id, employee_code, full_name, phone,
	base_monthly_salary, monthly_allowances, is_active, created_at, updated_at
`

// Create inserts a new employee
func (r *EmployeeRepository) Create(ctx context.Context, e *Employee) (*Employee, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt

	query := `
		INSERT INTO employees (id, company_id, branch_id, shift_id, employee_code, full_name, phone,
			base_monthly_salary, monthly_allowances, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.CompanyID,
		e.BranchID,
		e.ShiftID,
		e.EmployeeCode,
		e.FullName,
		e.Phone,
		e.BaseMonthlySalary,
		e.MonthlyAllowances,
		e.IsActive,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// GetByID gets an employee by ID, scoped to the company
func (r *EmployeeRepository) GetByID(ctx context.Context, companyID, id string) (*Employee, error) {
	var employee Employee
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1 AND company_id = $2`

	if err := r.db.GetContext(ctx, &employee, query, id, companyID); err != nil {
		return nil, err
	}

	return &employee, nil
}

// Deactivate soft-deactivates an employee. Attendance history stays; live
// sessions are revoked separately by the caller.
func (r *EmployeeRepository) Deactivate(ctx context.Context, companyID, id string) error {
	query := `
		UPDATE employees SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, id, companyID)
	return err
}
