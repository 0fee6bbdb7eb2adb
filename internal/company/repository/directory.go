package repository

import (
	"context"

	authservice "github.com/attendly/attendly-backend/internal/auth/service"
	"github.com/attendly/attendly-backend/pkg/database"
)

// Directory is the gatekeeper's view of the employee table. It resolves
// login lookup keys to authoritative identity; the request payload never
// contributes the company id.
type Directory struct {
	db *database.DB
}

// NewDirectory creates a new employee directory
func NewDirectory(db *database.DB) *Directory {
	return &Directory{db: db}
}

var _ authservice.EmployeeDirectory = (*Directory)(nil)

// FindByLoginCode resolves an employee by the (employee_code, phone) lookup pair
func (d *Directory) FindByLoginCode(ctx context.Context, employeeCode, phone string) (*authservice.EmployeeRecord, error) {
	var rec authservice.EmployeeRecord
	query := `
		SELECT id, company_id, is_active
		FROM employees
		WHERE employee_code = $1 AND phone = $2
	`

	if err := d.db.GetContext(ctx, &rec, query, employeeCode, phone); err != nil {
		return nil, err
	}

	return &rec, nil
}

// FindByID resolves an employee by opaque id
func (d *Directory) FindByID(ctx context.Context, employeeID string) (*authservice.EmployeeRecord, error) {
	var rec authservice.EmployeeRecord
	query := `
		SELECT id, company_id, is_active
		FROM employees
		WHERE id = $1
	`

	if err := d.db.GetContext(ctx, &rec, query, employeeID); err != nil {
		return nil, err
	}

	return &rec, nil
}
