package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/attendly/attendly-backend/pkg/principal"
)

// TestCompany represents a provisioned company for a test, with its
// auto-created settings row
type TestCompany struct {
	ID         string
	Name       string
	Timezone   string
	SettingsID string
}

// CompanyManager provisions and tears down companies in the shared test
// database. Tests isolate from each other through company_id scoping, the
// same predicate the service itself enforces.
type CompanyManager struct {
	db      *sqlx.DB
	mu      sync.Mutex
	created []string
}

// NewCompanyManager creates a company manager for the test database
func NewCompanyManager(db *sqlx.DB) *CompanyManager {
	return &CompanyManager{
		db:      db,
		created: make([]string, 0),
	}
}

// CreateCompany inserts a company with its default settings row
func (cm *CompanyManager) CreateCompany(ctx context.Context, name, timezone string) (*TestCompany, error) {
	if timezone == "" {
		timezone = "UTC"
	}

	var companyID string
	err := cm.db.QueryRowxContext(ctx,
		`INSERT INTO companies (name, timezone) VALUES ($1, $2) RETURNING id`,
		name, timezone,
	).Scan(&companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	var settingsID string
	err = cm.db.QueryRowxContext(ctx,
		`INSERT INTO company_settings (company_id) VALUES ($1) RETURNING id`,
		companyID,
	).Scan(&settingsID)
	if err != nil {
		return nil, fmt.Errorf("failed to create company settings: %w", err)
	}

	cm.mu.Lock()
	cm.created = append(cm.created, companyID)
	cm.mu.Unlock()

	return &TestCompany{
		ID:         companyID,
		Name:       name,
		Timezone:   timezone,
		SettingsID: settingsID,
	}, nil
}

// DropCompany removes a company and everything scoped to it
func (cm *CompanyManager) DropCompany(ctx context.Context, c *TestCompany) error {
	// Ledger tables reference companies without ON DELETE CASCADE, so
	// clear them first in dependency order.
	tables := []string{
		"location_heartbeats",
		"auto_checkout_pendings",
		"attendance_logs",
		"payroll_adjustments",
		"delay_permissions",
		"leave_days",
	}
	for _, table := range tables {
		if _, err := cm.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE company_id = $1", table), c.ID,
		); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := cm.db.ExecContext(ctx,
		`DELETE FROM companies WHERE id = $1`, c.ID,
	); err != nil {
		return fmt.Errorf("failed to drop company: %w", err)
	}

	cm.mu.Lock()
	for i, id := range cm.created {
		if id == c.ID {
			cm.created = append(cm.created[:i], cm.created[i+1:]...)
			break
		}
	}
	cm.mu.Unlock()

	return nil
}

// Cleanup drops all companies created by this manager
func (cm *CompanyManager) Cleanup(ctx context.Context) error {
	cm.mu.Lock()
	remaining := make([]string, len(cm.created))
	copy(remaining, cm.created)
	cm.mu.Unlock()

	for _, id := range remaining {
		if err := cm.DropCompany(ctx, &TestCompany{ID: id}); err != nil {
			return err
		}
	}
	return nil
}

// AdminContext returns a context carrying an admin principal for the company
func AdminContext(c *TestCompany, adminID string) context.Context {
	return principal.WithPrincipal(context.Background(), &principal.Principal{
		SubjectKind: principal.SubjectAdmin,
		SubjectID:   adminID,
		CompanyID:   c.ID,
	})
}

// EmployeeContext returns a context carrying an employee principal for the company
func EmployeeContext(c *TestCompany, employeeID, deviceID string) context.Context {
	return principal.WithPrincipal(context.Background(), &principal.Principal{
		SubjectKind: principal.SubjectEmployee,
		SubjectID:   employeeID,
		CompanyID:   c.ID,
		DeviceID:    deviceID,
	})
}

// SystemContext returns a context carrying the system principal
func SystemContext() context.Context {
	return principal.WithPrincipal(context.Background(), principal.System())
}
