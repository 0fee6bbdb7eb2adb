package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/attendly/attendly-backend/pkg/database"
)

// CompanySettings holds the per-company tunables the attendance core reads
// on every hot path. Exactly one row exists per company; it is created when
// the company is provisioned.
type CompanySettings struct {
	ID        string `db:"id" json:"id"`
	CompanyID string `db:"company_id" json:"company_id"`

	// Auto-checkout
	AutoCheckoutEnabled      bool `db:"auto_checkout_enabled" json:"auto_checkout_enabled"`
	AutoCheckoutAfterSeconds int  `db:"auto_checkout_after_seconds" json:"auto_checkout_after_seconds"`
	VerifyOutsideReadings    int  `db:"verify_outside_readings" json:"verify_outside_readings"`

	// Payroll
	WorkdaysPerMonth   int             `db:"workdays_per_month" json:"workdays_per_month"`
	Currency           string          `db:"currency" json:"currency"`
	InsuranceType      string          `db:"insurance_type" json:"insurance_type"`
	InsuranceValue     decimal.Decimal `db:"insurance_value" json:"insurance_value"`
	TaxType            string          `db:"tax_type" json:"tax_type"`
	TaxValue           decimal.Decimal `db:"tax_value" json:"tax_value"`
	OvertimeMultiplier decimal.Decimal `db:"overtime_multiplier" json:"overtime_multiplier"`
	ShiftHoursPerDay   int             `db:"shift_hours_per_day" json:"shift_hours_per_day"`
	GraceMinutes       int             `db:"grace_minutes" json:"grace_minutes"`

	// Attendance calculation
	WeeklyOffDays pq.Int64Array `db:"weekly_off_days" json:"weekly_off_days"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SettingsRepository handles company settings persistence
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `
	id, company_id,
	auto_checkout_enabled, auto_checkout_after_seconds, verify_outside_readings,
	workdays_per_month, currency, insurance_type, insurance_value,
	tax_type, tax_value, overtime_multiplier, shift_hours_per_day, grace_minutes,
	weekly_off_days, created_at, updated_at
`

// CreateDefaults inserts the default settings row for a freshly provisioned
// company. The unique constraint on company_id makes double provisioning a
// conflict rather than a second row.
func (r *SettingsRepository) CreateDefaults(ctx context.Context, companyID string) (*CompanySettings, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO company_settings (id, company_id)
		VALUES ($1, $2)
		RETURNING ` + settingsColumns

	var settings CompanySettings
	if err := r.db.GetContext(ctx, &settings, query, id, companyID); err != nil {
		return nil, err
	}

	return &settings, nil
}

// GetByCompany gets the settings row for a company
func (r *SettingsRepository) GetByCompany(ctx context.Context, companyID string) (*CompanySettings, error) {
	var settings CompanySettings
	query := `SELECT ` + settingsColumns + ` FROM company_settings WHERE company_id = $1`

	if err := r.db.GetContext(ctx, &settings, query, companyID); err != nil {
		return nil, err
	}

	return &settings, nil
}

// Update replaces the tunable fields of a company's settings row
func (r *SettingsRepository) Update(ctx context.Context, s *CompanySettings) error {
	query := `
		UPDATE company_settings
		SET auto_checkout_enabled = $2,
		    auto_checkout_after_seconds = $3,
		    verify_outside_readings = $4,
		    workdays_per_month = $5,
		    currency = $6,
		    insurance_type = $7,
		    insurance_value = $8,
		    tax_type = $9,
		    tax_value = $10,
		    overtime_multiplier = $11,
		    shift_hours_per_day = $12,
		    grace_minutes = $13,
		    weekly_off_days = $14,
		    updated_at = NOW()
		WHERE company_id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		s.CompanyID,
		s.AutoCheckoutEnabled,
		s.AutoCheckoutAfterSeconds,
		s.VerifyOutsideReadings,
		s.WorkdaysPerMonth,
		s.Currency,
		s.InsuranceType,
		s.InsuranceValue,
		s.TaxType,
		s.TaxValue,
		s.OvertimeMultiplier,
		s.ShiftHoursPerDay,
		s.GraceMinutes,
		s.WeeklyOffDays,
	)
	return err
}
