package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/attendly-backend/internal/company/repository"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// settingsCacheTTL bounds how stale a cached settings row may get. Writes
// invalidate immediately; the TTL only covers out-of-process writers.
const settingsCacheTTL = time.Minute

type cachedSettings struct {
	settings  *repository.CompanySettings
	fetchedAt time.Time
}

// SettingsService serves company settings with a short-lived in-process
// cache. Settings reads sit on the check-in and reconciler hot paths, so
// each company's row is cached for up to a minute and dropped on write.
type SettingsService struct {
	repo      *repository.SettingsRepository
	publisher EventPublisher
	logger    *logger.Logger

	mu    sync.RWMutex
	cache map[string]cachedSettings

	// now is swappable in tests
	now func() time.Time
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo *repository.SettingsRepository, publisher EventPublisher, log *logger.Logger) *SettingsService {
	return &SettingsService{
		repo:      repo,
		publisher: publisher,
		logger:    log,
		cache:     make(map[string]cachedSettings),
		now:       time.Now,
	}
}

// Get returns the settings for a company, from cache when fresh
func (s *SettingsService) Get(ctx context.Context, companyID string) (*repository.CompanySettings, error) {
	s.mu.RLock()
	entry, ok := s.cache[companyID]
	s.mu.RUnlock()

	if ok && s.now().Sub(entry.fetchedAt) < settingsCacheTTL {
		return entry.settings, nil
	}

	settings, err := s.repo.GetByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("company settings")
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[companyID] = cachedSettings{settings: settings, fetchedAt: s.now()}
	s.mu.Unlock()

	return settings, nil
}

// UpdateRequest carries the tunable settings fields
type UpdateRequest struct {
	AutoCheckoutEnabled      *bool    `json:"auto_checkout_enabled,omitempty"`
	AutoCheckoutAfterSeconds *int     `json:"auto_checkout_after_seconds,omitempty" validate:"omitempty,gte=60,lte=86400"`
	VerifyOutsideReadings    *int     `json:"verify_outside_readings,omitempty" validate:"omitempty,gte=1,lte=20"`
	WorkdaysPerMonth         *int     `json:"workdays_per_month,omitempty" validate:"omitempty,gte=1,lte=31"`
	Currency                 *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	InsuranceType            *string  `json:"insurance_type,omitempty" validate:"omitempty,oneof=percentage fixed"`
	InsuranceValue           *float64 `json:"insurance_value,omitempty" validate:"omitempty,gte=0"`
	TaxType                  *string  `json:"tax_type,omitempty" validate:"omitempty,oneof=percentage fixed"`
	TaxValue                 *float64 `json:"tax_value,omitempty" validate:"omitempty,gte=0"`
	OvertimeMultiplier       *float64 `json:"overtime_multiplier,omitempty" validate:"omitempty,gte=1"`
	ShiftHoursPerDay         *int     `json:"shift_hours_per_day,omitempty" validate:"omitempty,gte=1,lte=24"`
	GraceMinutes             *int     `json:"grace_minutes,omitempty" validate:"omitempty,gte=0,lte=240"`
	WeeklyOffDays            []int64  `json:"weekly_off_days,omitempty" validate:"omitempty,max=7,dive,gte=0,lte=6"`
}

// Update applies a partial settings update for the principal's company and
// invalidates the cache entry
func (s *SettingsService) Update(ctx context.Context, req *UpdateRequest) (*repository.CompanySettings, error) {
	p := principal.MustFromContext(ctx)
	if !p.IsAdmin() {
		return nil, errors.Forbidden("settings updates require an admin")
	}

	settings, err := s.repo.GetByCompany(ctx, p.CompanyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("company settings")
		}
		return nil, err
	}

	changed := applyUpdate(settings, req)

	if err := s.repo.Update(ctx, settings); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	s.Invalidate(p.CompanyID)

	if err := s.publisher.Publish(ctx, messaging.EventCompanySettingsSaved, messaging.CompanySettingsSavedEvent{
		CompanyID: p.CompanyID,
		Fields:    changed,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish settings saved event")
	}

	return settings, nil
}

// Invalidate drops the cache entry for a company. Write paths call this;
// time alone is not how the cache stays correct.
func (s *SettingsService) Invalidate(companyID string) {
	s.mu.Lock()
	delete(s.cache, companyID)
	s.mu.Unlock()
}

func applyUpdate(settings *repository.CompanySettings, req *UpdateRequest) map[string]any {
	changed := make(map[string]any)

	if req.AutoCheckoutEnabled != nil {
		settings.AutoCheckoutEnabled = *req.AutoCheckoutEnabled
		changed["auto_checkout_enabled"] = *req.AutoCheckoutEnabled
	}
	if req.AutoCheckoutAfterSeconds != nil {
		settings.AutoCheckoutAfterSeconds = *req.AutoCheckoutAfterSeconds
		changed["auto_checkout_after_seconds"] = *req.AutoCheckoutAfterSeconds
	}
	if req.VerifyOutsideReadings != nil {
		settings.VerifyOutsideReadings = *req.VerifyOutsideReadings
		changed["verify_outside_readings"] = *req.VerifyOutsideReadings
	}
	if req.WorkdaysPerMonth != nil {
		settings.WorkdaysPerMonth = *req.WorkdaysPerMonth
		changed["workdays_per_month"] = *req.WorkdaysPerMonth
	}
	if req.Currency != nil {
		settings.Currency = *req.Currency
		changed["currency"] = *req.Currency
	}
	if req.InsuranceType != nil {
		settings.InsuranceType = *req.InsuranceType
		changed["insurance_type"] = *req.InsuranceType
	}
	if req.InsuranceValue != nil {
		settings.InsuranceValue = decimal.NewFromFloat(*req.InsuranceValue)
		changed["insurance_value"] = *req.InsuranceValue
	}
	if req.TaxType != nil {
		settings.TaxType = *req.TaxType
		changed["tax_type"] = *req.TaxType
	}
	if req.TaxValue != nil {
		settings.TaxValue = decimal.NewFromFloat(*req.TaxValue)
		changed["tax_value"] = *req.TaxValue
	}
	if req.OvertimeMultiplier != nil {
		settings.OvertimeMultiplier = decimal.NewFromFloat(*req.OvertimeMultiplier)
		changed["overtime_multiplier"] = *req.OvertimeMultiplier
	}
	if req.ShiftHoursPerDay != nil {
		settings.ShiftHoursPerDay = *req.ShiftHoursPerDay
		changed["shift_hours_per_day"] = *req.ShiftHoursPerDay
	}
	if req.GraceMinutes != nil {
		settings.GraceMinutes = *req.GraceMinutes
		changed["grace_minutes"] = *req.GraceMinutes
	}
	if req.WeeklyOffDays != nil {
		settings.WeeklyOffDays = req.WeeklyOffDays
		changed["weekly_off_days"] = req.WeeklyOffDays
	}

	return changed
}
