package service

import (
	"context"

	"github.com/attendly/attendly-backend/internal/company/repository"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// CompanyService handles company provisioning
type CompanyService struct {
	db        *database.DB
	companies *repository.CompanyRepository
	settings  *repository.SettingsRepository
	publisher EventPublisher
	logger    *logger.Logger
}

// NewCompanyService creates a new company service
func NewCompanyService(db *database.DB, companies *repository.CompanyRepository, settings *repository.SettingsRepository, publisher EventPublisher, log *logger.Logger) *CompanyService {
	return &CompanyService{
		db:        db,
		companies: companies,
		settings:  settings,
		publisher: publisher,
		logger:    log,
	}
}

// ProvisionRequest represents a company provisioning request
type ProvisionRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Timezone string `json:"timezone" validate:"required"`
}

// ProvisionResponse carries the new company and its default settings
type ProvisionResponse struct {
	Company  *repository.Company         `json:"company"`
	Settings *repository.CompanySettings `json:"settings"`
}

// Provision creates a company together with its default settings row in a
// single transaction, so no company ever exists without settings.
func (s *CompanyService) Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionResponse, error) {
	var (
		company  *repository.Company
		settings *repository.CompanySettings
	)

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		company, err = s.companies.Create(ctx, req.Name, req.Timezone)
		if err != nil {
			return err
		}

		settings, err = s.settings.CreateDefaults(ctx, company.ID)
		return err
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		s.logger.Error().Err(err).Msg("company provisioning failed")
		return nil, errors.Internal("failed to provision company")
	}

	// Best effort; consumers reconcile from storage if an event is lost.
	if err := s.publisher.Publish(ctx, messaging.EventCompanyProvisioned, messaging.CompanyProvisionedEvent{
		CompanyID: company.ID,
		Name:      company.Name,
		Timezone:  company.Timezone,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish company provisioned event")
	}

	s.logger.Info().
		Str("company_id", company.ID).
		Str("timezone", company.Timezone).
		Msg("company provisioned")

	return &ProvisionResponse{Company: company, Settings: settings}, nil
}

// Get gets a company by id
func (s *CompanyService) Get(ctx context.Context, companyID string) (*repository.Company, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, errors.NotFound("company")
	}
	return company, nil
}
