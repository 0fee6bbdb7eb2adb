package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Company represents a tenant root
type Company struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Timezone  string    `db:"timezone" json:"timezone"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CompanyRepository handles company persistence
type CompanyRepository struct {
	db *database.DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *database.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a new company
func (r *CompanyRepository) Create(ctx context.Context, name, timezone string) (*Company, error) {
	company := &Company{
		ID:        uuid.New().String(),
		Name:      name,
		Timezone:  timezone,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO companies (id, name, timezone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		company.ID,
		company.Name,
		company.Timezone,
		company.IsActive,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return company, nil
}

// GetByID gets a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*Company, error) {
	var company Company
	query := `
		SELECT id, name, timezone, is_active, created_at, updated_at
		FROM companies
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, &company, query, id); err != nil {
		return nil, err
	}

	return &company, nil
}
