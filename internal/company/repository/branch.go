package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Branch represents a geofenced branch location
type Branch struct {
	ID              string    `db:"id" json:"id"`
	CompanyID       string    `db:"company_id" json:"company_id"`
	Name            string    `db:"name" json:"name"`
	Latitude        float64   `db:"latitude" json:"latitude"`
	Longitude       float64   `db:"longitude" json:"longitude"`
	GeofenceRadiusM float64   `db:"geofence_radius_m" json:"geofence_radius_m"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BranchRepository handles branch persistence
type BranchRepository struct {
	db *database.DB
}

// NewBranchRepository creates a new branch repository
func NewBranchRepository(db *database.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// Create inserts a new branch
func (r *BranchRepository) Create(ctx context.Context, companyID, name string, lat, lng, radiusM float64) (*Branch, error) {
	branch := &Branch{
		ID:              uuid.New().String(),
		CompanyID:       companyID,
		Name:            name,
		Latitude:        lat,
		Longitude:       lng,
		GeofenceRadiusM: radiusM,
		IsActive:        true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	query := `
		INSERT INTO branches (id, company_id, name, latitude, longitude, geofence_radius_m, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		branch.ID,
		branch.CompanyID,
		branch.Name,
		branch.Latitude,
		branch.Longitude,
		branch.GeofenceRadiusM,
		branch.IsActive,
		branch.CreatedAt,
		branch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return branch, nil
}

// GetByID gets a branch by ID, scoped to the company
func (r *BranchRepository) GetByID(ctx context.Context, companyID, id string) (*Branch, error) {
	var branch Branch
	query := `
		SELECT id, company_id, name, latitude, longitude, geofence_radius_m, is_active, created_at, updated_at
		FROM branches
		WHERE id = $1 AND company_id = $2
	`

	if err := r.db.GetContext(ctx, &branch, query, id, companyID); err != nil {
		return nil, err
	}

	return &branch, nil
}

// ListByCompany lists all branches of a company
func (r *BranchRepository) ListByCompany(ctx context.Context, companyID string) ([]Branch, error) {
	branches := make([]Branch, 0)
	query := `
		SELECT id, company_id, name, latitude, longitude, geofence_radius_m, is_active, created_at, updated_at
		FROM branches
		WHERE company_id = $1
		ORDER BY name
	`

	if err := r.db.SelectContext(ctx, &branches, query, companyID); err != nil {
		return nil, err
	}

	return branches, nil
}
