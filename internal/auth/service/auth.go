package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/internal/auth/jwt"
	"github.com/attendly/attendly-backend/internal/auth/repository"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// EmployeeRecord is the directory view the gatekeeper needs to resolve
// credentials against authoritative storage.
type EmployeeRecord struct {
	ID        string `db:"id"`
	CompanyID string `db:"company_id"`
	IsActive  bool   `db:"is_active"`
}

// EmployeeDirectory resolves employees for login and token validation.
// The concrete implementation lives in the company repository package.
type EmployeeDirectory interface {
	FindByLoginCode(ctx context.Context, employeeCode, phone string) (*EmployeeRecord, error)
	FindByID(ctx context.Context, employeeID string) (*EmployeeRecord, error)
}

// AuthService derives a Principal from credentials. The company id is always
// resolved from storage, never taken from the request payload.
type AuthService struct {
	sessions   *repository.SessionRepository
	directory  EmployeeDirectory
	jwtManager *jwt.Manager
	logger     *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(sessions *repository.SessionRepository, directory EmployeeDirectory, jwtManager *jwt.Manager, log *logger.Logger) *AuthService {
	return &AuthService{
		sessions:   sessions,
		directory:  directory,
		jwtManager: jwtManager,
		logger:     log,
	}
}

// LoginRequest represents an employee login request. The OTP / device
// activation flow in front of this endpoint is an external collaborator;
// by the time this runs the device is trusted.
type LoginRequest struct {
	EmployeeCode string `json:"employee_code" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	DeviceID     string `json:"device_id" validate:"required"`
}

// LoginResponse represents an employee login response
type LoginResponse struct {
	Token      string    `json:"token"`
	TokenType  string    `json:"token_type"`
	ExpiresAt  time.Time `json:"expires_at"`
	EmployeeID string    `json:"employee_id"`
	CompanyID  string    `json:"company_id"`
}

// LoginEmployee authenticates an employee and issues a device-bound session token
func (s *AuthService) LoginEmployee(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	emp, err := s.directory.FindByLoginCode(ctx, req.EmployeeCode, req.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Unauthenticated("unknown employee credentials")
		}
		s.logger.Error().Err(err).Msg("employee lookup failed")
		return nil, errors.Internal("failed to resolve employee")
	}
	if !emp.IsActive {
		return nil, errors.EmployeeInactive()
	}

	sessionID := uuid.New().String()

	token, expiresAt, err := s.jwtManager.GenerateEmployeeToken(emp.ID, emp.CompanyID, req.DeviceID, sessionID)
	if err != nil {
		return nil, errors.Internal("failed to generate token")
	}

	// The session row stores the token hash; a later Authorize both parses
	// the JWT and checks the row, so revocation is effective immediately.
	if _, err := s.sessions.Create(ctx, emp.CompanyID, emp.ID, req.DeviceID, token, expiresAt); err != nil {
		s.logger.Error().Err(err).Msg("failed to create employee session")
		return nil, errors.Internal("failed to create session")
	}

	return &LoginResponse{
		Token:      token,
		TokenType:  "Bearer",
		ExpiresAt:  expiresAt,
		EmployeeID: emp.ID,
		CompanyID:  emp.CompanyID,
	}, nil
}

// Logout revokes the session backing the given employee token. Idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.jwtManager.ValidateEmployeeToken(token)
	if err != nil {
		// An expired or garbled token has nothing live to revoke.
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to revoke session")
	}
	return nil
}

// AuthorizeEmployee validates an employee token against its backing session
// row and returns the principal
func (s *AuthService) AuthorizeEmployee(ctx context.Context, token string) (*principal.Principal, error) {
	claims, err := s.jwtManager.ValidateEmployeeToken(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetLive(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Unauthenticated("session revoked or expired")
		}
		s.logger.Error().Err(err).Msg("session lookup failed")
		return nil, errors.Internal("failed to resolve session")
	}

	if session.TokenHash != repository.HashToken(token) {
		return nil, errors.TokenInvalid()
	}
	if session.DeviceID != claims.DeviceID || session.EmployeeID != claims.EmployeeID {
		return nil, errors.TokenInvalid()
	}

	return &principal.Principal{
		SubjectKind: principal.SubjectEmployee,
		SubjectID:   session.EmployeeID,
		CompanyID:   session.CompanyID,
		DeviceID:    session.DeviceID,
	}, nil
}

// AuthorizeAdmin validates an admin bearer token and returns the principal
func (s *AuthService) AuthorizeAdmin(ctx context.Context, token string) (*principal.Principal, error) {
	claims, err := s.jwtManager.ValidateAdminToken(token)
	if err != nil {
		return nil, err
	}

	return &principal.Principal{
		SubjectKind: principal.SubjectAdmin,
		SubjectID:   claims.AdminID,
		CompanyID:   claims.CompanyID,
	}, nil
}
