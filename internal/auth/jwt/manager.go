package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/config"
	"github.com/attendly/attendly-backend/pkg/errors"
)

// AdminClaims represents the claims of an admin bearer token
type AdminClaims struct {
	jwt.RegisteredClaims
	AdminID   string `json:"admin_id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name,omitempty"`
}

// EmployeeClaims represents the claims of an employee session token.
// The token is bound to a device and backed by an employee_sessions row
// so it can be revoked server-side.
type EmployeeClaims struct {
	jwt.RegisteredClaims
	EmployeeID string `json:"employee_id"`
	CompanyID  string `json:"company_id"`
	DeviceID   string `json:"device_id"`
	SessionID  string `json:"session_id"`
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg}
}

// GenerateAdminToken generates a signed admin bearer token
func (m *Manager) GenerateAdminToken(adminID, companyID, name string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AdminExpiry)

	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   adminID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		AdminID:   adminID,
		CompanyID: companyID,
		Name:      name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// GenerateEmployeeToken generates a signed employee session token bound to
// the given device and session row
func (m *Manager) GenerateEmployeeToken(employeeID, companyID, deviceID, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.EmployeeExpiry)

	claims := EmployeeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   employeeID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		EmployeeID: employeeID,
		CompanyID:  companyID,
		DeviceID:   deviceID,
		SessionID:  sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ValidateAdminToken validates an admin token and returns the claims
func (m *Manager) ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// ValidateEmployeeToken validates an employee token and returns the claims.
// Callers must additionally check the backing session row for revocation.
func (m *Manager) ValidateEmployeeToken(tokenString string) (*EmployeeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &EmployeeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*EmployeeClaims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}
