package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend/pkg/database"
)

// Session represents a device-bound employee session
type Session struct {
	ID         string     `db:"id"`
	CompanyID  string     `db:"company_id"`
	EmployeeID string     `db:"employee_id"`
	DeviceID   string     `db:"device_id"`
	TokenHash  string     `db:"token_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// SessionRepository handles employee session persistence
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session row for the given employee and device.
// Any prior sessions on the same device are revoked first, so a device
// carries at most one live session.
func (r *SessionRepository) Create(ctx context.Context, companyID, employeeID, deviceID, token string, expiresAt time.Time) (*Session, error) {
	session := &Session{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		EmployeeID: employeeID,
		DeviceID:   deviceID,
		TokenHash:  HashToken(token),
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}

	err := r.db.Transaction(ctx, func(ctx context.Context) error {
		revoke := `
			UPDATE employee_sessions
			SET revoked_at = NOW()
			WHERE employee_id = $1 AND device_id = $2 AND revoked_at IS NULL
		`
		if _, err := r.db.ExecContext(ctx, revoke, employeeID, deviceID); err != nil {
			return err
		}

		insert := `
			INSERT INTO employee_sessions (id, company_id, employee_id, device_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := r.db.ExecContext(ctx, insert,
			session.ID,
			session.CompanyID,
			session.EmployeeID,
			session.DeviceID,
			session.TokenHash,
			session.ExpiresAt,
			session.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetLive gets a non-revoked, non-expired session by ID
func (r *SessionRepository) GetLive(ctx context.Context, id string) (*Session, error) {
	var session Session
	query := `
		SELECT id, company_id, employee_id, device_id, token_hash, expires_at, revoked_at, created_at
		FROM employee_sessions
		WHERE id = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`

	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}

	return &session, nil
}

// Revoke revokes a session by ID. Idempotent.
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE employee_sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// RevokeAllForEmployee revokes every live session of an employee, used when
// an admin deactivates the employee
func (r *SessionRepository) RevokeAllForEmployee(ctx context.Context, employeeID string) error {
	query := `UPDATE employee_sessions SET revoked_at = NOW() WHERE employee_id = $1 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, employeeID)
	return err
}

// DeleteExpired removes sessions whose expiry passed more than the given
// retention ago. Called by the reconciler's cleanup phase.
func (r *SessionRepository) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM employee_sessions WHERE expires_at < NOW() - ($1 * INTERVAL '1 second')`
	res, err := r.db.ExecContext(ctx, query, int64(retention.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HashToken returns the hex-encoded SHA-256 of a session token. Tokens are
// stored hashed so a database leak does not yield usable credentials.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
