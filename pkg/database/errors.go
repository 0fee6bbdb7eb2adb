package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/attendly/attendly-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful
// messages. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueConstraint(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsRetryable reports whether the error is a transient serialization or
// deadlock failure that the caller may retry with backoff. Admission never
// retries silently; the reconciler relies on the next tick instead.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", // serialization_failure
		"40P01": // deadlock_detected
		return true
	}
	return false
}

// mapUniqueConstraint maps unique index violations to domain errors. The
// partial unique index on open sessions is how the one-open-session
// invariant survives concurrent check-ins, so its violation is the
// documented ALREADY_CHECKED_IN outcome, not an internal error.
func mapUniqueConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "open_session"):
		return errors.AlreadyCheckedIn()
	case strings.Contains(constraint, "pending"):
		return errors.Conflict("a pending auto-checkout already exists for this session")
	case strings.Contains(constraint, "settings_company"):
		return errors.Conflict("company settings already provisioned")
	default:
		return errors.Conflict("a record with these values already exists")
	}
}

// mapCheckConstraint maps specific CHECK constraint names to useful messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "company_match"):
		return errors.TenantMismatch()
	case strings.Contains(constraint, "checkout_after_checkin"):
		return errors.BadRequest("check-out must not precede check-in")
	case strings.Contains(constraint, "geofence_radius_positive"):
		return errors.Validation(map[string]string{
			"geofence_radius_m": "must be greater than zero",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}
