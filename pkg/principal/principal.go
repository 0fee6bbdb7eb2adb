// Package principal carries the server-derived identity that scopes every
// request: who the subject is (admin or employee) and which company they
// belong to. The principal is resolved from credentials by the auth service
// and threaded through the call chain via context; it is never reconstructed
// from request payload fields.
package principal

import (
	"context"
	"errors"
)

// SubjectKind distinguishes the two capability levels the core knows about.
type SubjectKind string

const (
	SubjectAdmin    SubjectKind = "admin"
	SubjectEmployee SubjectKind = "employee"
	// SubjectSystem is used by the scheduled reconciler and the internal
	// trigger endpoint. It is not tenant-scoped.
	SubjectSystem SubjectKind = "system"
)

// Principal identifies the authenticated subject of a request.
type Principal struct {
	SubjectKind SubjectKind `json:"subject_kind"`
	SubjectID   string      `json:"subject_id"`
	CompanyID   string      `json:"company_id"`
	// DeviceID is set for employee sessions (device-bound trust).
	DeviceID string `json:"device_id,omitempty"`
}

// IsAdmin reports whether the principal may perform administrative mutations
// within its company.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.SubjectKind == SubjectAdmin
}

// IsEmployee reports whether the principal is an employee subject.
func (p *Principal) IsEmployee() bool {
	return p != nil && p.SubjectKind == SubjectEmployee
}

// IsSystem reports whether the principal represents the platform itself.
func (p *Principal) IsSystem() bool {
	return p != nil && p.SubjectKind == SubjectSystem
}

// OwnsRow reports whether the principal may touch a row belonging to the
// given company and employee. Admins may touch any row of their company;
// employees only their own.
func (p *Principal) OwnsRow(companyID, employeeID string) bool {
	if p == nil {
		return false
	}
	if p.IsSystem() {
		return true
	}
	if p.CompanyID != companyID {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.SubjectID == employeeID
}

// System returns the principal used by background jobs.
func System() *Principal {
	return &Principal{SubjectKind: SubjectSystem, SubjectID: "system"}
}

// contextKey is a private type for context keys to prevent collisions
type contextKey struct{}

// ErrNoPrincipal is returned when no principal is attached to the context.
var ErrNoPrincipal = errors.New("no principal in context")

// WithPrincipal returns a new context carrying the principal.
// This should be called by middleware after the auth service resolves the
// credentials against authoritative storage.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal from the context.
func FromContext(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// MustFromContext extracts the principal and panics if absent. Use only
// behind middleware that guarantees a principal.
func MustFromContext(ctx context.Context) *Principal {
	p, err := FromContext(ctx)
	if err != nil {
		panic("principal not found in context")
	}
	return p
}
