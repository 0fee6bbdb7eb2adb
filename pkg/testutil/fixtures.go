package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CompanyFixture represents test company data
type CompanyFixture struct {
	ID        string
	Name      string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
}

// BranchFixture represents test branch data
type BranchFixture struct {
	ID              string
	CompanyID       string
	Name            string
	Latitude        float64
	Longitude       float64
	GeofenceRadiusM float64
	IsActive        bool
	CreatedAt       time.Time
}

// ShiftFixture represents test shift data
type ShiftFixture struct {
	ID           string
	CompanyID    string
	Name         string
	StartTime    string
	EndTime      string
	GraceMinutes int
}

// EmployeeFixture represents test employee data
type EmployeeFixture struct {
	ID                string
	CompanyID         string
	BranchID          string
	ShiftID           *string
	EmployeeCode      string
	FullName          string
	Phone             string
	BaseMonthlySalary float64
	MonthlyAllowances float64
	IsActive          bool
	CreatedAt         time.Time
}

// SessionFixture represents test employee session data
type SessionFixture struct {
	ID         string
	CompanyID  string
	EmployeeID string
	DeviceID   string
	Token      string
	TokenHash  string
	ExpiresAt  time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Company creates a company fixture with defaults
func (f *FixtureFactory) Company(opts ...func(*CompanyFixture)) CompanyFixture {
	seq := f.nextSeq()

	company := CompanyFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Test Company %d", seq),
		Timezone:  "UTC",
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&company)
	}

	return company
}

// WithTimezone sets the company timezone
func WithTimezone(tz string) func(*CompanyFixture) {
	return func(c *CompanyFixture) {
		c.Timezone = tz
	}
}

// Branch creates a branch fixture with defaults. The default coordinates
// carry a 100 m geofence.
func (f *FixtureFactory) Branch(companyID string, opts ...func(*BranchFixture)) BranchFixture {
	seq := f.nextSeq()

	branch := BranchFixture{
		ID:              uuid.New().String(),
		CompanyID:       companyID,
		Name:            fmt.Sprintf("Branch %d", seq),
		Latitude:        24.7136,
		Longitude:       46.6753,
		GeofenceRadiusM: 100,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&branch)
	}

	return branch
}

// WithGeofence sets the branch coordinates and radius
func WithGeofence(lat, lng, radiusM float64) func(*BranchFixture) {
	return func(b *BranchFixture) {
		b.Latitude = lat
		b.Longitude = lng
		b.GeofenceRadiusM = radiusM
	}
}

// WithBranchActive sets the branch active flag
func WithBranchActive(active bool) func(*BranchFixture) {
	return func(b *BranchFixture) {
		b.IsActive = active
	}
}

// Shift creates a shift fixture with defaults (08:00-16:00, 15 min grace)
func (f *FixtureFactory) Shift(companyID string, opts ...func(*ShiftFixture)) ShiftFixture {
	seq := f.nextSeq()

	shift := ShiftFixture{
		ID:           uuid.New().String(),
		CompanyID:    companyID,
		Name:         fmt.Sprintf("Shift %d", seq),
		StartTime:    "08:00:00",
		EndTime:      "16:00:00",
		GraceMinutes: 15,
	}

	for _, opt := range opts {
		opt(&shift)
	}

	return shift
}

// WithShiftWindow sets the shift start/end times and grace
func WithShiftWindow(start, end string, graceMinutes int) func(*ShiftFixture) {
	return func(s *ShiftFixture) {
		s.StartTime = start
		s.EndTime = end
		s.GraceMinutes = graceMinutes
	}
}

// Employee creates an employee fixture with defaults
func (f *FixtureFactory) Employee(companyID, branchID string, opts ...func(*EmployeeFixture)) EmployeeFixture {
	seq := f.nextSeq()

	emp := EmployeeFixture{
		ID:                uuid.New().String(),
		CompanyID:         companyID,
		BranchID:          branchID,
		EmployeeCode:      fmt.Sprintf("EMP-%04d", seq),
		FullName:          fmt.Sprintf("Employee %d", seq),
		Phone:             fmt.Sprintf("+9665%08d", seq),
		BaseMonthlySalary: 6000,
		MonthlyAllowances: 0,
		IsActive:          true,
		CreatedAt:         time.Now(),
	}

	for _, opt := range opts {
		opt(&emp)
	}

	return emp
}

// WithShift assigns the employee to a shift
func WithShift(shiftID string) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.ShiftID = &shiftID
	}
}

// WithSalary sets the employee's base monthly salary and allowances
func WithSalary(salary, allowances float64) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.BaseMonthlySalary = salary
		e.MonthlyAllowances = allowances
	}
}

// WithEmployeeActive sets the employee active flag
func WithEmployeeActive(active bool) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.IsActive = active
	}
}

// Session creates an employee session fixture with a plaintext token and
// its SHA-256 hash, the way the auth repository stores it
func (f *FixtureFactory) Session(companyID, employeeID string, opts ...func(*SessionFixture)) SessionFixture {
	seq := f.nextSeq()
	token := fmt.Sprintf("test-session-token-%d-%s", seq, uuid.New().String())
	hash := sha256.Sum256([]byte(token))

	session := SessionFixture{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		EmployeeID: employeeID,
		DeviceID:   fmt.Sprintf("device-%d", seq),
		Token:      token,
		TokenHash:  hex.EncodeToString(hash[:]),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}

	for _, opt := range opts {
		opt(&session)
	}

	return session
}

// WithDevice sets the session device id
func WithDevice(deviceID string) func(*SessionFixture) {
	return func(s *SessionFixture) {
		s.DeviceID = deviceID
	}
}

// WithExpiry sets the session expiry
func WithExpiry(at time.Time) func(*SessionFixture) {
	return func(s *SessionFixture) {
		s.ExpiresAt = at
	}
}

// BcryptHash returns a low-cost bcrypt hash for test credentials
func BcryptHash(secret string) string {
	hash, _ := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	return string(hash)
}
