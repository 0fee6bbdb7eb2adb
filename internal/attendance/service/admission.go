package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	companyrepo "github.com/attendly/attendly-backend/internal/company/repository"
	companysvc "github.com/attendly/attendly-backend/internal/company/service"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/geo"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// AdmissionService guards the ledger's write path. Every check-in passes the
// employee, branch and geofence gates before a row is written; every
// check-out settles the session's pending state in the same transaction.
type AdmissionService struct {
	db         *database.DB
	ledger     *repository.LedgerRepository
	pendings   *repository.PendingRepository
	heartbeats *repository.HeartbeatRepository
	companies  *companyrepo.CompanyRepository
	branches   *companyrepo.BranchRepository
	shifts     *companyrepo.ShiftRepository
	employees  *companyrepo.EmployeeRepository
	settings   *companysvc.SettingsService
	publisher  EventPublisher
	logger     *logger.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(
	db *database.DB,
	ledger *repository.LedgerRepository,
	pendings *repository.PendingRepository,
	heartbeats *repository.HeartbeatRepository,
	companies *companyrepo.CompanyRepository,
	branches *companyrepo.BranchRepository,
	shifts *companyrepo.ShiftRepository,
	employees *companyrepo.EmployeeRepository,
	settings *companysvc.SettingsService,
	publisher EventPublisher,
	log *logger.Logger,
) *AdmissionService {
	return &AdmissionService{
		db:         db,
		ledger:     ledger,
		pendings:   pendings,
		heartbeats: heartbeats,
		companies:  companies,
		branches:   branches,
		shifts:     shifts,
		employees:  employees,
		settings:   settings,
		publisher:  publisher,
		logger:     log,
		now:        time.Now,
	}
}

// CheckInRequest carries the client-reported location for a check-in.
// The employee and company identities come from the principal, never from
// the payload. The latitude/longitude validators accept zero, which is a
// real coordinate on the equator and the prime meridian.
type CheckInRequest struct {
	Latitude   float64    `json:"latitude" validate:"latitude"`
	Longitude  float64    `json:"longitude" validate:"longitude"`
	AccuracyM  float64    `json:"accuracy_m" validate:"gte=0"`
	DeviceTime *time.Time `json:"device_time,omitempty"`
}

// CheckOutRequest carries the optional client-reported checkout location.
type CheckOutRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// CheckIn admits an employee into an attendance session. Gates run in order:
// active employee, active branch, geofence. The open-session check and the
// insert share a serializable transaction, with the partial unique index as
// the backstop under concurrent requests.
func (s *AdmissionService) CheckIn(ctx context.Context, req *CheckInRequest) (*repository.AttendanceLog, error) {
	p := principal.MustFromContext(ctx)

	employee, err := s.employees.GetByID(ctx, p.CompanyID, p.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("employee")
		}
		return nil, err
	}
	if !employee.IsActive {
		return nil, errors.EmployeeInactive()
	}

	branch, err := s.branches.GetByID(ctx, p.CompanyID, employee.BranchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.BranchUnavailable()
		}
		return nil, err
	}
	if !branch.IsActive {
		return nil, errors.BranchUnavailable()
	}

	distance := geo.DistanceM(req.Latitude, req.Longitude, branch.Latitude, branch.Longitude)
	if distance > branch.GeofenceRadiusM {
		return nil, errors.OutOfGeofence(distance, branch.GeofenceRadiusM)
	}

	checkInTime := s.now()
	status, lateMinutes, shiftID, err := s.classifyLateness(ctx, p.CompanyID, employee, checkInTime)
	if err != nil {
		return nil, err
	}

	log := &repository.AttendanceLog{
		CompanyID:         p.CompanyID,
		EmployeeID:        employee.ID,
		BranchID:          branch.ID,
		CheckInTime:       checkInTime,
		CheckInDeviceTime: req.DeviceTime,
		CheckInLat:        req.Latitude,
		CheckInLng:        req.Longitude,
		CheckInAccuracyM:  req.AccuracyM,
		CheckInDistanceM:  distance,
		Status:            status,
		LateMinutes:       lateMinutes,
	}

	err = s.db.Serializable(ctx, func(ctx context.Context) error {
		if open, err := s.ledger.FindOpen(ctx, employee.ID); err == nil {
			return errors.AlreadyCheckedIn().WithDetails(map[string]string{
				"session_id": open.ID,
			})
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err := s.ledger.Insert(ctx, log)
		return err
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			// A concurrent check-in won the insert race. Re-read outside the
			// aborted transaction so the response still names the open session.
			if mapped.Code == "ALREADY_CHECKED_IN" {
				if open, findErr := s.ledger.FindOpen(ctx, employee.ID); findErr == nil {
					mapped = mapped.WithDetails(map[string]string{
						"session_id": open.ID,
					})
				}
			}
			return nil, mapped
		}
		return nil, err
	}

	s.publish(ctx, messaging.EventAttendanceCheckedIn, messaging.AttendanceCheckedInEvent{
		AttendanceLogID: log.ID,
		EmployeeID:      employee.ID,
		CompanyID:       p.CompanyID,
		BranchID:        branch.ID,
		ShiftID:         shiftID,
		CheckInTime:     log.CheckInTime,
		LatenessMinutes: lateMinutes,
	})

	s.logger.Info().
		Str("employee_id", employee.ID).
		Str("attendance_log_id", log.ID).
		Int("late_minutes", lateMinutes).
		Float64("distance_m", distance).
		Msg("employee checked in")

	return log, nil
}

// CheckOut closes the employee's open session manually. Cancelling the
// session's pending auto-checkout and dropping its heartbeat happen in the
// same transaction as the close, so the reconciler never sees a live pending
// for a closed session.
func (s *AdmissionService) CheckOut(ctx context.Context, req *CheckOutRequest) (*repository.AttendanceLog, error) {
	p := principal.MustFromContext(ctx)

	var log *repository.AttendanceLog
	checkOutTime := s.now()

	err := s.db.Serializable(ctx, func(ctx context.Context) error {
		open, err := s.ledger.FindOpen(ctx, p.SubjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.NotCheckedIn()
			}
			return err
		}
		if open.CompanyID != p.CompanyID {
			return errors.TenantMismatch()
		}

		closed, err := s.ledger.Close(ctx, open.ID, checkOutTime, req.Latitude, req.Longitude, repository.CheckoutTypeManual, "")
		if err != nil {
			return err
		}
		if !closed {
			return errors.NotCheckedIn()
		}

		if _, err := s.pendings.CancelForLog(ctx, open.ID, repository.CancelReasonManualCheckout); err != nil {
			return err
		}
		if err := s.heartbeats.Delete(ctx, p.SubjectID, open.ID); err != nil {
			return err
		}

		open.CheckOutTime = &checkOutTime
		open.CheckOutLat = req.Latitude
		open.CheckOutLng = req.Longitude
		checkoutType := repository.CheckoutTypeManual
		open.CheckoutType = &checkoutType
		log = open
		return nil
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	s.publish(ctx, messaging.EventAttendanceCheckedOut, messaging.AttendanceCheckedOutEvent{
		AttendanceLogID: log.ID,
		EmployeeID:      log.EmployeeID,
		CompanyID:       log.CompanyID,
		CheckInTime:     log.CheckInTime,
		CheckOutTime:    checkOutTime,
		CheckoutType:    repository.CheckoutTypeManual,
		WorkMinutes:     int(checkOutTime.Sub(log.CheckInTime) / time.Minute),
	})

	s.logger.Info().
		Str("employee_id", log.EmployeeID).
		Str("attendance_log_id", log.ID).
		Msg("employee checked out")

	return log, nil
}

// CurrentSession is the open session together with its live auto-checkout
// proposal, if one exists. Reconnecting clients resume their countdown from
// the pending row's ends_at.
type CurrentSession struct {
	Session *repository.AttendanceLog       `json:"session"`
	Pending *repository.AutoCheckoutPending `json:"pending,omitempty"`
}

// Current returns the employee's open session, if any.
func (s *AdmissionService) Current(ctx context.Context) (*CurrentSession, error) {
	p := principal.MustFromContext(ctx)

	log, err := s.ledger.FindOpen(ctx, p.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotCheckedIn()
		}
		return nil, err
	}

	current := &CurrentSession{Session: log}

	pending, err := s.pendings.FindPendingForLog(ctx, log.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	} else {
		current.Pending = pending
	}

	return current, nil
}

// History returns the employee's ledger rows inside [from, to).
func (s *AdmissionService) History(ctx context.Context, employeeID string, from, to time.Time) ([]repository.AttendanceLog, error) {
	p := principal.MustFromContext(ctx)
	if !p.OwnsRow(p.CompanyID, employeeID) {
		return nil, errors.Forbidden("attendance history belongs to another employee")
	}

	return s.ledger.ListByEmployee(ctx, p.CompanyID, employeeID, from, to)
}

// classifyLateness computes lateness against the employee's shift start in
// the company timezone. No shift means no schedule to be late against.
func (s *AdmissionService) classifyLateness(ctx context.Context, companyID string, employee *companyrepo.Employee, checkInTime time.Time) (string, int, string, error) {
	if employee.ShiftID == nil {
		return repository.StatusOnTime, 0, "", nil
	}

	shift, err := s.shifts.GetByID(ctx, companyID, *employee.ShiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.StatusOnTime, 0, "", nil
		}
		return "", 0, "", err
	}

	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return "", 0, "", err
	}

	loc, err := time.LoadLocation(company.Timezone)
	if err != nil {
		return "", 0, "", errors.Internal(fmt.Sprintf("company timezone %q is invalid", company.Timezone))
	}

	grace := shift.GraceMinutes
	if grace == 0 {
		settings, err := s.settings.Get(ctx, companyID)
		if err != nil {
			return "", 0, "", err
		}
		grace = settings.GraceMinutes
	}

	scheduled, err := scheduledStart(checkInTime, loc, shift.StartTime)
	if err != nil {
		return "", 0, "", err
	}

	late := latenessMinutes(checkInTime, scheduled, grace)
	status := repository.StatusOnTime
	if late > 0 {
		status = repository.StatusLate
	}

	return status, late, shift.ID, nil
}

// scheduledStart anchors a wall-clock shift start ("08:00:00") on the
// check-in's local calendar day.
func scheduledStart(checkInTime time.Time, loc *time.Location, startWall string) (time.Time, error) {
	wall, err := time.Parse("15:04:05", startWall)
	if err != nil {
		// TIME columns may scan without seconds.
		wall, err = time.Parse("15:04", startWall)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid shift start time %q: %w", startWall, err)
		}
	}

	local := checkInTime.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), 0, loc), nil
}

// latenessMinutes is whole minutes past the scheduled start beyond the grace
// window, floored at zero. Partial minutes do not count.
func latenessMinutes(checkInTime, scheduled time.Time, graceMinutes int) int {
	if !checkInTime.After(scheduled) {
		return 0
	}

	late := int(checkInTime.Sub(scheduled)/time.Minute) - graceMinutes
	if late < 0 {
		return 0
	}
	return late
}

// publish sends a domain event best effort. Consumers reconcile from the
// ledger if an event is lost.
func (s *AdmissionService) publish(ctx context.Context, eventType string, data interface{}) {
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
