package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	companyrepo "github.com/attendly/attendly-backend/internal/company/repository"
	companysvc "github.com/attendly/attendly-backend/internal/company/service"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
	"github.com/attendly/attendly-backend/pkg/principal"
	"github.com/attendly/attendly-backend/pkg/testutil"
)

const (
	testCompanyID  = "11111111-1111-1111-1111-111111111111"
	testEmployeeID = "22222222-2222-2222-2222-222222222222"
	testBranchID   = "33333333-3333-3333-3333-333333333333"
	testShiftID    = "44444444-4444-4444-4444-444444444444"
	testLogID      = "55555555-5555-5555-5555-555555555555"

	// Riyadh branch center used across the admission tests.
	branchLat = 24.7136
	branchLng = 46.6753
)

var employeeTestColumns = []string{
	"id", "company_id", "branch_id", "shift_id", "employee_code", "full_name", "phone",
	"base_monthly_salary", "monthly_allowances", "is_active", "created_at", "updated_at",
}

var branchTestColumns = []string{
	"id", "company_id", "name", "latitude", "longitude", "geofence_radius_m",
	"is_active", "created_at", "updated_at",
}

var ledgerTestColumns = []string{
	"id", "company_id", "employee_id", "branch_id",
	"check_in_time", "check_in_device_time", "check_in_lat", "check_in_lng",
	"check_in_accuracy_m", "check_in_distance_m",
	"check_out_time", "check_out_lat", "check_out_lng", "checkout_type", "checkout_reason",
	"status", "late_minutes", "created_at", "updated_at",
}

func employeeRow(active bool, shiftID interface{}) *sqlmock.Rows {
	return testutil.MockRows(employeeTestColumns...).AddRow(
		testEmployeeID, testCompanyID, testBranchID, shiftID, "EMP-001", "Sara Haddad", "+966500000001",
		"6000", "0", active, time.Now(), time.Now(),
	)
}

func branchRow(active bool, radiusM float64) *sqlmock.Rows {
	return testutil.MockRows(branchTestColumns...).AddRow(
		testBranchID, testCompanyID, "HQ", branchLat, branchLng, radiusM,
		active, time.Now(), time.Now(),
	)
}

func openLogRow(checkInTime time.Time) *sqlmock.Rows {
	return testutil.MockRows(ledgerTestColumns...).AddRow(
		testLogID, testCompanyID, testEmployeeID, testBranchID,
		checkInTime, nil, branchLat, branchLng,
		10.0, 12.0,
		nil, nil, nil, nil, nil,
		"on_time", 0, checkInTime, checkInTime,
	)
}

func newTestAdmissionService(t *testing.T) (*AdmissionService, *testutil.MockDB, *testutil.MockPublisher) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := mockDB.Wrapped()
	log := logger.New("test", "test")
	publisher := testutil.NewMockPublisher()

	settings := companysvc.NewSettingsService(companyrepo.NewSettingsRepository(db), publisher, log)

	svc := NewAdmissionService(
		db,
		repository.NewLedgerRepository(db),
		repository.NewPendingRepository(db),
		repository.NewHeartbeatRepository(db),
		companyrepo.NewCompanyRepository(db),
		companyrepo.NewBranchRepository(db),
		companyrepo.NewShiftRepository(db),
		companyrepo.NewEmployeeRepository(db),
		settings,
		publisher,
		log,
	)
	return svc, mockDB, publisher
}

func employeeCtx() context.Context {
	return principal.WithPrincipal(context.Background(), &principal.Principal{
		SubjectKind: principal.SubjectEmployee,
		SubjectID:   testEmployeeID,
		CompanyID:   testCompanyID,
		DeviceID:    "device-1",
	})
}

func TestCheckIn(t *testing.T) {
	t.Run("admits a late employee and records lateness", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		// 08:45 UTC against an 08:00 shift with 15 grace minutes.
		checkIn := time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC)
		svc.now = func() time.Time { return checkIn }

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, testShiftID))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(true, 100))
		mockDB.ExpectQuery("FROM shifts").WithArgs(testShiftID, testCompanyID).
			WillReturnRows(testutil.MockRows("id", "company_id", "name", "start_time", "end_time", "grace_minutes", "created_at").
				AddRow(testShiftID, testCompanyID, "Morning", "08:00:00", "16:00:00", 15, time.Now()))
		mockDB.ExpectQuery("FROM companies").WithArgs(testCompanyID).
			WillReturnRows(testutil.MockRows("id", "name", "timezone", "is_active", "created_at", "updated_at").
				AddRow(testCompanyID, "Acme", "UTC", true, time.Now(), time.Now()))

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO attendance_logs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		log, err := svc.CheckIn(employeeCtx(), &CheckInRequest{
			Latitude:  branchLat,
			Longitude: branchLng,
			AccuracyM: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, repository.StatusLate, log.Status)
		assert.Equal(t, 30, log.LateMinutes)
		assert.Equal(t, testBranchID, log.BranchID)
		publisher.AssertEventPublished(t, messaging.EventAttendanceCheckedIn)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("inside the grace window is on time", func(t *testing.T) {
		svc, mockDB, _ := newTestAdmissionService(t)

		checkIn := time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)
		svc.now = func() time.Time { return checkIn }

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, testShiftID))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(true, 100))
		mockDB.ExpectQuery("FROM shifts").WithArgs(testShiftID, testCompanyID).
			WillReturnRows(testutil.MockRows("id", "company_id", "name", "start_time", "end_time", "grace_minutes", "created_at").
				AddRow(testShiftID, testCompanyID, "Morning", "08:00:00", "16:00:00", 15, time.Now()))
		mockDB.ExpectQuery("FROM companies").WithArgs(testCompanyID).
			WillReturnRows(testutil.MockRows("id", "name", "timezone", "is_active", "created_at", "updated_at").
				AddRow(testCompanyID, "Acme", "UTC", true, time.Now(), time.Now()))

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO attendance_logs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		log, err := svc.CheckIn(employeeCtx(), &CheckInRequest{
			Latitude:  branchLat,
			Longitude: branchLng,
		})
		require.NoError(t, err)
		assert.Equal(t, repository.StatusOnTime, log.Status)
		assert.Equal(t, 0, log.LateMinutes)
	})

	t.Run("rejects a location outside the geofence", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, nil))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(true, 100))

		// Roughly 712 meters north of the branch center.
		_, err := svc.CheckIn(employeeCtx(), &CheckInRequest{
			Latitude:  24.72,
			Longitude: branchLng,
		})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "OUT_OF_GEOFENCE", appErr.Code)
		assert.Contains(t, appErr.Details["distance_m"], "71")
		assert.Equal(t, "100.0", appErr.Details["geofence_radius_m"])
		publisher.AssertNoEventsPublished(t)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects an inactive employee", func(t *testing.T) {
		svc, mockDB, _ := newTestAdmissionService(t)

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(false, nil))

		_, err := svc.CheckIn(employeeCtx(), &CheckInRequest{Latitude: branchLat, Longitude: branchLng})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "EMPLOYEE_INACTIVE", appErr.Code)
	})

	t.Run("rejects an inactive branch", func(t *testing.T) {
		svc, mockDB, _ := newTestAdmissionService(t)

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, nil))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(false, 100))

		_, err := svc.CheckIn(employeeCtx(), &CheckInRequest{Latitude: branchLat, Longitude: branchLng})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "BRANCH_UNAVAILABLE", appErr.Code)
	})

	t.Run("rejects a second open session", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		checkIn := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return checkIn }

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, nil))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(true, 100))

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnRows(openLogRow(checkIn.Add(-time.Hour)))
		mockDB.ExpectRollback()

		_, err := svc.CheckIn(employeeCtx(), &CheckInRequest{Latitude: branchLat, Longitude: branchLng})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "ALREADY_CHECKED_IN", appErr.Code)
		assert.Equal(t, testLogID, appErr.Details["session_id"])
		publisher.AssertNoEventsPublished(t)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("losing the insert race still names the open session", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		checkIn := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return checkIn }

		mockDB.ExpectQuery("FROM employees").WithArgs(testEmployeeID, testCompanyID).
			WillReturnRows(employeeRow(true, nil))
		mockDB.ExpectQuery("FROM branches").WithArgs(testBranchID, testCompanyID).
			WillReturnRows(branchRow(true, 100))

		// The pre-read sees no open session, then a concurrent check-in
		// commits first and the insert hits the partial unique index.
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO attendance_logs").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_attendance_open_session"})
		mockDB.ExpectRollback()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnRows(openLogRow(checkIn.Add(-time.Minute)))

		_, err := svc.CheckIn(employeeCtx(), &CheckInRequest{Latitude: branchLat, Longitude: branchLng})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "ALREADY_CHECKED_IN", appErr.Code)
		assert.Equal(t, testLogID, appErr.Details["session_id"])
		publisher.AssertNoEventsPublished(t)

		mockDB.ExpectationsWereMet(t)
	})
}

func TestCheckInRequestValidation(t *testing.T) {
	t.Run("zero coordinates are valid", func(t *testing.T) {
		// The equator and the prime meridian are real places.
		require.NoError(t, httputil.Validate(&CheckInRequest{Latitude: 0, Longitude: branchLng, AccuracyM: 10}))
		require.NoError(t, httputil.Validate(&CheckInRequest{Latitude: branchLat, Longitude: 0}))
		require.NoError(t, httputil.Validate(&CheckInRequest{Latitude: 0, Longitude: 0}))
	})

	t.Run("out of range coordinates are rejected", func(t *testing.T) {
		assert.Error(t, httputil.Validate(&CheckInRequest{Latitude: 90.5, Longitude: 0}))
		assert.Error(t, httputil.Validate(&CheckInRequest{Latitude: 0, Longitude: -180.5}))
	})

	t.Run("checkout location is optional but range checked", func(t *testing.T) {
		zero := 0.0
		outOfRange := 181.0
		require.NoError(t, httputil.Validate(&CheckOutRequest{}))
		require.NoError(t, httputil.Validate(&CheckOutRequest{Latitude: &zero, Longitude: &zero}))
		assert.Error(t, httputil.Validate(&CheckOutRequest{Latitude: &zero, Longitude: &outOfRange}))
	})
}

func TestCheckOut(t *testing.T) {
	t.Run("closes the open session and settles its pending state", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		checkIn := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		checkOut := checkIn.Add(8 * time.Hour)
		svc.now = func() time.Time { return checkOut }

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnRows(openLogRow(checkIn))
		mockDB.ExpectExec("UPDATE attendance_logs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec("UPDATE auto_checkout_pendings").
			WithArgs(testLogID, repository.PendingStatusCancelled, repository.CancelReasonManualCheckout).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("DELETE FROM location_heartbeats").
			WithArgs(testEmployeeID, testLogID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		log, err := svc.CheckOut(employeeCtx(), &CheckOutRequest{})
		require.NoError(t, err)
		require.NotNil(t, log.CheckoutType)
		assert.Equal(t, repository.CheckoutTypeManual, *log.CheckoutType)
		assert.Equal(t, checkOut, *log.CheckOutTime)
		publisher.AssertEventPublished(t, messaging.EventAttendanceCheckedOut)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("no open session yields not checked in", func(t *testing.T) {
		svc, mockDB, publisher := newTestAdmissionService(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("check_out_time IS NULL").WithArgs(testEmployeeID).
			WillReturnError(sql.ErrNoRows)
		mockDB.ExpectRollback()

		_, err := svc.CheckOut(employeeCtx(), &CheckOutRequest{})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "NOT_CHECKED_IN", appErr.Code)
		publisher.AssertNoEventsPublished(t)

		mockDB.ExpectationsWereMet(t)
	})
}

func TestLatenessMinutes(t *testing.T) {
	scheduled := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		checkIn time.Time
		grace   int
		want    int
	}{
		{"early arrival", scheduled.Add(-10 * time.Minute), 15, 0},
		{"exactly on time", scheduled, 15, 0},
		{"inside grace", scheduled.Add(14 * time.Minute), 15, 0},
		{"at the grace boundary", scheduled.Add(15 * time.Minute), 15, 0},
		{"one minute past grace", scheduled.Add(16 * time.Minute), 15, 1},
		{"partial minutes do not count", scheduled.Add(16*time.Minute + 59*time.Second), 15, 1},
		{"forty five minutes late", scheduled.Add(45 * time.Minute), 15, 30},
		{"no grace", scheduled.Add(5 * time.Minute), 0, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, latenessMinutes(tc.checkIn, scheduled, tc.grace))
		})
	}
}

func TestScheduledStart(t *testing.T) {
	riyadh, err := time.LoadLocation("Asia/Riyadh")
	require.NoError(t, err)

	// A 05:45 UTC check-in is 08:45 in Riyadh; the shift anchors on the
	// local calendar day.
	checkIn := time.Date(2026, 3, 2, 5, 45, 0, 0, time.UTC)
	scheduled, err := scheduledStart(checkIn, riyadh, "08:00:00")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, riyadh).Unix(), scheduled.Unix())
	assert.Equal(t, 30, latenessMinutes(checkIn, scheduled, 15))
}
