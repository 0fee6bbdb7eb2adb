package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/config"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
	"github.com/attendly/attendly-backend/pkg/testutil"
)

const testPendingID = "66666666-6666-6666-6666-666666666666"

var pendingTestColumns = []string{
	"id", "company_id", "employee_id", "attendance_log_id", "reason", "ends_at", "status",
	"created_at", "cancelled_at", "cancel_reason", "done_at",
}

var heartbeatTestColumns = []string{
	"employee_id", "attendance_log_id", "company_id", "last_seen_at", "in_branch", "gps_ok", "reason",
}

func duePendingRow(id, reason string, endsAt time.Time) *sqlmock.Rows {
	return testutil.MockRows(pendingTestColumns...).AddRow(
		id, testCompanyID, testEmployeeID, testLogID, reason, endsAt, repository.PendingStatusPending,
		endsAt.Add(-15*time.Minute), nil, nil, nil,
	)
}

func closedLogRow(checkInTime, checkOutTime time.Time) *sqlmock.Rows {
	return testutil.MockRows(ledgerTestColumns...).AddRow(
		testLogID, testCompanyID, testEmployeeID, testBranchID,
		checkInTime, nil, branchLat, branchLng,
		10.0, 12.0,
		checkOutTime, nil, nil, repository.CheckoutTypeManual, nil,
		"on_time", 0, checkInTime, checkOutTime,
	)
}

func newTestReconciler(t *testing.T) (*Reconciler, *testutil.MockDB, *testutil.MockPublisher) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := mockDB.Wrapped()
	publisher := testutil.NewMockPublisher()

	cfg := &config.ReconcilerConfig{
		Interval:       time.Minute,
		BatchSize:      500,
		RowTimeout:     10 * time.Second,
		HeartbeatGrace: 2 * time.Minute,
		StaleAfter:     20 * time.Hour,
	}

	rec := NewReconciler(
		db,
		repository.NewLedgerRepository(db),
		repository.NewPendingRepository(db),
		repository.NewHeartbeatRepository(db),
		publisher,
		cfg,
		logger.New("test", "test"),
	)
	return rec, mockDB, publisher
}

func expectNoStaleSessions(mockDB *testutil.MockDB) {
	mockDB.ExpectQuery("FROM attendance_logs").
		WillReturnRows(testutil.MockRows(ledgerTestColumns...))
}

func TestReconcilerExecutesDuePending(t *testing.T) {
	rec, mockDB, publisher := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	checkIn := now.Add(-4 * time.Hour)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonGPSBlocked, endsAt))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnRows(openLogRow(checkIn))
	// Heartbeat is stale: last seen well before the deadline window.
	mockDB.ExpectQuery("FROM location_heartbeats").WithArgs(testEmployeeID, testLogID).
		WillReturnRows(testutil.MockRows(heartbeatTestColumns...).
			AddRow(testEmployeeID, testLogID, testCompanyID, endsAt.Add(-30*time.Minute), true, true, nil))
	// The close carries the reconciler's wall clock, not the spent deadline.
	mockDB.ExpectExec("UPDATE attendance_logs").
		WithArgs(testLogID, now, nil, nil, repository.CheckoutTypeAuto, repository.CheckoutReasonLocationDisabled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM location_heartbeats").
		WithArgs(testEmployeeID, testLogID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Executed)
	assert.Equal(t, 0, stats.Failed)
	publisher.AssertEventPublished(t, messaging.EventAutoCheckoutExecuted)
	publisher.AssertEventPublished(t, messaging.EventAttendanceCheckedOut)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerFinalGateAbortsOnRecovery(t *testing.T) {
	rec, mockDB, publisher := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonOutsideBranch, endsAt))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnRows(openLogRow(now.Add(-4 * time.Hour)))
	// Fresh heartbeat inside the grace window, back in the branch with GPS
	// on. The client recovered; execution must not happen.
	mockDB.ExpectQuery("FROM location_heartbeats").WithArgs(testEmployeeID, testLogID).
		WillReturnRows(testutil.MockRows(heartbeatTestColumns...).
			AddRow(testEmployeeID, testLogID, testCompanyID, endsAt.Add(-time.Minute), true, true, nil))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusCancelled, repository.CancelReasonRecoveredBeforeExec).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, 0, stats.Executed)
	publisher.AssertEventPublished(t, messaging.EventAutoCheckoutCancelled)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerFinalGateIgnoresPartialRecovery(t *testing.T) {
	rec, mockDB, _ := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonOutsideBranch, endsAt))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnRows(openLogRow(now.Add(-4 * time.Hour)))
	// Fresh, GPS on, but still outside the branch; the gate does not open.
	mockDB.ExpectQuery("FROM location_heartbeats").WithArgs(testEmployeeID, testLogID).
		WillReturnRows(testutil.MockRows(heartbeatTestColumns...).
			AddRow(testEmployeeID, testLogID, testCompanyID, endsAt.Add(-time.Minute), false, true, nil))
	mockDB.ExpectExec("UPDATE attendance_logs").
		WithArgs(testLogID, now, nil, nil, repository.CheckoutTypeAuto, repository.CheckoutReasonOutOfBranch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM location_heartbeats").
		WithArgs(testEmployeeID, testLogID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Executed)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerRetiresPendingOnClosedSession(t *testing.T) {
	rec, mockDB, publisher := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonGPSBlocked, endsAt))

	mockDB.ExpectBegin()
	// The employee checked out manually between ListDue and here. The row
	// retires as done instead of gaining a made-up cancel reason.
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnRows(closedLogRow(now.Add(-4*time.Hour), now.Add(-2*time.Minute)))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Executed)
	publisher.AssertNoEventsPublished(t)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerCancelsWhenLogIsGone(t *testing.T) {
	rec, mockDB, _ := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonGPSBlocked, endsAt))

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusCancelled, repository.CancelReasonLogNotFound).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerIsolatesRowFailures(t *testing.T) {
	rec, mockDB, _ := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	endsAt := now.Add(-time.Minute)
	rec.now = func() time.Time { return now }

	secondPendingID := "77777777-7777-7777-7777-777777777777"
	due := duePendingRow(testPendingID, repository.PendingReasonGPSBlocked, endsAt.Add(-time.Minute))
	due.AddRow(secondPendingID, testCompanyID, testEmployeeID, testLogID,
		repository.PendingReasonGPSBlocked, endsAt, repository.PendingStatusPending,
		endsAt.Add(-15*time.Minute), nil, nil, nil)

	mockDB.ExpectQuery("FROM auto_checkout_pendings").WillReturnRows(due)

	// First row blows up mid-transaction and rolls back.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnError(fmt.Errorf("connection reset"))
	mockDB.ExpectRollback()

	// Second row settles normally.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM attendance_logs").WithArgs(testLogID, testCompanyID).
		WillReturnRows(openLogRow(now.Add(-4 * time.Hour)))
	mockDB.ExpectQuery("FROM location_heartbeats").WithArgs(testEmployeeID, testLogID).
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectExec("UPDATE attendance_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(secondPendingID, repository.PendingStatusDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM location_heartbeats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	expectNoStaleSessions(mockDB)

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Executed)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerClosesStaleSessions(t *testing.T) {
	rec, mockDB, publisher := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(testutil.MockRows(pendingTestColumns...))

	// A session left open for more than the stale cutoff.
	mockDB.ExpectQuery("FROM attendance_logs").
		WillReturnRows(openLogRow(now.Add(-25 * time.Hour)))

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE attendance_logs").
		WithArgs(testLogID, now, nil, nil, repository.CheckoutTypeAuto, repository.CheckoutReasonStaleSession).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The session still carried a live pending; the forced close settles it.
	mockDB.ExpectQuery("FROM auto_checkout_pendings").WithArgs(testLogID).
		WillReturnRows(duePendingRow(testPendingID, repository.PendingReasonGPSBlocked, now.Add(time.Hour)))
	mockDB.ExpectExec("UPDATE auto_checkout_pendings").
		WithArgs(testPendingID, repository.PendingStatusDone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM location_heartbeats").
		WithArgs(testEmployeeID, testLogID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 0, stats.Due)
	assert.Equal(t, 1, stats.StaleClosed)
	publisher.AssertEventPublished(t, messaging.EventAttendanceCheckedOut)

	mockDB.ExpectationsWereMet(t)
}

func TestReconcilerClosesStaleSessionWithoutPending(t *testing.T) {
	rec, mockDB, _ := newTestReconciler(t)

	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	mockDB.ExpectQuery("FROM auto_checkout_pendings").
		WillReturnRows(testutil.MockRows(pendingTestColumns...))

	// The client vanished before ever proposing an auto-checkout.
	mockDB.ExpectQuery("FROM attendance_logs").
		WillReturnRows(openLogRow(now.Add(-25 * time.Hour)))

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE attendance_logs").
		WithArgs(testLogID, now, nil, nil, repository.CheckoutTypeAuto, repository.CheckoutReasonStaleSession).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("FROM auto_checkout_pendings").WithArgs(testLogID).
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectExec("DELETE FROM location_heartbeats").
		WithArgs(testEmployeeID, testLogID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	stats := rec.RunOnce(context.Background())
	assert.Equal(t, 1, stats.StaleClosed)

	mockDB.ExpectationsWereMet(t)
}
