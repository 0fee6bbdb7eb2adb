package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly-backend/internal/attendance/repository"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/testutil"
)

func pendingFor(company *testutil.TestCompany, employeeID, logID string, endsAt time.Time) *repository.AutoCheckoutPending {
	return &repository.AutoCheckoutPending{
		CompanyID:       company.ID,
		EmployeeID:      employeeID,
		AttendanceLogID: logID,
		Reason:          repository.PendingReasonOutsideBranch,
		EndsAt:          endsAt,
	}
}

func TestPendingRepository_OnePendingPerSession(t *testing.T) {
	ctx := context.Background()
	company := suite.SetupCompany(t, ctx, "pending-unique")
	employeeID, branchID := seedEmployee(t, ctx, company)

	ledger := repository.NewLedgerRepository(suite.DB)
	pendings := repository.NewPendingRepository(suite.DB)

	session, err := ledger.Insert(ctx, openSession(company, employeeID, branchID, time.Now().UTC()))
	require.NoError(t, err)

	endsAt := time.Now().UTC().Add(15 * time.Minute).Truncate(time.Second)
	first, err := pendings.Insert(ctx, pendingFor(company, employeeID, session.ID, endsAt))
	require.NoError(t, err)
	assert.Equal(t, repository.PendingStatusPending, first.Status)

	// The partial unique index is the backstop when two writers race past
	// the supersede step.
	_, err = pendings.Insert(ctx, pendingFor(company, employeeID, session.ID, endsAt.Add(time.Minute)))
	require.Error(t, err)
	mapped := database.MapPQError(err)
	require.NotNil(t, mapped)
	assert.Equal(t, "CONFLICT", mapped.Code)

	// Superseding the live row makes room for a replacement.
	cancelled, err := pendings.Cancel(ctx, first.ID, repository.CancelReasonSuperseded)
	require.NoError(t, err)
	require.True(t, cancelled)

	_, err = pendings.Insert(ctx, pendingFor(company, employeeID, session.ID, endsAt.Add(time.Minute)))
	require.NoError(t, err)
}

func TestPendingRepository_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	company := suite.SetupCompany(t, ctx, "pending-first-writer")
	employeeID, branchID := seedEmployee(t, ctx, company)

	ledger := repository.NewLedgerRepository(suite.DB)
	pendings := repository.NewPendingRepository(suite.DB)

	session, err := ledger.Insert(ctx, openSession(company, employeeID, branchID, time.Now().UTC()))
	require.NoError(t, err)
	pending, err := pendings.Insert(ctx, pendingFor(company, employeeID, session.ID, time.Now().UTC().Add(10*time.Minute)))
	require.NoError(t, err)

	cancelled, err := pendings.Cancel(ctx, pending.ID, repository.CancelReasonRecovered)
	require.NoError(t, err)
	require.True(t, cancelled)

	// The row is settled; neither a second cancel nor the executor's
	// mark-done can claim it.
	cancelledAgain, err := pendings.Cancel(ctx, pending.ID, repository.CancelReasonManualCheckout)
	require.NoError(t, err)
	assert.False(t, cancelledAgain)

	done, err := pendings.MarkDone(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, done)

	stored, err := pendings.GetByID(ctx, company.ID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.PendingStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, repository.CancelReasonRecovered, *stored.CancelReason)
	assert.NotNil(t, stored.CancelledAt)
	assert.Nil(t, stored.DoneAt)
}

func TestPendingRepository_ListDueOrdersByDeadline(t *testing.T) {
	ctx := context.Background()
	company := suite.SetupCompany(t, ctx, "pending-list-due")
	firstEmployeeID, branchID := seedEmployee(t, ctx, company)
	secondEmployeeID, _ := seedEmployee(t, ctx, company)
	thirdEmployeeID, _ := seedEmployee(t, ctx, company)

	ledger := repository.NewLedgerRepository(suite.DB)
	pendings := repository.NewPendingRepository(suite.DB)

	now := time.Now().UTC().Truncate(time.Second)

	firstSession, err := ledger.Insert(ctx, openSession(company, firstEmployeeID, branchID, now.Add(-2*time.Hour)))
	require.NoError(t, err)
	secondSession, err := ledger.Insert(ctx, openSession(company, secondEmployeeID, branchID, now.Add(-2*time.Hour)))
	require.NoError(t, err)
	thirdSession, err := ledger.Insert(ctx, openSession(company, thirdEmployeeID, branchID, now.Add(-2*time.Hour)))
	require.NoError(t, err)

	// Insert the newest deadline first to prove ordering comes from ends_at.
	newer, err := pendings.Insert(ctx, pendingFor(company, firstEmployeeID, firstSession.ID, now.Add(-5*time.Minute)))
	require.NoError(t, err)
	older, err := pendings.Insert(ctx, pendingFor(company, secondEmployeeID, secondSession.ID, now.Add(-30*time.Minute)))
	require.NoError(t, err)
	// A future deadline is not due yet.
	_, err = pendings.Insert(ctx, pendingFor(company, thirdEmployeeID, thirdSession.ID, now.Add(10*time.Minute)))
	require.NoError(t, err)

	due, err := pendings.ListDue(ctx, now, 100)
	require.NoError(t, err)

	require.Len(t, due, 2)
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, newer.ID, due[1].ID)
}
