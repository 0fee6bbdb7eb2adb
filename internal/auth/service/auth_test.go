package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly-backend/internal/auth/jwt"
	"github.com/attendly/attendly-backend/internal/auth/repository"
	"github.com/attendly/attendly-backend/pkg/config"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
	"github.com/attendly/attendly-backend/pkg/testutil"
)

type fakeDirectory struct {
	byLogin map[string]*EmployeeRecord
	byID    map[string]*EmployeeRecord
}

func (f *fakeDirectory) FindByLoginCode(ctx context.Context, code, phone string) (*EmployeeRecord, error) {
	if rec, ok := f.byLogin[code+"|"+phone]; ok {
		return rec, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDirectory) FindByID(ctx context.Context, id string) (*EmployeeRecord, error) {
	if rec, ok := f.byID[id]; ok {
		return rec, nil
	}
	return nil, sql.ErrNoRows
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:         "test-secret",
		AdminExpiry:    time.Hour,
		EmployeeExpiry: time.Hour,
		Issuer:         "attendance-service-test",
	}
}

func newTestAuthService(t *testing.T, dir EmployeeDirectory) (*AuthService, *testutil.MockDB, *jwt.Manager) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	manager := jwt.NewManager(testJWTConfig())
	sessions := repository.NewSessionRepository(mockDB.Wrapped())
	svc := NewAuthService(sessions, dir, manager, logger.New("test", "test"))
	return svc, mockDB, manager
}

func TestLoginEmployee(t *testing.T) {
	dir := &fakeDirectory{
		byLogin: map[string]*EmployeeRecord{
			"EMP-0001|+966500000001": {ID: "emp-1", CompanyID: "co-1", IsActive: true},
			"EMP-0002|+966500000002": {ID: "emp-2", CompanyID: "co-1", IsActive: false},
		},
	}

	t.Run("issues device bound token", func(t *testing.T) {
		svc, mockDB, manager := newTestAuthService(t, dir)

		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE employee_sessions").
			WithArgs("emp-1", "device-a").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("INSERT INTO employee_sessions").
			WithArgs(testutil.AnyUUID{}, "co-1", "emp-1", "device-a", sqlmock.AnyArg(), testutil.AnyTime{}, testutil.AnyTime{}).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectCommit()

		resp, err := svc.LoginEmployee(context.Background(), &LoginRequest{
			EmployeeCode: "EMP-0001",
			Phone:        "+966500000001",
			DeviceID:     "device-a",
		})
		require.NoError(t, err)

		assert.Equal(t, "emp-1", resp.EmployeeID)
		assert.Equal(t, "co-1", resp.CompanyID)
		assert.Equal(t, "Bearer", resp.TokenType)

		claims, err := manager.ValidateEmployeeToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "emp-1", claims.EmployeeID)
		assert.Equal(t, "co-1", claims.CompanyID)
		assert.Equal(t, "device-a", claims.DeviceID)
		assert.NotEmpty(t, claims.SessionID)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects inactive employee", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t, dir)

		_, err := svc.LoginEmployee(context.Background(), &LoginRequest{
			EmployeeCode: "EMP-0002",
			Phone:        "+966500000002",
			DeviceID:     "device-a",
		})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "EMPLOYEE_INACTIVE", appErr.Code)
	})

	t.Run("rejects unknown credentials", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t, dir)

		_, err := svc.LoginEmployee(context.Background(), &LoginRequest{
			EmployeeCode: "EMP-9999",
			Phone:        "+966500000009",
			DeviceID:     "device-a",
		})
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "UNAUTHENTICATED", appErr.Code)
	})
}

func TestAuthorizeEmployee(t *testing.T) {
	dir := &fakeDirectory{}

	t.Run("resolves principal from live session", func(t *testing.T) {
		svc, mockDB, manager := newTestAuthService(t, dir)

		token, _, err := manager.GenerateEmployeeToken("emp-1", "co-1", "device-a", "sess-1")
		require.NoError(t, err)

		rows := testutil.MockRows(
			"id", "company_id", "employee_id", "device_id", "token_hash", "expires_at", "revoked_at", "created_at",
		).AddRow(
			"sess-1", "co-1", "emp-1", "device-a", repository.HashToken(token),
			time.Now().Add(time.Hour), nil, time.Now(),
		)
		mockDB.ExpectQuery("SELECT id, company_id, employee_id, device_id, token_hash").
			WithArgs("sess-1").
			WillReturnRows(rows)

		p, err := svc.AuthorizeEmployee(context.Background(), token)
		require.NoError(t, err)

		assert.Equal(t, principal.SubjectEmployee, p.SubjectKind)
		assert.Equal(t, "emp-1", p.SubjectID)
		assert.Equal(t, "co-1", p.CompanyID)
		assert.Equal(t, "device-a", p.DeviceID)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects revoked session", func(t *testing.T) {
		svc, mockDB, manager := newTestAuthService(t, dir)

		token, _, err := manager.GenerateEmployeeToken("emp-1", "co-1", "device-a", "sess-1")
		require.NoError(t, err)

		mockDB.ExpectQuery("SELECT id, company_id, employee_id, device_id, token_hash").
			WithArgs("sess-1").
			WillReturnError(sql.ErrNoRows)

		_, err = svc.AuthorizeEmployee(context.Background(), token)
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "UNAUTHENTICATED", appErr.Code)
	})

	t.Run("rejects token not matching session hash", func(t *testing.T) {
		svc, mockDB, manager := newTestAuthService(t, dir)

		token, _, err := manager.GenerateEmployeeToken("emp-1", "co-1", "device-a", "sess-1")
		require.NoError(t, err)

		rows := testutil.MockRows(
			"id", "company_id", "employee_id", "device_id", "token_hash", "expires_at", "revoked_at", "created_at",
		).AddRow(
			"sess-1", "co-1", "emp-1", "device-a", repository.HashToken("a different token"),
			time.Now().Add(time.Hour), nil, time.Now(),
		)
		mockDB.ExpectQuery("SELECT id, company_id, employee_id, device_id, token_hash").
			WithArgs("sess-1").
			WillReturnRows(rows)

		_, err = svc.AuthorizeEmployee(context.Background(), token)
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "TOKEN_INVALID", appErr.Code)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.EmployeeExpiry = -time.Minute
		expiredManager := jwt.NewManager(cfg)

		svc, _, _ := newTestAuthService(t, dir)

		token, _, err := expiredManager.GenerateEmployeeToken("emp-1", "co-1", "device-a", "sess-1")
		require.NoError(t, err)

		_, err = svc.AuthorizeEmployee(context.Background(), token)
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "TOKEN_EXPIRED", appErr.Code)
	})
}

func TestAuthorizeAdmin(t *testing.T) {
	dir := &fakeDirectory{}
	svc, _, manager := newTestAuthService(t, dir)

	token, _, err := manager.GenerateAdminToken("admin-1", "co-1", "Admin One")
	require.NoError(t, err)

	p, err := svc.AuthorizeAdmin(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, principal.SubjectAdmin, p.SubjectKind)
	assert.Equal(t, "admin-1", p.SubjectID)
	assert.Equal(t, "co-1", p.CompanyID)

	_, err = svc.AuthorizeAdmin(context.Background(), "not-a-token")
	require.Error(t, err)
}
