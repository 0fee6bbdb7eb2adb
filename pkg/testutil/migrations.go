package testutil

// Migrations returns the attendance service schema in execution order.
// The integration suite applies these against a fresh container database;
// production deployments run the same statements via the migration job.
func Migrations() []string {
	return []string{
		// Companies (tenant roots)
		`CREATE TABLE IF NOT EXISTS companies (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Per-company tunables, exactly one row per company
		`CREATE TABLE IF NOT EXISTS company_settings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			auto_checkout_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			auto_checkout_after_seconds INTEGER NOT NULL DEFAULT 900,
			verify_outside_readings INTEGER NOT NULL DEFAULT 3,
			workdays_per_month INTEGER NOT NULL DEFAULT 26,
			currency VARCHAR(8) NOT NULL DEFAULT 'USD',
			insurance_type VARCHAR(16) NOT NULL DEFAULT 'percentage',
			insurance_value NUMERIC(12,4) NOT NULL DEFAULT 0,
			tax_type VARCHAR(16) NOT NULL DEFAULT 'percentage',
			tax_value NUMERIC(12,4) NOT NULL DEFAULT 0,
			overtime_multiplier NUMERIC(6,4) NOT NULL DEFAULT 1.5,
			shift_hours_per_day INTEGER NOT NULL DEFAULT 8,
			grace_minutes INTEGER NOT NULL DEFAULT 15,
			weekly_off_days INTEGER[] NOT NULL DEFAULT '{5,6}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uniq_settings_company UNIQUE (company_id)
		)`,

		// Geofenced branches
		`CREATE TABLE IF NOT EXISTS branches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			geofence_radius_m DOUBLE PRECISION NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT geofence_radius_positive CHECK (geofence_radius_m > 0)
		)`,

		// Shifts (wall-clock times in the company timezone; end < start is overnight)
		`CREATE TABLE IF NOT EXISTS shifts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			grace_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Employees
		`CREATE TABLE IF NOT EXISTS employees (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			branch_id UUID NOT NULL REFERENCES branches(id),
			shift_id UUID REFERENCES shifts(id),
			employee_code VARCHAR(50) NOT NULL,
			full_name VARCHAR(255) NOT NULL,
			phone VARCHAR(50),
			base_monthly_salary NUMERIC(12,2) NOT NULL DEFAULT 0,
			monthly_allowances NUMERIC(12,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uniq_employee_code UNIQUE (company_id, employee_code)
		)`,

		// Device-bound employee session tokens (hashed at rest)
		`CREATE TABLE IF NOT EXISTS employee_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			employee_id UUID NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
			device_id VARCHAR(255) NOT NULL,
			token_hash VARCHAR(255) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_employee_sessions_employee
			ON employee_sessions(employee_id) WHERE revoked_at IS NULL`,

		// Attendance ledger
		`CREATE TABLE IF NOT EXISTS attendance_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id),
			employee_id UUID NOT NULL REFERENCES employees(id),
			branch_id UUID NOT NULL REFERENCES branches(id),
			check_in_time TIMESTAMPTZ NOT NULL,
			check_in_device_time TIMESTAMPTZ,
			check_in_lat DOUBLE PRECISION NOT NULL,
			check_in_lng DOUBLE PRECISION NOT NULL,
			check_in_accuracy_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			check_in_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			check_out_time TIMESTAMPTZ,
			check_out_lat DOUBLE PRECISION,
			check_out_lng DOUBLE PRECISION,
			checkout_type VARCHAR(16),
			checkout_reason VARCHAR(32),
			status VARCHAR(16) NOT NULL DEFAULT 'on_time',
			late_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT checkout_after_checkin
				CHECK (check_out_time IS NULL OR check_out_time >= check_in_time)
		)`,
		// One open session per employee, enforced under concurrent writers
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_attendance_open_session
			ON attendance_logs(employee_id) WHERE check_out_time IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_logs_employee_day
			ON attendance_logs(company_id, employee_id, check_in_time)`,

		// Employee and branch must belong to the log's company
		`CREATE OR REPLACE FUNCTION enforce_attendance_company_match()
		RETURNS TRIGGER AS $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM employees e
				WHERE e.id = NEW.employee_id AND e.company_id = NEW.company_id
			) THEN
				RAISE EXCEPTION 'employee does not belong to company'
					USING ERRCODE = 'check_violation', CONSTRAINT = 'attendance_company_match';
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM branches b
				WHERE b.id = NEW.branch_id AND b.company_id = NEW.company_id
			) THEN
				RAISE EXCEPTION 'branch does not belong to company'
					USING ERRCODE = 'check_violation', CONSTRAINT = 'attendance_company_match';
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_attendance_company_match ON attendance_logs`,
		`CREATE TRIGGER trg_attendance_company_match
			BEFORE INSERT OR UPDATE ON attendance_logs
			FOR EACH ROW EXECUTE FUNCTION enforce_attendance_company_match()`,

		// Client-authored auto-checkout intents
		`CREATE TABLE IF NOT EXISTS auto_checkout_pendings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id),
			employee_id UUID NOT NULL REFERENCES employees(id),
			attendance_log_id UUID NOT NULL REFERENCES attendance_logs(id),
			reason VARCHAR(32) NOT NULL,
			ends_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			cancelled_at TIMESTAMPTZ,
			cancel_reason VARCHAR(32),
			done_at TIMESTAMPTZ
		)`,
		// One PENDING per session; the supersede-then-insert write path
		// relies on this as its backstop under races
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_auto_checkout_pending
			ON auto_checkout_pendings(attendance_log_id) WHERE status = 'PENDING'`,
		`CREATE INDEX IF NOT EXISTS idx_auto_checkout_pendings_due
			ON auto_checkout_pendings(ends_at) WHERE status = 'PENDING'`,

		// Latest location snapshot per open session
		`CREATE TABLE IF NOT EXISTS location_heartbeats (
			employee_id UUID NOT NULL REFERENCES employees(id),
			attendance_log_id UUID NOT NULL REFERENCES attendance_logs(id),
			company_id UUID NOT NULL REFERENCES companies(id),
			last_seen_at TIMESTAMPTZ NOT NULL,
			in_branch BOOLEAN NOT NULL,
			gps_ok BOOLEAN NOT NULL,
			reason VARCHAR(32),
			PRIMARY KEY (employee_id, attendance_log_id)
		)`,

		// Approved leave, counted by the payroll projector
		`CREATE TABLE IF NOT EXISTS leave_days (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id),
			employee_id UUID NOT NULL REFERENCES employees(id),
			leave_date DATE NOT NULL,
			leave_type VARCHAR(50) NOT NULL DEFAULT 'annual',
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uniq_leave_day UNIQUE (employee_id, leave_date)
		)`,

		// Approved delay permissions, offset against lateness per day
		`CREATE TABLE IF NOT EXISTS delay_permissions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id),
			employee_id UUID NOT NULL REFERENCES employees(id),
			permission_date DATE NOT NULL,
			minutes INTEGER NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Bonuses and penalties folded into the payroll projection
		`CREATE TABLE IF NOT EXISTS payroll_adjustments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			company_id UUID NOT NULL REFERENCES companies(id),
			employee_id UUID NOT NULL REFERENCES employees(id),
			adjustment_type VARCHAR(16) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			effective_date DATE NOT NULL,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT adjustment_type_valid
				CHECK (adjustment_type IN ('bonus', 'penalty'))
		)`,
	}
}
