package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	attendancerepo "github.com/attendly/attendly-backend/internal/attendance/repository"
	companyrepo "github.com/attendly/attendly-backend/internal/company/repository"
	companysvc "github.com/attendly/attendly-backend/internal/company/service"

	"github.com/attendly/attendly-backend/internal/payroll/repository"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// ProjectorService turns an attendance range into pay figures. It is a pure
// projection over the ledger and its excuse tables; nothing here writes.
type ProjectorService struct {
	ledger    *attendancerepo.LedgerRepository
	inputs    *repository.InputsRepository
	employees *companyrepo.EmployeeRepository
	companies *companyrepo.CompanyRepository
	settings  *companysvc.SettingsService
	logger    *logger.Logger
}

// NewProjectorService creates a new payroll projector
func NewProjectorService(
	ledger *attendancerepo.LedgerRepository,
	inputs *repository.InputsRepository,
	employees *companyrepo.EmployeeRepository,
	companies *companyrepo.CompanyRepository,
	settings *companysvc.SettingsService,
	log *logger.Logger,
) *ProjectorService {
	return &ProjectorService{
		ledger:    ledger,
		inputs:    inputs,
		employees: employees,
		companies: companies,
		settings:  settings,
		logger:    log,
	}
}

// PreviewRequest asks for a pay projection over an inclusive day range in
// the company timezone.
type PreviewRequest struct {
	EmployeeID string `json:"employee_id" validate:"required,uuid"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

// Projection is the pay breakdown for one employee over one range.
type Projection struct {
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Currency   string `json:"currency"`

	WorkingDaysInRange   int `json:"working_days_in_range"`
	PresentDays          int `json:"present_days"`
	ApprovedLeaveDays    int `json:"approved_leave_days"`
	AbsenceDays          int `json:"absence_days"`
	LateMinutes          int `json:"late_minutes"`
	EffectiveLateMinutes int `json:"effective_late_minutes"`
	OvertimeMinutes      int `json:"overtime_minutes"`

	DailyRate         decimal.Decimal `json:"daily_rate"`
	BasePay           decimal.Decimal `json:"base_pay"`
	Allowances        decimal.Decimal `json:"allowances"`
	OvertimePay       decimal.Decimal `json:"overtime_pay"`
	Bonuses           decimal.Decimal `json:"bonuses"`
	AbsenceDeduction  decimal.Decimal `json:"absence_deduction"`
	LatenessDeduction decimal.Decimal `json:"lateness_deduction"`
	Penalties         decimal.Decimal `json:"penalties"`
	Insurance         decimal.Decimal `json:"insurance"`
	Tax               decimal.Decimal `json:"tax"`
	Net               decimal.Decimal `json:"net"`
}

// inputs bundles everything the pure projection math needs.
type inputs struct {
	from, to          time.Time
	presentDays       []attendancerepo.PresentDay
	approvedLeaveDays int
	delayMinutesByDay map[string]int
	workedMinutes     int
	bonuses           decimal.Decimal
	penalties         decimal.Decimal
}

// Preview projects pay for one employee over [from, to]. Admin only.
func (s *ProjectorService) Preview(ctx context.Context, req *PreviewRequest) (*Projection, error) {
	p := principal.MustFromContext(ctx)
	if !p.IsAdmin() {
		return nil, errors.Forbidden("payroll projections require an admin")
	}

	employee, err := s.employees.GetByID(ctx, p.CompanyID, req.EmployeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("employee")
		}
		return nil, err
	}

	company, err := s.companies.GetByID(ctx, p.CompanyID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(company.Timezone)
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("company timezone %q is invalid", company.Timezone))
	}

	settings, err := s.settings.Get(ctx, p.CompanyID)
	if err != nil {
		return nil, err
	}

	from, err := time.ParseInLocation("2006-01-02", req.From, loc)
	if err != nil {
		return nil, errors.BadRequest("from must be a 2006-01-02 date")
	}
	to, err := time.ParseInLocation("2006-01-02", req.To, loc)
	if err != nil {
		return nil, errors.BadRequest("to must be a 2006-01-02 date")
	}
	if to.Before(from) {
		return nil, errors.BadRequest("to must not precede from")
	}

	// The range is inclusive; storage reads use [from, toExclusive).
	toExclusive := to.AddDate(0, 0, 1)

	presentDays, err := s.ledger.DistinctDays(ctx, p.CompanyID, employee.ID, from, toExclusive, company.Timezone)
	if err != nil {
		return nil, err
	}
	leaveDays, err := s.inputs.ApprovedLeaveDays(ctx, p.CompanyID, employee.ID, from, to)
	if err != nil {
		return nil, err
	}
	delayByDay, err := s.inputs.DelayMinutesByDay(ctx, p.CompanyID, employee.ID, from, to)
	if err != nil {
		return nil, err
	}
	workedMinutes, err := s.inputs.WorkedMinutes(ctx, p.CompanyID, employee.ID, from, toExclusive)
	if err != nil {
		return nil, err
	}
	bonuses, penalties, err := s.inputs.AdjustmentTotals(ctx, p.CompanyID, employee.ID, from, to)
	if err != nil {
		return nil, err
	}

	projection := project(employee, settings, inputs{
		from:              from,
		to:                to,
		presentDays:       presentDays,
		approvedLeaveDays: leaveDays,
		delayMinutesByDay: delayByDay,
		workedMinutes:     workedMinutes,
		bonuses:           bonuses,
		penalties:         penalties,
	})
	projection.EmployeeID = employee.ID
	projection.From = req.From
	projection.To = req.To

	return projection, nil
}

// project is the pure pay math. Salary scales by distinct present days
// against the configured workdays per month; insurance and tax are computed
// on the full monthly salary and then pro-rated to the range.
func project(employee *companyrepo.Employee, settings *companyrepo.CompanySettings, in inputs) *Projection {
	workdaysPerMonth := settings.WorkdaysPerMonth
	if workdaysPerMonth < 1 {
		workdaysPerMonth = 1
	}
	monthDays := decimal.NewFromInt(int64(workdaysPerMonth))

	// Count calendar days, not 24-hour spans. A DST spring-forward day is
	// 23 hours long and duration math would undercount it.
	rangeDays := 0
	for d := in.from; !d.After(in.to); d = d.AddDate(0, 0, 1) {
		rangeDays++
	}
	workingDaysInRange := rangeDays
	if workingDaysInRange > workdaysPerMonth {
		workingDaysInRange = workdaysPerMonth
	}

	presentDays := len(in.presentDays)
	if presentDays > workingDaysInRange {
		presentDays = workingDaysInRange
	}
	presentRatio := decimal.NewFromInt(int64(presentDays)).Div(monthDays)

	dailyRate := employee.BaseMonthlySalary.Div(monthDays)
	basePay := dailyRate.Mul(decimal.NewFromInt(int64(presentDays)))
	allowances := employee.MonthlyAllowances.Div(monthDays).Mul(decimal.NewFromInt(int64(presentDays)))

	absenceDays := workingDaysInRange - presentDays - in.approvedLeaveDays
	if absenceDays < 0 {
		absenceDays = 0
	}
	absenceDeduction := dailyRate.Mul(decimal.NewFromInt(int64(absenceDays)))

	// A delay permission offsets that day's lateness but never flips it
	// into credit.
	lateMinutes := 0
	effectiveLateMinutes := 0
	for _, day := range in.presentDays {
		lateMinutes += day.LateMinutes
		effective := day.LateMinutes - in.delayMinutesByDay[day.Day.Format("2006-01-02")]
		if effective > 0 {
			effectiveLateMinutes += effective
		}
	}

	shiftHours := settings.ShiftHoursPerDay
	if shiftHours < 1 {
		shiftHours = 8
	}
	minuteRate := dailyRate.Div(decimal.NewFromInt(int64(shiftHours * 60)))
	latenessDeduction := minuteRate.Mul(decimal.NewFromInt(int64(effectiveLateMinutes)))

	overtimeMinutes := in.workedMinutes - presentDays*shiftHours*60
	if overtimeMinutes < 0 {
		overtimeMinutes = 0
	}
	overtimePay := minuteRate.Mul(settings.OvertimeMultiplier).Mul(decimal.NewFromInt(int64(overtimeMinutes)))

	insurance := monthlyCharge(settings.InsuranceType, settings.InsuranceValue, employee.BaseMonthlySalary).Mul(presentRatio)
	tax := monthlyCharge(settings.TaxType, settings.TaxValue, employee.BaseMonthlySalary).Mul(presentRatio)

	net := basePay.Add(allowances).Add(overtimePay).Add(in.bonuses).
		Sub(absenceDeduction).Sub(latenessDeduction).Sub(in.penalties).
		Sub(insurance).Sub(tax)

	return &Projection{
		Currency:             settings.Currency,
		WorkingDaysInRange:   workingDaysInRange,
		PresentDays:          presentDays,
		ApprovedLeaveDays:    in.approvedLeaveDays,
		AbsenceDays:          absenceDays,
		LateMinutes:          lateMinutes,
		EffectiveLateMinutes: effectiveLateMinutes,
		OvertimeMinutes:      overtimeMinutes,
		DailyRate:            dailyRate.Round(2),
		BasePay:              basePay.Round(2),
		Allowances:           allowances.Round(2),
		OvertimePay:          overtimePay.Round(2),
		Bonuses:              in.bonuses.Round(2),
		AbsenceDeduction:     absenceDeduction.Round(2),
		LatenessDeduction:    latenessDeduction.Round(2),
		Penalties:            in.penalties.Round(2),
		Insurance:            insurance.Round(2),
		Tax:                  tax.Round(2),
		Net:                  net.Round(2),
	}
}

// monthlyCharge resolves a percentage-or-fixed charge against the full
// monthly salary.
func monthlyCharge(chargeType string, value, monthlySalary decimal.Decimal) decimal.Decimal {
	switch chargeType {
	case "percentage":
		return monthlySalary.Mul(value).Div(decimal.NewFromInt(100))
	case "fixed":
		return value
	default:
		return decimal.Zero
	}
}
