package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Service) ListComponents(ctx context.Context, tenantID string) ([]SalaryComponent, error) {
	return s.store.ListComponents(ctx, tenantID)
}

// SaveComponent creates or replaces a component. The resulting active set
// must still resolve, so a change that introduces a cycle is rejected.
func (s *Service) SaveComponent(ctx context.Context, tenantID string, component SalaryComponent) (SalaryComponent, error) {
	component.Code = strings.TrimSpace(component.Code)
	if err := checkComponents([]SalaryComponent{component}); err != nil {
		return SalaryComponent{}, err
	}
	existing, err := s.store.ListComponents(ctx, tenantID)
	if err != nil {
		return SalaryComponent{}, err
	}
	if _, err := planEvaluation(ActiveComponents(MergeComponents(existing, []SalaryComponent{component}))); err != nil {
		return SalaryComponent{}, err
	}
	if err := s.store.UpsertComponent(ctx, tenantID, component); err != nil {
		return SalaryComponent{}, err
	}
	return component, nil
}

func (s *Service) SetComponentActive(ctx context.Context, tenantID, code string, active bool) error {
	existing, err := s.store.ListComponents(ctx, tenantID)
	if err != nil {
		return err
	}
	found := false
	for i := range existing {
		if existing[i].Code == code {
			existing[i].IsActive = active
			found = true
		}
	}
	if !found {
		return ErrComponentNotFound
	}
	if active {
		if _, err := planEvaluation(ActiveComponents(existing)); err != nil {
			return err
		}
	}
	return s.store.SetComponentActive(ctx, tenantID, code, active)
}

func (s *Service) ListTaxConfigurations(ctx context.Context, tenantID string) ([]TaxConfiguration, error) {
	return s.store.ListTaxConfigurations(ctx, tenantID)
}

// CreateTaxConfiguration stores a validated configuration with its slabs in
// ascending order. Overlapping active windows of the same tax type are
// rejected in strict mode and otherwise resolved by the latest effectiveFrom.
func (s *Service) CreateTaxConfiguration(ctx context.Context, tenantID string, cfg TaxConfiguration) (TaxConfiguration, error) {
	if !cfg.TaxType.Valid() {
		return TaxConfiguration{}, &InvalidSlabDefinitionError{TaxType: cfg.TaxType, Reason: "unknown tax type"}
	}
	cfg.EffectiveFrom = dateOnly(cfg.EffectiveFrom)
	if cfg.EffectiveTo != nil {
		to := dateOnly(*cfg.EffectiveTo)
		if to.Before(cfg.EffectiveFrom) {
			return TaxConfiguration{}, ErrInvalidTaxConfigWindow
		}
		cfg.EffectiveTo = &to
	}
	sorted, err := ValidateSlabs(cfg.TaxType, cfg.Slabs)
	if err != nil {
		return TaxConfiguration{}, err
	}
	cfg.Slabs = sorted

	if cfg.IsActive {
		existing, err := s.store.ListTaxConfigurations(ctx, tenantID)
		if err != nil {
			return TaxConfiguration{}, err
		}
		for _, other := range existing {
			if !other.IsActive || !cfg.Overlaps(other) {
				continue
			}
			if s.strictOverlap {
				return TaxConfiguration{}, fmt.Errorf("%w: %s", ErrTaxConfigurationOverlap, other.ID)
			}
			s.logger.Warn("tax configuration overlaps existing window", "tenantId", tenantID, "taxType", cfg.TaxType, "overlapsId", other.ID)
		}
	}

	id, err := s.store.CreateTaxConfiguration(ctx, tenantID, cfg)
	if err != nil {
		return TaxConfiguration{}, err
	}
	cfg.ID = id
	return cfg, nil
}

func (s *Service) ListEmployees(ctx context.Context, tenantID string, limit, offset int) ([]Employee, int, error) {
	total, err := s.store.CountEmployees(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	employees, err := s.store.ListEmployees(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return employees, total, nil
}

func (s *Service) CreateEmployee(ctx context.Context, tenantID string, employee Employee) (Employee, error) {
	employee.Name = strings.TrimSpace(employee.Name)
	employee.Email = strings.TrimSpace(employee.Email)
	if employee.Status == "" {
		employee.Status = EmployeeStatusActive
	}
	if employee.TaxRegime == "" {
		employee.TaxRegime = TaxRegimeNew
	}
	if err := s.validate.Struct(employee); err != nil {
		return Employee{}, fmt.Errorf("%w: %v", ErrInvalidEmployeeInput, err)
	}
	if employee.BasicSalary.IsNegative() {
		return Employee{}, ErrNegativeBasicSalary
	}
	id, err := s.store.CreateEmployee(ctx, tenantID, employee)
	if err != nil {
		return Employee{}, err
	}
	employee.ID = id
	employee.CreatedAt = s.now().UTC()
	return employee, nil
}

// SetEmployeeComponents replaces the employee's component overrides.
func (s *Service) SetEmployeeComponents(ctx context.Context, tenantID, employeeID string, components []SalaryComponent) error {
	if !validID(employeeID) {
		return ErrEmployeeNotFound
	}
	for i := range components {
		components[i].Code = strings.TrimSpace(components[i].Code)
	}
	if err := checkComponents(components); err != nil {
		return err
	}
	return s.store.ReplaceEmployeeComponents(ctx, tenantID, employeeID, components)
}

func (s *Service) ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]Period, int, error) {
	total, err := s.store.CountPeriods(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	periods, err := s.store.ListPeriods(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return periods, total, nil
}

func (s *Service) CreatePeriod(ctx context.Context, tenantID, name string, startDate, endDate time.Time) (string, error) {
	startDate, endDate = dateOnly(startDate), dateOnly(endDate)
	if endDate.Before(startDate) {
		return "", ErrInvalidPeriodDates
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("%s to %s", startDate.Format(dateLayout), endDate.Format(dateLayout))
	}
	return s.store.CreatePeriod(ctx, tenantID, name, startDate, endDate)
}

func (s *Service) GetPeriod(ctx context.Context, tenantID, periodID string) (Period, error) {
	if !validID(periodID) {
		return Period{}, ErrPeriodNotFound
	}
	return s.store.GetPeriod(ctx, tenantID, periodID)
}

// LoadSnapshot reads the tenant's current rules into an immutable snapshot.
func (s *Service) LoadSnapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	components, err := s.store.ListComponents(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	configs, err := s.store.ListTaxConfigurations(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Version:           1,
		ID:                uuid.NewString(),
		TakenAt:           s.now().UTC(),
		Components:        components,
		TaxConfigurations: configs,
	}, nil
}

func (s *Service) Preview(ctx context.Context, tenantID string, req PreviewRequest) (PreviewResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return PreviewResult{}, fmt.Errorf("%w: %v", ErrInvalidEmployeeInput, err)
	}
	snap, err := s.LoadSnapshot(ctx, tenantID)
	if err != nil {
		return PreviewResult{}, err
	}

	input := EmployeeInput{EmployeeID: req.EmployeeID}
	if req.EmployeeID != "" {
		if !validID(req.EmployeeID) {
			return PreviewResult{}, ErrEmployeeNotFound
		}
		if input, err = s.store.GetEmployeeInput(ctx, tenantID, req.EmployeeID); err != nil {
			return PreviewResult{}, err
		}
	}
	if req.BasicSalary != nil {
		input.BasicSalary = *req.BasicSalary
	}
	if req.TaxRegime != "" {
		input.TaxRegime = req.TaxRegime
	}
	if input.BasicSalary.IsNegative() {
		return PreviewResult{}, ErrNegativeBasicSalary
	}

	payDate := req.PayDate
	if payDate.IsZero() {
		payDate = s.now()
	}
	components := MergeComponents(snap.Components, MergeComponents(input.Components, req.Components))
	configs, err := ConfigurationsForRegime(snap.TaxConfigurations, input.TaxRegime, payDate)
	if err != nil {
		return PreviewResult{}, err
	}
	slip, err := Assemble(input.BasicSalary, components, configs, payDate)
	if err != nil {
		return PreviewResult{}, err
	}
	slip.EmployeeID = input.EmployeeID
	return PreviewResult{Payslip: slip, Warnings: Warnings(slip)}, nil
}

// PrepareRun checks the period can be run, freezes the rules and records a
// running run row.
func (s *Service) PrepareRun(ctx context.Context, tenantID, periodID string) (PreparedRun, error) {
	period, err := s.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return PreparedRun{}, err
	}
	if period.Status == PeriodStatusFinalized {
		return PreparedRun{}, ErrPeriodFinalized
	}
	snap, err := s.LoadSnapshot(ctx, tenantID)
	if err != nil {
		return PreparedRun{}, err
	}
	employees, err := s.store.ListActiveEmployeeInputs(ctx, tenantID)
	if err != nil {
		return PreparedRun{}, err
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return PreparedRun{}, err
	}
	run := Run{ID: uuid.NewString(), PeriodID: period.ID, Status: RunStatusRunning, StartedAt: s.now().UTC()}
	if err := s.store.CreateRun(ctx, tenantID, run.ID, period.ID, snapJSON); err != nil {
		return PreparedRun{}, err
	}
	return PreparedRun{Run: run, Period: period, Snapshot: snap, Employees: employees}, nil
}

// ExecuteRun runs the batch and persists whatever it produced. A cancelled
// batch only overwrites the payslips it completed and returns the period to
// draft, so a partial rerun can never be finalized.
func (s *Service) ExecuteRun(ctx context.Context, tenantID string, prepared PreparedRun) (RunSummary, error) {
	result, runErr := s.runner.Run(ctx, prepared.Period.PayDate(), prepared.Employees, prepared.Snapshot)
	persistCtx := context.WithoutCancel(ctx)

	run := prepared.Run
	run.Succeeded = len(result.Succeeded)
	run.FailedCount = len(result.Failed)
	run.Failures = result.Failed
	run.Skipped = result.Skipped
	summary := RunSummary{TotalGross: decimal.Zero, TotalTax: decimal.Zero, TotalNet: decimal.Zero, WarningCount: map[string]int{}}

	cancelled := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !cancelled {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
		if err := s.store.CompleteRun(persistCtx, tenantID, run); err != nil {
			return summary, errors.Join(runErr, err)
		}
		summary.Run = s.completed(run)
		return summary, runErr
	}

	records := make([]PayslipRecord, 0, len(result.Succeeded))
	for _, slip := range result.Succeeded {
		warnings := Warnings(slip)
		for _, warning := range warnings {
			summary.WarningCount[warning]++
			if warning == WarningNegativeNet {
				s.logger.Warn("payslip has negative net salary", "tenantId", tenantID, "runId", run.ID, "employeeId", slip.EmployeeID, "net", slip.NetSalary.String())
			}
		}
		summary.TotalGross = summary.TotalGross.Add(slip.GrossSalary)
		summary.TotalTax = summary.TotalTax.Add(slip.TotalTax)
		summary.TotalNet = summary.TotalNet.Add(slip.NetSalary)
		records = append(records, PayslipRecord{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			PeriodID:  prepared.Period.ID,
			Payslip:   slip,
			Warnings:  warnings,
			CreatedAt: s.now().UTC(),
		})
	}
	persist := s.store.ReplacePayslips
	if cancelled {
		persist = s.store.UpsertPayslips
	}
	if err := persist(persistCtx, tenantID, prepared.Period.ID, records); err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
		_ = s.store.CompleteRun(persistCtx, tenantID, run)
		return summary, err
	}

	run.Status = RunStatusCompleted
	if len(result.Failed) > 0 || cancelled {
		run.Status = RunStatusPartial
	}
	if cancelled {
		run.Error = runErr.Error()
	}
	if err := s.store.CompleteRun(persistCtx, tenantID, run); err != nil {
		return summary, err
	}
	periodStatus := PeriodStatusReviewed
	if cancelled {
		periodStatus = PeriodStatusDraft
	}
	if err := s.store.UpdatePeriodStatus(persistCtx, tenantID, prepared.Period.ID, periodStatus); err != nil {
		return summary, err
	}
	summary.Run = s.completed(run)
	return summary, runErr
}

// RunPeriod computes payslips for every active employee in the period.
func (s *Service) RunPeriod(ctx context.Context, tenantID, periodID string) (RunSummary, error) {
	prepared, err := s.PrepareRun(ctx, tenantID, periodID)
	if err != nil {
		return RunSummary{}, err
	}
	return s.ExecuteRun(ctx, tenantID, prepared)
}

// AbandonRun closes a prepared run that will never execute.
func (s *Service) AbandonRun(ctx context.Context, tenantID string, prepared PreparedRun, reason error) error {
	run := prepared.Run
	run.Status = RunStatusFailed
	run.Error = reason.Error()
	return s.store.CompleteRun(context.WithoutCancel(ctx), tenantID, run)
}

func (s *Service) FinalizePeriod(ctx context.Context, tenantID, periodID string) error {
	period, err := s.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return err
	}
	switch period.Status {
	case PeriodStatusFinalized:
		return ErrPeriodFinalized
	case PeriodStatusReviewed:
	default:
		return ErrFinalizeInvalidState
	}
	count, err := s.store.CountPayslips(ctx, tenantID, periodID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFinalizeNoResults
	}
	return s.store.FinalizePeriod(ctx, tenantID, periodID)
}

func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (Run, error) {
	if !validID(runID) {
		return Run{}, ErrRunNotFound
	}
	return s.store.GetRun(ctx, tenantID, runID)
}

func (s *Service) ListPayslips(ctx context.Context, tenantID, periodID string, limit, offset int) ([]PayslipRecord, int, error) {
	if !validID(periodID) {
		return nil, 0, ErrPeriodNotFound
	}
	total, err := s.store.CountPayslips(ctx, tenantID, periodID)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.store.ListPayslips(ctx, tenantID, periodID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Service) GetPayslip(ctx context.Context, tenantID, payslipID string) (PayslipRecord, error) {
	if !validID(payslipID) {
		return PayslipRecord{}, ErrPayslipNotFound
	}
	return s.store.GetPayslip(ctx, tenantID, payslipID)
}

func (s *Service) completed(run Run) Run {
	now := s.now().UTC()
	run.CompletedAt = &now
	return run
}

// checkComponents validates component definitions and parses their formulas
// without resolving dependencies between them.
func checkComponents(components []SalaryComponent) error {
	if err := validateComponents(components); err != nil {
		return err
	}
	for _, component := range components {
		if component.CalculationType != CalculationFormula {
			continue
		}
		if _, err := ParseFormula(component.Formula); err != nil {
			return &ComponentError{Code: component.Code, Err: err}
		}
	}
	return nil
}
