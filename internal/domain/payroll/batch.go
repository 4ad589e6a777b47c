package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	BatchOutcomeCompleted = "completed"
	BatchOutcomePartial   = "partial"
	BatchOutcomeCancelled = "cancelled"
	BatchOutcomeFailed    = "failed"
)

// BatchObserver receives one call per finished batch.
type BatchObserver interface {
	ObserveBatch(outcome string, result BatchResult, elapsed time.Duration)
}

type RunnerOptions struct {
	// Workers bounds concurrent assemblies. Zero means GOMAXPROCS.
	Workers  int
	Logger   *slog.Logger
	Observer BatchObserver
}

type Runner struct {
	workers  int
	logger   *slog.Logger
	observer BatchObserver
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{workers: opts.Workers, logger: opts.Logger, observer: opts.Observer}
}

type employeeOutcome struct {
	payslip *Payslip
	failure *BatchFailure
	skipped bool
}

// Run assembles a payslip for every employee against one frozen copy of
// snapshot. A structural defect in the shared rules aborts the run; anything
// else is recorded against the employee it affects. When ctx is cancelled the
// employees not yet started are reported as skipped and ctx.Err() is returned
// alongside the partial result.
func (r *Runner) Run(ctx context.Context, payDate time.Time, employees []EmployeeInput, snapshot Snapshot) (BatchResult, error) {
	started := time.Now()
	snap := snapshot.Clone()

	shared, err := r.preflight(snap, payDate)
	if err != nil {
		r.logger.Error("payroll batch rejected", "payDate", payDate.Format(dateLayout), "code", ErrorCode(err), "err", err)
		r.observe(BatchOutcomeFailed, BatchResult{}, time.Since(started))
		return BatchResult{}, err
	}

	outcomes := make([]employeeOutcome, len(employees))
	dispatched := make([]bool, len(employees))
	seen := make(map[string]struct{}, len(employees))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, employee := range employees {
		if ctx.Err() != nil {
			break
		}
		dispatched[i] = true
		if _, dup := seen[employee.EmployeeID]; dup && employee.EmployeeID != "" {
			outcomes[i] = failed(employee.EmployeeID, ErrDuplicateEmployee)
			continue
		}
		seen[employee.EmployeeID] = struct{}{}
		g.Go(func() error {
			outcomes[i] = r.runEmployee(ctx, payDate, employee, snap, shared)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Succeeded: []Payslip{}, Failed: []BatchFailure{}}
	for i, outcome := range outcomes {
		switch {
		case !dispatched[i] || outcome.skipped:
			result.Skipped = append(result.Skipped, employees[i].EmployeeID)
		case outcome.failure != nil:
			result.Failed = append(result.Failed, *outcome.failure)
		case outcome.payslip != nil:
			result.Succeeded = append(result.Succeeded, *outcome.payslip)
		}
	}
	sort.SliceStable(result.Succeeded, func(i, j int) bool { return result.Succeeded[i].EmployeeID < result.Succeeded[j].EmployeeID })
	sort.SliceStable(result.Failed, func(i, j int) bool { return result.Failed[i].EmployeeID < result.Failed[j].EmployeeID })
	sort.Strings(result.Skipped)

	for _, failure := range result.Failed {
		r.logger.Warn("payslip assembly failed", "employeeId", failure.EmployeeID, "code", failure.Code, "err", failure.Message)
	}

	outcome := BatchOutcomeCompleted
	var runErr error
	switch {
	case len(result.Skipped) > 0:
		outcome = BatchOutcomeCancelled
		runErr = ctx.Err()
	case len(result.Failed) > 0:
		outcome = BatchOutcomePartial
	}
	elapsed := time.Since(started)
	r.logger.Info("payroll batch finished",
		"payDate", payDate.Format(dateLayout),
		"outcome", outcome,
		"employees", len(employees),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped),
		"durationMs", elapsed.Milliseconds(),
	)
	r.observe(outcome, result, elapsed)
	return result, runErr
}

// preflight validates the shared rules once and returns their evaluation plan.
// Only tax configurations in force on payDate are checked. A plan is nil when
// the shared components only fail per employee.
func (r *Runner) preflight(snap Snapshot, payDate time.Time) (*evaluationPlan, error) {
	plan, err := planEvaluation(ActiveComponents(snap.Components))
	if err != nil && IsStructural(err) {
		return nil, err
	}
	day := dateOnly(payDate)
	for _, cfg := range snap.TaxConfigurations {
		if !cfg.IsActive || !cfg.appliesOn(day) {
			continue
		}
		if _, err := ValidateSlabs(cfg.TaxType, cfg.Slabs); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (r *Runner) runEmployee(ctx context.Context, payDate time.Time, employee EmployeeInput, snap Snapshot, shared *evaluationPlan) (out employeeOutcome) {
	defer func() {
		if p := recover(); p != nil {
			out = failed(employee.EmployeeID, fmt.Errorf("%w: %v", ErrEmployeePanic, p))
		}
	}()
	if ctx.Err() != nil {
		return employeeOutcome{skipped: true}
	}
	if strings.TrimSpace(employee.EmployeeID) == "" {
		return failed(employee.EmployeeID, fmt.Errorf("%w: employee id is required", ErrInvalidEmployeeInput))
	}
	if employee.BasicSalary.IsNegative() {
		return failed(employee.EmployeeID, ErrNegativeBasicSalary)
	}

	configs, err := ConfigurationsForRegime(snap.TaxConfigurations, employee.TaxRegime, payDate)
	if err != nil {
		return failed(employee.EmployeeID, err)
	}
	var slip Payslip
	if len(employee.Components) == 0 && shared != nil {
		slip, err = assemble(employee.BasicSalary, shared, configs, payDate)
	} else {
		slip, err = Assemble(employee.BasicSalary, MergeComponents(snap.Components, employee.Components), configs, payDate)
	}
	if err != nil {
		return failed(employee.EmployeeID, err)
	}
	slip.EmployeeID = employee.EmployeeID
	return employeeOutcome{payslip: &slip}
}

func (r *Runner) observe(outcome string, result BatchResult, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveBatch(outcome, result, elapsed)
	}
}

func failed(employeeID string, err error) employeeOutcome {
	return employeeOutcome{failure: &BatchFailure{
		EmployeeID: employeeID,
		Code:       ErrorCode(err),
		Message:    err.Error(),
		Err:        err,
	}}
}

// MergeComponents returns shared with every component of overrides replacing
// the shared component of the same code; new codes are appended.
func MergeComponents(shared, overrides []SalaryComponent) []SalaryComponent {
	if len(overrides) == 0 {
		return cloneComponents(shared)
	}
	index := make(map[string]int, len(shared))
	out := make([]SalaryComponent, 0, len(shared)+len(overrides))
	for _, component := range shared {
		index[component.Code] = len(out)
		out = append(out, component)
	}
	for _, component := range overrides {
		if at, ok := index[component.Code]; ok {
			out[at] = component
			continue
		}
		index[component.Code] = len(out)
		out = append(out, component)
	}
	return out
}

// ConfigurationsForRegime keeps exactly one income tax regime: employees on
// the old regime use INCOME_TAX_OLD, everyone else uses INCOME_TAX. When only
// the other regime is configured the employee has no applicable income tax.
func ConfigurationsForRegime(configs []TaxConfiguration, regime TaxRegime, payDate time.Time) ([]TaxConfiguration, error) {
	own, other := TaxTypeIncomeTax, TaxTypeIncomeTaxOld
	if regime == TaxRegimeOld {
		own, other = other, own
	}
	if hasActive(configs, other) && !hasActive(configs, own) {
		return nil, &NoApplicableTaxConfigurationError{TaxType: own, PayDate: dateOnly(payDate)}
	}
	out := make([]TaxConfiguration, 0, len(configs))
	for _, cfg := range configs {
		if cfg.TaxType != other {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func hasActive(configs []TaxConfiguration, taxType TaxType) bool {
	for _, cfg := range configs {
		if cfg.IsActive && cfg.TaxType == taxType {
			return true
		}
	}
	return false
}
