package payroll

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPeriodNotFound          = errors.New("payroll period not found")
	ErrRunNotFound             = errors.New("payroll run not found")
	ErrPayslipNotFound         = errors.New("payslip not found")
	ErrEmployeeNotFound        = errors.New("employee not found")
	ErrPeriodFinalized         = errors.New("payroll period already finalized")
	ErrFinalizeInvalidState    = errors.New("payroll period must be reviewed before finalize")
	ErrFinalizeNoResults       = errors.New("payroll period has no payroll results")
	ErrDuplicateEmployee       = errors.New("employee appears more than once in batch")
	ErrTaxConfigurationOverlap = errors.New("tax configuration overlaps an active configuration of the same type")
	ErrEmployeePanic           = errors.New("payslip assembly panicked")
	ErrComponentNotFound       = errors.New("salary component not found")
	ErrStorageNotConfigured    = errors.New("payslip storage not configured")
	ErrSnapshotEmpty           = errors.New("payroll snapshot has no components or tax configurations")
	ErrInvalidEmployeeInput    = errors.New("invalid employee input")
	ErrInvalidTaxConfigWindow  = errors.New("tax configuration effectiveTo is before effectiveFrom")
	ErrInvalidPeriodDates      = errors.New("payroll period end date is before start date")
	ErrNegativeBasicSalary     = errors.New("basic salary must not be negative")
)

type FormulaSyntaxError struct {
	Expression string
	Position   int
	Message    string
}

func (e *FormulaSyntaxError) Error() string {
	return fmt.Sprintf("formula syntax error at position %d in %q: %s", e.Position, e.Expression, e.Message)
}

type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

type DivisionByZeroError struct {
	Expression string
}

func (e *DivisionByZeroError) Error() string {
	if e.Expression == "" {
		return "division by zero"
	}
	return fmt.Sprintf("division by zero in %q", e.Expression)
}

type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return "circular component dependency: " + strings.Join(e.Cycle, " -> ")
}

type InvalidSlabDefinitionError struct {
	TaxType TaxType
	Reason  string
}

func (e *InvalidSlabDefinitionError) Error() string {
	if e.TaxType == "" {
		return "invalid slab definition: " + e.Reason
	}
	return fmt.Sprintf("invalid slab definition for %s: %s", e.TaxType, e.Reason)
}

type NoApplicableTaxConfigurationError struct {
	TaxType TaxType
	PayDate time.Time
}

func (e *NoApplicableTaxConfigurationError) Error() string {
	return fmt.Sprintf("no applicable %s configuration for %s", e.TaxType, e.PayDate.Format(dateLayout))
}

type InvalidComponentError struct {
	Code   string
	Reason string
}

func (e *InvalidComponentError) Error() string {
	if e.Code == "" {
		return "invalid component: " + e.Reason
	}
	return fmt.Sprintf("invalid component %q: %s", e.Code, e.Reason)
}

// ComponentError attributes an evaluation failure to the component being resolved.
type ComponentError struct {
	Code string
	Err  error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %v", e.Code, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err describes a defect in the configuration
// itself rather than in a single employee's data.
func IsStructural(err error) bool {
	var cycle *CircularDependencyError
	var slab *InvalidSlabDefinitionError
	var component *InvalidComponentError
	return errors.As(err, &cycle) || errors.As(err, &slab) || errors.As(err, &component)
}

// ErrorCode maps a computation error to the stable code used in API responses
// and batch failure records.
func ErrorCode(err error) string {
	var syntax *FormulaSyntaxError
	var unknown *UnknownVariableError
	var divZero *DivisionByZeroError
	var cycle *CircularDependencyError
	var slab *InvalidSlabDefinitionError
	var noConfig *NoApplicableTaxConfigurationError
	var component *InvalidComponentError
	switch {
	case errors.As(err, &syntax):
		return "formula_syntax_error"
	case errors.As(err, &unknown):
		return "unknown_variable"
	case errors.As(err, &divZero):
		return "division_by_zero"
	case errors.As(err, &cycle):
		return "circular_dependency"
	case errors.As(err, &slab):
		return "invalid_slab_definition"
	case errors.As(err, &noConfig):
		return "no_applicable_tax_configuration"
	case errors.As(err, &component):
		return "invalid_component"
	case errors.Is(err, ErrDuplicateEmployee):
		return "duplicate_employee"
	case errors.Is(err, ErrEmployeePanic):
		return "internal_error"
	case errors.Is(err, ErrNegativeBasicSalary), errors.Is(err, ErrInvalidEmployeeInput):
		return "invalid_employee_input"
	default:
		return "payroll_error"
	}
}
