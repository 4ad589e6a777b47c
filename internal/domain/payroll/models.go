package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type SalaryComponent struct {
	Code            string          `json:"code" yaml:"code"`
	Name            string          `json:"name" yaml:"name"`
	Type            ComponentType   `json:"type" yaml:"type"`
	CalculationType CalculationType `json:"calculationType" yaml:"calculationType"`
	Value           decimal.Decimal `json:"value" yaml:"value"`
	Formula         string          `json:"formula,omitempty" yaml:"formula,omitempty"`
	IsTaxable       bool            `json:"isTaxable" yaml:"isTaxable"`
	IsActive        bool            `json:"isActive" yaml:"isActive"`
}

type TaxSlab struct {
	Min      decimal.Decimal  `json:"min" yaml:"min"`
	Max      *decimal.Decimal `json:"max,omitempty" yaml:"max,omitempty"`
	Rate     decimal.Decimal  `json:"rate" yaml:"rate"`
	RateKind RateKind         `json:"rateKind,omitempty" yaml:"rateKind,omitempty"`
}

type TaxConfiguration struct {
	ID            string     `json:"id" yaml:"id"`
	TaxType       TaxType    `json:"taxType" yaml:"taxType"`
	EffectiveFrom time.Time  `json:"effectiveFrom" yaml:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty" yaml:"effectiveTo,omitempty"`
	IsActive      bool       `json:"isActive" yaml:"isActive"`
	Slabs         []TaxSlab  `json:"slabs" yaml:"slabs"`
}

// Payslip is the assembled breakdown for one employee and pay date.
type Payslip struct {
	EmployeeID         string                      `json:"employeeId,omitempty"`
	PayDate            time.Time                   `json:"payDate"`
	BasicSalary        decimal.Decimal             `json:"basicSalary"`
	ComponentBreakdown map[string]decimal.Decimal  `json:"componentBreakdown"`
	GrossSalary        decimal.Decimal             `json:"grossSalary"`
	TaxableIncome      decimal.Decimal             `json:"taxableIncome"`
	TaxBreakdown       map[TaxType]decimal.Decimal `json:"taxBreakdown"`
	TotalAllowances    decimal.Decimal             `json:"totalAllowances"`
	TotalDeductions    decimal.Decimal             `json:"totalDeductions"`
	TotalBonuses       decimal.Decimal             `json:"totalBonuses"`
	TotalTax           decimal.Decimal             `json:"totalTax"`
	NetSalary          decimal.Decimal             `json:"netSalary"`
}

// EmployeeInput is one row of a batch. Components override shared
// components with the same code.
type EmployeeInput struct {
	EmployeeID  string            `json:"employeeId" validate:"required"`
	BasicSalary decimal.Decimal   `json:"basicSalary"`
	Components  []SalaryComponent `json:"components,omitempty" validate:"dive"`
	TaxRegime   TaxRegime         `json:"taxRegime,omitempty" validate:"omitempty,oneof=NEW OLD"`
}

type BatchFailure struct {
	EmployeeID string `json:"employeeId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

type BatchResult struct {
	Succeeded []Payslip      `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
	Skipped   []string       `json:"skipped,omitempty"`
}

type Employee struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Email       string          `json:"email,omitempty" validate:"omitempty,email"`
	BasicSalary decimal.Decimal `json:"basicSalary"`
	Status      string          `json:"status" validate:"omitempty,oneof=active inactive"`
	TaxRegime   TaxRegime       `json:"taxRegime" validate:"omitempty,oneof=NEW OLD"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type Period struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartDate time.Time  `json:"startDate"`
	EndDate   time.Time  `json:"endDate"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	Finalized *time.Time `json:"finalizedAt,omitempty"`
}

// PayDate is the date whose tax configurations apply to the period.
func (p Period) PayDate() time.Time {
	return p.EndDate
}

type Run struct {
	ID          string         `json:"id"`
	PeriodID    string         `json:"periodId"`
	Status      string         `json:"status"`
	Succeeded   int            `json:"succeeded"`
	FailedCount int            `json:"failedCount"`
	Failures    []BatchFailure `json:"failures,omitempty"`
	Skipped     []string       `json:"skipped,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

type PayslipRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	PeriodID  string    `json:"periodId"`
	Payslip   Payslip   `json:"payslip"`
	Warnings  []string  `json:"warnings,omitempty"`
	FileKey   string    `json:"fileKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type RunSummary struct {
	Run          Run             `json:"run"`
	TotalGross   decimal.Decimal `json:"totalGross"`
	TotalTax     decimal.Decimal `json:"totalTax"`
	TotalNet     decimal.Decimal `json:"totalNet"`
	WarningCount map[string]int  `json:"warnings"`
}

// PreviewRequest computes a payslip without persisting it. BasicSalary and
// TaxRegime override the stored employee when EmployeeID is set.
type PreviewRequest struct {
	EmployeeID  string            `json:"employeeId,omitempty"`
	BasicSalary *decimal.Decimal  `json:"basicSalary,omitempty"`
	Components  []SalaryComponent `json:"components,omitempty"`
	TaxRegime   TaxRegime         `json:"taxRegime,omitempty" validate:"omitempty,oneof=NEW OLD"`
	PayDate     time.Time         `json:"payDate"`
}

type PreviewResult struct {
	Payslip  Payslip  `json:"payslip"`
	Warnings []string `json:"warnings,omitempty"`
}

// PreparedRun is a run row that has been recorded but not yet executed.
type PreparedRun struct {
	Run       Run
	Period    Period
	Snapshot  Snapshot
	Employees []EmployeeInput
}
