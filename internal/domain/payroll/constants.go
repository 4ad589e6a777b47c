package payroll

type ComponentType string

const (
	ComponentTypeAllowance ComponentType = "ALLOWANCE"
	ComponentTypeDeduction ComponentType = "DEDUCTION"
	ComponentTypeBonus     ComponentType = "BONUS"
)

type CalculationType string

const (
	CalculationFixed             CalculationType = "FIXED"
	CalculationPercentageOfBasic CalculationType = "PERCENTAGE_OF_BASIC"
	CalculationPercentageOfGross CalculationType = "PERCENTAGE_OF_GROSS"
	CalculationFormula           CalculationType = "FORMULA"
)

type TaxType string

const (
	TaxTypeIncomeTax       TaxType = "INCOME_TAX"
	TaxTypeIncomeTaxOld    TaxType = "INCOME_TAX_OLD"
	TaxTypeProfessionalTax TaxType = "PROFESSIONAL_TAX"
	TaxTypeTDS             TaxType = "TDS"
)

type RateKind string

const (
	RateKindPercentage RateKind = "PERCENTAGE"
	RateKindFlat       RateKind = "FLAT"
)

type TaxRegime string

const (
	TaxRegimeNew TaxRegime = "NEW"
	TaxRegimeOld TaxRegime = "OLD"
)

// Identifiers bound by the assembler before any component is evaluated.
const (
	VarBasicSalary = "basicSalary"
	VarGrossSalary = "grossSalary"
)

const (
	PeriodStatusDraft     = "draft"
	PeriodStatusReviewed  = "reviewed"
	PeriodStatusFinalized = "finalized"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"

	WarningNegativeNet  = "negative_net"
	WarningZeroTaxable  = "zero_taxable_income"
	WarningMissingBasic = "missing_basic_salary"

	EmployeeStatusActive   = "active"
	EmployeeStatusInactive = "inactive"

	JobPayrollRun = "payroll_run"
)

var (
	ComponentTypes   = []ComponentType{ComponentTypeAllowance, ComponentTypeDeduction, ComponentTypeBonus}
	CalculationTypes = []CalculationType{CalculationFixed, CalculationPercentageOfBasic, CalculationPercentageOfGross, CalculationFormula}
	TaxTypes         = []TaxType{TaxTypeIncomeTax, TaxTypeIncomeTaxOld, TaxTypeProfessionalTax, TaxTypeTDS}
)

func (t ComponentType) Valid() bool {
	for _, candidate := range ComponentTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

func (c CalculationType) Valid() bool {
	for _, candidate := range CalculationTypes {
		if c == candidate {
			return true
		}
	}
	return false
}

func (t TaxType) Valid() bool {
	for _, candidate := range TaxTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

func (k RateKind) Valid() bool {
	return k == "" || k == RateKindPercentage || k == RateKindFlat
}

func (k RateKind) IsFlat() bool {
	return k == RateKindFlat
}
