package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Assemble computes the payslip for one employee. It performs no I/O and the
// same inputs always produce the same payslip.
func Assemble(basicSalary decimal.Decimal, components []SalaryComponent, taxConfigurations []TaxConfiguration, payDate time.Time) (Payslip, error) {
	plan, err := planEvaluation(ActiveComponents(components))
	if err != nil {
		return Payslip{}, err
	}
	return assemble(basicSalary, plan, taxConfigurations, payDate)
}

func assemble(basicSalary decimal.Decimal, plan *evaluationPlan, taxConfigurations []TaxConfiguration, payDate time.Time) (Payslip, error) {
	basic := RoundMoney(basicSalary)
	slip := Payslip{
		PayDate:            dateOnly(payDate),
		BasicSalary:        basic,
		ComponentBreakdown: make(map[string]decimal.Decimal, len(plan.components)),
		TaxBreakdown:       map[TaxType]decimal.Decimal{},
		TotalAllowances:    decimal.Zero,
		TotalDeductions:    decimal.Zero,
		TotalBonuses:       decimal.Zero,
		TotalTax:           decimal.Zero,
	}
	taxable := basic
	bindings := map[string]decimal.Decimal{VarBasicSalary: basic}

	for _, code := range plan.order {
		if code == VarGrossSalary {
			bindings[VarGrossSalary] = basic.Add(slip.TotalAllowances)
			continue
		}
		component := plan.components[code]
		amount, err := componentAmount(component, plan.formulas[code], bindings)
		if err != nil {
			return Payslip{}, &ComponentError{Code: code, Err: err}
		}
		amount = RoundMoney(amount)
		bindings[code] = amount
		slip.ComponentBreakdown[code] = amount

		switch component.Type {
		case ComponentTypeAllowance:
			slip.TotalAllowances = slip.TotalAllowances.Add(amount)
			if component.IsTaxable {
				taxable = taxable.Add(amount)
			}
		case ComponentTypeDeduction:
			slip.TotalDeductions = slip.TotalDeductions.Add(amount)
		case ComponentTypeBonus:
			slip.TotalBonuses = slip.TotalBonuses.Add(amount)
		}
	}

	slip.GrossSalary = basic.Add(slip.TotalAllowances)
	slip.TaxableIncome = taxable

	for _, taxType := range activeTaxTypes(taxConfigurations) {
		cfg, err := SelectConfiguration(taxConfigurations, taxType, payDate)
		if err != nil {
			return Payslip{}, err
		}
		table, err := CompileSlabs(cfg.TaxType, cfg.Slabs)
		if err != nil {
			return Payslip{}, err
		}
		amount := RoundMoney(table.TaxFor(slip.TaxableIncome))
		slip.TaxBreakdown[taxType] = amount
		slip.TotalTax = slip.TotalTax.Add(amount)
	}

	slip.NetSalary = slip.GrossSalary.Add(slip.TotalBonuses).Sub(slip.TotalDeductions).Sub(slip.TotalTax)
	return slip, nil
}

func componentAmount(component SalaryComponent, expr *Expression, bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch component.CalculationType {
	case CalculationFixed:
		return component.Value, nil
	case CalculationPercentageOfBasic:
		return component.Value.Mul(bindings[VarBasicSalary]).Mul(onePercent), nil
	case CalculationPercentageOfGross:
		return component.Value.Mul(bindings[VarGrossSalary]).Mul(onePercent), nil
	case CalculationFormula:
		return expr.Eval(bindings)
	}
	return decimal.Zero, &InvalidComponentError{Code: component.Code, Reason: "unknown calculation type " + string(component.CalculationType)}
}

// RoundMoney rounds half away from zero to two decimal places.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

func ActiveComponents(components []SalaryComponent) []SalaryComponent {
	out := make([]SalaryComponent, 0, len(components))
	for _, component := range components {
		if component.IsActive {
			out = append(out, component)
		}
	}
	return out
}

func activeTaxTypes(configs []TaxConfiguration) []TaxType {
	seen := map[TaxType]struct{}{}
	var out []TaxType
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		if _, ok := seen[cfg.TaxType]; ok {
			continue
		}
		seen[cfg.TaxType] = struct{}{}
		out = append(out, cfg.TaxType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Warnings flags payslips that computed cleanly but need a reviewer's eye.
func Warnings(slip Payslip) []string {
	var out []string
	if slip.BasicSalary.IsZero() {
		out = append(out, WarningMissingBasic)
	}
	if !slip.TaxableIncome.IsPositive() {
		out = append(out, WarningZeroTaxable)
	}
	if slip.NetSalary.IsNegative() {
		out = append(out, WarningNegativeNet)
	}
	return out
}
