package payroll

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioComponents() []SalaryComponent {
	return []SalaryComponent{
		{Code: "HRA", Name: "House Rent Allowance", Type: ComponentTypeAllowance, CalculationType: CalculationPercentageOfBasic, Value: dec("40"), IsTaxable: true, IsActive: true},
		{Code: "PF", Name: "Provident Fund", Type: ComponentTypeDeduction, CalculationType: CalculationPercentageOfBasic, Value: dec("12"), IsActive: true},
	}
}

func scenarioTaxConfigs() []TaxConfiguration {
	return []TaxConfiguration{{
		ID:            "it-2024",
		TaxType:       TaxTypeIncomeTax,
		EffectiveFrom: day("2024-01-01"),
		IsActive:      true,
		Slabs: []TaxSlab{
			{Min: dec("0"), Max: decPtr("20000"), Rate: dec("0")},
			{Min: dec("20000"), Rate: dec("10")},
		},
	}}
}

func TestAssembleScenario(t *testing.T) {
	slip, err := Assemble(dec("50000"), scenarioComponents(), scenarioTaxConfigs(), day("2024-06-30"))
	require.NoError(t, err)

	assert.True(t, dec("20000").Equal(slip.ComponentBreakdown["HRA"]))
	assert.True(t, dec("6000").Equal(slip.ComponentBreakdown["PF"]))
	assert.True(t, dec("70000").Equal(slip.GrossSalary))
	assert.True(t, dec("70000").Equal(slip.TaxableIncome))
	assert.True(t, dec("5000").Equal(slip.TaxBreakdown[TaxTypeIncomeTax]))
	assert.True(t, dec("5000").Equal(slip.TotalTax))
	assert.True(t, dec("20000").Equal(slip.TotalAllowances))
	assert.True(t, dec("6000").Equal(slip.TotalDeductions))
	assert.True(t, dec("0").Equal(slip.TotalBonuses))
	assert.True(t, dec("59000").Equal(slip.NetSalary))
}

func TestAssembleNonTaxableAllowanceAndBonus(t *testing.T) {
	components := append(scenarioComponents(),
		SalaryComponent{Code: "MEAL", Type: ComponentTypeAllowance, CalculationType: CalculationFixed, Value: dec("2200"), IsActive: true},
		SalaryComponent{Code: "PERF", Type: ComponentTypeBonus, CalculationType: CalculationFormula, Formula: "grossSalary * 0.1", IsActive: true},
		SalaryComponent{Code: "LEGACY", Type: ComponentTypeAllowance, CalculationType: CalculationFixed, Value: dec("999"), IsActive: false},
	)
	slip, err := Assemble(dec("50000"), components, scenarioTaxConfigs(), day("2024-06-30"))
	require.NoError(t, err)

	assert.True(t, dec("72200").Equal(slip.GrossSalary))
	assert.True(t, dec("70000").Equal(slip.TaxableIncome))
	assert.True(t, dec("7220").Equal(slip.ComponentBreakdown["PERF"]))
	assert.NotContains(t, slip.ComponentBreakdown, "LEGACY")
	assert.True(t, dec("72200").Add(dec("7220")).Sub(dec("6000")).Sub(dec("5000")).Equal(slip.NetSalary))
}

func TestAssemblePercentageOfGross(t *testing.T) {
	components := append(scenarioComponents(),
		SalaryComponent{Code: "LWF", Type: ComponentTypeDeduction, CalculationType: CalculationPercentageOfGross, Value: dec("0.5"), IsActive: true},
	)
	slip, err := Assemble(dec("50000"), components, nil, day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, dec("350").Equal(slip.ComponentBreakdown["LWF"]))
	assert.Empty(t, slip.TaxBreakdown)
	assert.True(t, dec("63650").Equal(slip.NetSalary))
}

func TestAssembleRoundsHalfAwayFromZero(t *testing.T) {
	components := []SalaryComponent{
		{Code: "A", Type: ComponentTypeAllowance, CalculationType: CalculationFormula, Formula: "basicSalary / 3", IsActive: true},
		{Code: "B", Type: ComponentTypeDeduction, CalculationType: CalculationFixed, Value: dec("10.005"), IsActive: true},
	}
	slip, err := Assemble(dec("100"), components, nil, day("2024-06-30"))
	require.NoError(t, err)
	assert.Equal(t, "33.33", slip.ComponentBreakdown["A"].StringFixed(2))
	assert.Equal(t, "10.01", slip.ComponentBreakdown["B"].StringFixed(2))
	assert.Equal(t, "123.32", slip.NetSalary.StringFixed(2))
}

func TestAssembleMultipleTaxTypes(t *testing.T) {
	configs := append(scenarioTaxConfigs(), TaxConfiguration{
		ID:            "pt",
		TaxType:       TaxTypeProfessionalTax,
		EffectiveFrom: day("2024-01-01"),
		IsActive:      true,
		Slabs: []TaxSlab{
			{Min: dec("0"), Max: decPtr("15000"), Rate: dec("0"), RateKind: RateKindFlat},
			{Min: dec("15000"), Rate: dec("200"), RateKind: RateKindFlat},
		},
	})
	slip, err := Assemble(dec("50000"), scenarioComponents(), configs, day("2024-06-30"))
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(slip.TaxBreakdown[TaxTypeProfessionalTax]))
	assert.True(t, dec("5200").Equal(slip.TotalTax))
	assert.True(t, dec("58800").Equal(slip.NetSalary))
}

func TestAssembleErrors(t *testing.T) {
	t.Run("unknown variable names component", func(t *testing.T) {
		components := []SalaryComponent{formulaComponent("X", ComponentTypeBonus, "MISSING * 2")}
		_, err := Assemble(dec("100"), components, nil, day("2024-06-30"))
		var componentErr *ComponentError
		require.True(t, errors.As(err, &componentErr))
		assert.Equal(t, "X", componentErr.Code)
		var unknown *UnknownVariableError
		assert.True(t, errors.As(err, &unknown))
		assert.Equal(t, "unknown_variable", ErrorCode(err))
	})
	t.Run("division by zero", func(t *testing.T) {
		components := []SalaryComponent{formulaComponent("X", ComponentTypeBonus, "basicSalary / 0")}
		_, err := Assemble(dec("100"), components, nil, day("2024-06-30"))
		var divZero *DivisionByZeroError
		assert.True(t, errors.As(err, &divZero))
	})
	t.Run("no applicable configuration", func(t *testing.T) {
		_, err := Assemble(dec("100"), nil, scenarioTaxConfigs(), day("2023-12-31"))
		var noConfig *NoApplicableTaxConfigurationError
		assert.True(t, errors.As(err, &noConfig))
	})
	t.Run("invalid slabs", func(t *testing.T) {
		configs := scenarioTaxConfigs()
		configs[0].Slabs = configs[0].Slabs[:1]
		_, err := Assemble(dec("100"), nil, configs, day("2024-06-30"))
		assert.True(t, IsStructural(err))
	})
}

func TestAssembleIsDeterministic(t *testing.T) {
	components := append(scenarioComponents(),
		SalaryComponent{Code: "PERF", Type: ComponentTypeBonus, CalculationType: CalculationFormula, Formula: "(grossSalary - PF) / 7", IsActive: true},
		SalaryComponent{Code: "CONV", Type: ComponentTypeAllowance, CalculationType: CalculationFixed, Value: dec("1600"), IsTaxable: true, IsActive: true},
	)
	first, err := Assemble(dec("48321.77"), components, scenarioTaxConfigs(), day("2024-06-30"))
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		shuffled := append([]SalaryComponent(nil), components...)
		rand.New(rand.NewSource(int64(i))).Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		again, err := Assemble(dec("48321.77"), shuffled, scenarioTaxConfigs(), day("2024-06-30"))
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.JSONEq(t, string(firstJSON), string(againJSON))
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestAssembleNetIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		basic := decimal.New(rng.Int63n(20000000), -2)
		components := []SalaryComponent{
			{Code: "HRA", Type: ComponentTypeAllowance, CalculationType: CalculationPercentageOfBasic, Value: decimal.New(rng.Int63n(5000), -2), IsTaxable: rng.Intn(2) == 0, IsActive: true},
			{Code: "SPL", Type: ComponentTypeAllowance, CalculationType: CalculationFixed, Value: decimal.New(rng.Int63n(1000000), -3), IsTaxable: true, IsActive: true},
			{Code: "PF", Type: ComponentTypeDeduction, CalculationType: CalculationPercentageOfBasic, Value: dec("12"), IsActive: true},
			{Code: "ESI", Type: ComponentTypeDeduction, CalculationType: CalculationPercentageOfGross, Value: dec("0.75"), IsActive: true},
			{Code: "PERF", Type: ComponentTypeBonus, CalculationType: CalculationFormula, Formula: "SPL / 3 + HRA * 0.07", IsActive: true},
		}
		slip, err := Assemble(basic, components, scenarioTaxConfigs(), day("2024-06-30"))
		require.NoError(t, err)

		allowances := decimal.Zero
		for _, code := range []string{"HRA", "SPL"} {
			allowances = allowances.Add(slip.ComponentBreakdown[code])
		}
		assert.True(t, slip.GrossSalary.Equal(slip.BasicSalary.Add(allowances)))
		expected := slip.GrossSalary.Add(slip.TotalBonuses).Sub(slip.TotalDeductions).Sub(slip.TotalTax)
		assert.True(t, expected.Equal(slip.NetSalary), "net identity broken for basic %s", basic)
		assert.True(t, slip.TaxableIncome.LessThanOrEqual(slip.GrossSalary))
	}
}

func TestWarnings(t *testing.T) {
	slip := Payslip{BasicSalary: dec("0"), TaxableIncome: dec("0"), NetSalary: dec("-5")}
	assert.Equal(t, []string{WarningMissingBasic, WarningZeroTaxable, WarningNegativeNet}, Warnings(slip))
	assert.Empty(t, Warnings(Payslip{BasicSalary: dec("10"), TaxableIncome: dec("10"), NetSalary: dec("1")}))
}
