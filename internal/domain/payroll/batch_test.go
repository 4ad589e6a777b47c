package payroll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveBatch(outcome string, _ BatchResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func testRunner(workers int, observer BatchObserver) *Runner {
	return NewRunner(RunnerOptions{
		Workers:  workers,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: observer,
	})
}

func scenarioSnapshot() Snapshot {
	return Snapshot{Components: scenarioComponents(), TaxConfigurations: scenarioTaxConfigs()}
}

func TestRunnerIsolatesEmployeeFailures(t *testing.T) {
	observer := &recordingObserver{}
	employees := []EmployeeInput{
		{EmployeeID: "E3", BasicSalary: dec("50000")},
		{EmployeeID: "E1", BasicSalary: dec("50000")},
		{EmployeeID: "E2", BasicSalary: dec("40000"), Components: []SalaryComponent{
			formulaComponent("BONUS", ComponentTypeBonus, "basicSalary * (0.1"),
		}},
	}

	result, err := testRunner(2, observer).Run(context.Background(), day("2024-06-30"), employees, scenarioSnapshot())
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 2)
	assert.Equal(t, "E1", result.Succeeded[0].EmployeeID)
	assert.Equal(t, "E3", result.Succeeded[1].EmployeeID)
	assert.True(t, dec("59000").Equal(result.Succeeded[0].NetSalary))
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "E2", result.Failed[0].EmployeeID)
	assert.Equal(t, "formula_syntax_error", result.Failed[0].Code)
	var syntaxErr *FormulaSyntaxError
	assert.True(t, errors.As(result.Failed[0].Err, &syntaxErr))
	assert.Empty(t, result.Skipped)
	assert.Equal(t, []string{BatchOutcomePartial}, observer.outcomes)
}

func TestRunnerMatchesSequentialAssembly(t *testing.T) {
	snap := scenarioSnapshot()
	var employees []EmployeeInput
	for i := 0; i < 60; i++ {
		employees = append(employees, EmployeeInput{
			EmployeeID:  fmt.Sprintf("E%03d", i),
			BasicSalary: dec(fmt.Sprintf("%d.%02d", 20000+i*731, i)),
		})
	}
	result, err := testRunner(8, nil).Run(context.Background(), day("2024-06-30"), employees, snap)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, len(employees))

	for i, slip := range result.Succeeded {
		expected, err := Assemble(employees[i].BasicSalary, snap.Components, snap.TaxConfigurations, day("2024-06-30"))
		require.NoError(t, err)
		expected.EmployeeID = employees[i].EmployeeID
		assert.Equal(t, expected.EmployeeID, slip.EmployeeID)
		assert.True(t, expected.NetSalary.Equal(slip.NetSalary))
		assert.True(t, expected.TotalTax.Equal(slip.TotalTax))
	}
}

func TestRunnerAbortsOnStructuralSnapshotDefect(t *testing.T) {
	observer := &recordingObserver{}
	snap := scenarioSnapshot()
	snap.Components = append(snap.Components,
		formulaComponent("A", ComponentTypeAllowance, "B + 1"),
		formulaComponent("B", ComponentTypeAllowance, "A + 1"),
	)
	result, err := testRunner(2, observer).Run(context.Background(), day("2024-06-30"), []EmployeeInput{{EmployeeID: "E1", BasicSalary: dec("1")}}, snap)
	var cycle *CircularDependencyError
	require.True(t, errors.As(err, &cycle))
	assert.Empty(t, result.Succeeded)
	assert.Equal(t, []string{BatchOutcomeFailed}, observer.outcomes)
}

func TestRunnerAbortsOnInvalidSlabs(t *testing.T) {
	snap := scenarioSnapshot()
	snap.TaxConfigurations[0].Slabs = nil
	_, err := testRunner(2, nil).Run(context.Background(), day("2024-06-30"), []EmployeeInput{{EmployeeID: "E1", BasicSalary: dec("1")}}, snap)
	var slabErr *InvalidSlabDefinitionError
	assert.True(t, errors.As(err, &slabErr))
}

func TestRunnerIgnoresInvalidSlabsOutsidePayDate(t *testing.T) {
	snap := scenarioSnapshot()
	expired := day("2023-12-31")
	snap.TaxConfigurations = append(snap.TaxConfigurations, TaxConfiguration{
		ID:            "it-2023",
		TaxType:       TaxTypeIncomeTax,
		EffectiveFrom: day("2023-01-01"),
		EffectiveTo:   &expired,
		IsActive:      true,
	})
	result, err := testRunner(2, nil).Run(context.Background(), day("2024-06-30"), []EmployeeInput{{EmployeeID: "E1", BasicSalary: dec("50000")}}, snap)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.True(t, dec("5000").Equal(result.Succeeded[0].TotalTax))
}

func TestRunnerRecordsDuplicatesAndInvalidInput(t *testing.T) {
	employees := []EmployeeInput{
		{EmployeeID: "E1", BasicSalary: dec("50000")},
		{EmployeeID: "E1", BasicSalary: dec("60000")},
		{EmployeeID: "", BasicSalary: dec("60000")},
		{EmployeeID: "E2", BasicSalary: dec("-1")},
	}
	result, err := testRunner(1, nil).Run(context.Background(), day("2024-06-30"), employees, scenarioSnapshot())
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.True(t, dec("59000").Equal(result.Succeeded[0].NetSalary))

	codes := map[string]string{}
	for _, failure := range result.Failed {
		codes[failure.EmployeeID] = failure.Code
	}
	assert.Equal(t, "duplicate_employee", codes["E1"])
	assert.Equal(t, "invalid_employee_input", codes[""])
	assert.Equal(t, "invalid_employee_input", codes["E2"])
}

func TestRunnerCancellationReturnsPartialResult(t *testing.T) {
	observer := &recordingObserver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	employees := []EmployeeInput{
		{EmployeeID: "E2", BasicSalary: dec("50000")},
		{EmployeeID: "E1", BasicSalary: dec("50000")},
	}
	result, err := testRunner(2, observer).Run(ctx, day("2024-06-30"), employees, scenarioSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Succeeded)
	assert.Equal(t, []string{"E1", "E2"}, result.Skipped)
	assert.Equal(t, []string{BatchOutcomeCancelled}, observer.outcomes)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := scenarioSnapshot()
	snap.TaxConfigurations[0].EffectiveTo = dayPtr("2024-12-31")
	copied := snap.Clone()

	snap.Components[0].Value = dec("90")
	*snap.TaxConfigurations[0].Slabs[0].Max = dec("1")
	*snap.TaxConfigurations[0].EffectiveTo = day("2030-01-01")

	assert.True(t, dec("40").Equal(copied.Components[0].Value))
	assert.True(t, dec("20000").Equal(*copied.TaxConfigurations[0].Slabs[0].Max))
	assert.Equal(t, day("2024-12-31"), *copied.TaxConfigurations[0].EffectiveTo)

	result, err := testRunner(2, nil).Run(context.Background(), day("2024-06-30"), []EmployeeInput{{EmployeeID: "E1", BasicSalary: dec("50000")}}, copied)
	require.NoError(t, err)
	assert.True(t, dec("59000").Equal(result.Succeeded[0].NetSalary))
}

func TestRunnerTaxRegimeSelection(t *testing.T) {
	snap := scenarioSnapshot()
	snap.TaxConfigurations = append(snap.TaxConfigurations, TaxConfiguration{
		ID:            "old",
		TaxType:       TaxTypeIncomeTaxOld,
		EffectiveFrom: day("2024-01-01"),
		IsActive:      true,
		Slabs:         []TaxSlab{{Min: dec("0"), Rate: dec("20")}},
	})
	employees := []EmployeeInput{
		{EmployeeID: "NEW", BasicSalary: dec("50000")},
		{EmployeeID: "OLD", BasicSalary: dec("50000"), TaxRegime: TaxRegimeOld},
	}
	result, err := testRunner(2, nil).Run(context.Background(), day("2024-06-30"), employees, snap)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)

	newSlip, oldSlip := result.Succeeded[0], result.Succeeded[1]
	assert.Equal(t, "NEW", newSlip.EmployeeID)
	assert.True(t, dec("5000").Equal(newSlip.TotalTax))
	assert.NotContains(t, newSlip.TaxBreakdown, TaxTypeIncomeTaxOld)
	assert.True(t, dec("14000").Equal(oldSlip.TotalTax))
	assert.NotContains(t, oldSlip.TaxBreakdown, TaxTypeIncomeTax)
}

func TestRunnerRegimeWithoutOwnIncomeTaxFails(t *testing.T) {
	oldOnly := scenarioSnapshot()
	oldOnly.TaxConfigurations[0].TaxType = TaxTypeIncomeTaxOld
	newOnly := scenarioSnapshot()

	tests := []struct {
		name     string
		snap     Snapshot
		employee EmployeeInput
		missing  TaxType
	}{
		{"old only snapshot new employee", oldOnly, EmployeeInput{EmployeeID: "E1", BasicSalary: dec("50000")}, TaxTypeIncomeTax},
		{"new only snapshot old employee", newOnly, EmployeeInput{EmployeeID: "E1", BasicSalary: dec("50000"), TaxRegime: TaxRegimeOld}, TaxTypeIncomeTaxOld},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := testRunner(1, nil).Run(context.Background(), day("2024-06-30"), []EmployeeInput{tc.employee}, tc.snap)
			require.NoError(t, err)
			assert.Empty(t, result.Succeeded)
			require.Len(t, result.Failed, 1)
			assert.Equal(t, "no_applicable_tax_configuration", result.Failed[0].Code)
			var noConfig *NoApplicableTaxConfigurationError
			require.True(t, errors.As(result.Failed[0].Err, &noConfig))
			assert.Equal(t, tc.missing, noConfig.TaxType)
		})
	}
}

func TestConfigurationsForRegimeWithoutIncomeTax(t *testing.T) {
	configs := []TaxConfiguration{{ID: "pt", TaxType: TaxTypeProfessionalTax, IsActive: true}}
	got, err := ConfigurationsForRegime(configs, TaxRegimeOld, day("2024-06-30"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMergeComponentsOverridesByCode(t *testing.T) {
	merged := MergeComponents(scenarioComponents(), []SalaryComponent{
		{Code: "PF", Type: ComponentTypeDeduction, CalculationType: CalculationFixed, Value: dec("1800"), IsActive: true},
		{Code: "CAR", Type: ComponentTypeAllowance, CalculationType: CalculationFixed, Value: dec("3000"), IsActive: true},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, "HRA", merged[0].Code)
	assert.Equal(t, CalculationFixed, merged[1].CalculationType)
	assert.Equal(t, "CAR", merged[2].Code)
}
