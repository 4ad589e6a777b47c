package db

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"paycalc/internal/domain/payroll"
)

type memorySeeder struct {
	components []payroll.SalaryComponent
	configs    []payroll.TaxConfiguration
}

func (m *memorySeeder) ListComponents(context.Context, string) ([]payroll.SalaryComponent, error) {
	return m.components, nil
}

func (m *memorySeeder) UpsertComponent(_ context.Context, _ string, component payroll.SalaryComponent) error {
	m.components = append(m.components, component)
	return nil
}

func (m *memorySeeder) ListTaxConfigurations(context.Context, string) ([]payroll.TaxConfiguration, error) {
	return m.configs, nil
}

func (m *memorySeeder) CreateTaxConfiguration(_ context.Context, _ string, cfg payroll.TaxConfiguration) (string, error) {
	m.configs = append(m.configs, cfg)
	return "cfg", nil
}

func TestSeedSnapshotOnlySeedsEmptyTenant(t *testing.T) {
	snap := payroll.Snapshot{
		Components: []payroll.SalaryComponent{{
			Code: "HRA", Type: payroll.ComponentTypeAllowance, CalculationType: payroll.CalculationPercentageOfBasic,
			Value: decimal.NewFromInt(40), IsActive: true,
		}},
		TaxConfigurations: []payroll.TaxConfiguration{{TaxType: payroll.TaxTypeIncomeTax, IsActive: true}},
	}
	store := &memorySeeder{}
	if err := SeedSnapshot(context.Background(), store, "t1", snap); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(store.components) != 1 || len(store.configs) != 1 {
		t.Fatalf("expected seeded rules, got %d components %d configs", len(store.components), len(store.configs))
	}
	if err := SeedSnapshot(context.Background(), store, "t1", snap); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(store.components) != 1 {
		t.Fatalf("expected second seed to be a no-op, got %d components", len(store.components))
	}
}

func TestExampleSnapshotFileIsValid(t *testing.T) {
	snap, err := payroll.LoadSnapshotFile("../../../config/snapshot.example.yaml")
	if err != nil {
		t.Fatalf("load example snapshot: %v", err)
	}
	if len(snap.Components) != 4 || len(snap.TaxConfigurations) != 3 {
		t.Fatalf("unexpected example snapshot: %d components %d configs", len(snap.Components), len(snap.TaxConfigurations))
	}

	store := &memorySeeder{}
	if err := SeedSnapshot(context.Background(), store, "default", snap); err != nil {
		t.Fatalf("seed example: %v", err)
	}
	if len(store.components) != 4 {
		t.Fatalf("expected 4 seeded components, got %d", len(store.components))
	}
}
