package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"paycalc/internal/domain/payroll"
	"paycalc/internal/platform/config"
)

// Seed loads the configured snapshot file into the seed tenant. A tenant that
// already has components or tax configurations is left untouched.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	snap, err := payroll.LoadSnapshotFile(cfg.SeedSnapshotFile)
	if err != nil {
		return err
	}
	return SeedSnapshot(ctx, payroll.NewStore(pool), cfg.SeedTenantID, snap)
}

type snapshotSeeder interface {
	ListComponents(ctx context.Context, tenantID string) ([]payroll.SalaryComponent, error)
	UpsertComponent(ctx context.Context, tenantID string, component payroll.SalaryComponent) error
	ListTaxConfigurations(ctx context.Context, tenantID string) ([]payroll.TaxConfiguration, error)
	CreateTaxConfiguration(ctx context.Context, tenantID string, cfg payroll.TaxConfiguration) (string, error)
}

func SeedSnapshot(ctx context.Context, store snapshotSeeder, tenantID string, snap payroll.Snapshot) error {
	components, err := store.ListComponents(ctx, tenantID)
	if err != nil {
		return err
	}
	configs, err := store.ListTaxConfigurations(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(components) > 0 || len(configs) > 0 {
		slog.Info("seed skipped, tenant already configured", "tenantId", tenantID)
		return nil
	}

	for _, component := range snap.Components {
		if err := store.UpsertComponent(ctx, tenantID, component); err != nil {
			return err
		}
	}
	for _, cfg := range snap.TaxConfigurations {
		if _, err := store.CreateTaxConfiguration(ctx, tenantID, cfg); err != nil {
			return err
		}
	}
	slog.Info("seeded payroll rules", "tenantId", tenantID, "components", len(snap.Components), "taxConfigurations", len(snap.TaxConfigurations))
	return nil
}
