package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) ListComponents(ctx context.Context, tenantID string) ([]SalaryComponent, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT code, name, component_type, calculation_type, value::text, formula, is_taxable, is_active
    FROM salary_components
    WHERE tenant_id = $1
    ORDER BY code
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []SalaryComponent
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, component)
	}
	return components, rows.Err()
}

func (s *Store) UpsertComponent(ctx context.Context, tenantID string, component SalaryComponent) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO salary_components (tenant_id, code, name, component_type, calculation_type, value, formula, is_taxable, is_active)
    VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9)
    ON CONFLICT (tenant_id, code)
    DO UPDATE SET name = EXCLUDED.name, component_type = EXCLUDED.component_type,
                  calculation_type = EXCLUDED.calculation_type, value = EXCLUDED.value,
                  formula = EXCLUDED.formula, is_taxable = EXCLUDED.is_taxable,
                  is_active = EXCLUDED.is_active, updated_at = now()
  `, tenantID, component.Code, component.Name, string(component.Type), string(component.CalculationType),
		component.Value.String(), component.Formula, component.IsTaxable, component.IsActive)
	return err
}

func (s *Store) SetComponentActive(ctx context.Context, tenantID, code string, active bool) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE salary_components SET is_active = $1, updated_at = now()
    WHERE tenant_id = $2 AND code = $3
  `, active, tenantID, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrComponentNotFound
	}
	return nil
}

func (s *Store) ListTaxConfigurations(ctx context.Context, tenantID string) ([]TaxConfiguration, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, tax_type, effective_from, effective_to, is_active, slabs
    FROM tax_configurations
    WHERE tenant_id = $1
    ORDER BY tax_type, effective_from DESC, id
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []TaxConfiguration
	for rows.Next() {
		var cfg TaxConfiguration
		var taxType string
		var slabsJSON []byte
		if err := rows.Scan(&cfg.ID, &taxType, &cfg.EffectiveFrom, &cfg.EffectiveTo, &cfg.IsActive, &slabsJSON); err != nil {
			return nil, err
		}
		cfg.TaxType = TaxType(taxType)
		if err := json.Unmarshal(slabsJSON, &cfg.Slabs); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *Store) CreateTaxConfiguration(ctx context.Context, tenantID string, cfg TaxConfiguration) (string, error) {
	slabsJSON, err := json.Marshal(cfg.Slabs)
	if err != nil {
		return "", err
	}
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO tax_configurations (tenant_id, tax_type, effective_from, effective_to, is_active, slabs)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id
  `, tenantID, string(cfg.TaxType), cfg.EffectiveFrom, cfg.EffectiveTo, cfg.IsActive, slabsJSON).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) CountEmployees(ctx context.Context, tenantID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM employees WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListEmployees(ctx context.Context, tenantID string, limit, offset int) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, COALESCE(email, ''), basic_salary::text, status, tax_regime, created_at
    FROM employees
    WHERE tenant_id = $1
    ORDER BY name, id
    LIMIT $2 OFFSET $3
  `, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var employee Employee
		var basic, regime string
		if err := rows.Scan(&employee.ID, &employee.Name, &employee.Email, &basic, &employee.Status, &regime, &employee.CreatedAt); err != nil {
			return nil, err
		}
		if employee.BasicSalary, err = decimal.NewFromString(basic); err != nil {
			return nil, err
		}
		employee.TaxRegime = TaxRegime(regime)
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, tenantID string, employee Employee) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, name, email, basic_salary, status, tax_regime)
    VALUES ($1,$2,$3,$4::numeric,$5,$6)
    RETURNING id
  `, tenantID, employee.Name, nullIfEmpty(employee.Email), employee.BasicSalary.String(), employee.Status, string(employee.TaxRegime)).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ReplaceEmployeeComponents(ctx context.Context, tenantID, employeeID string, components []SalaryComponent) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
      SELECT EXISTS (SELECT 1 FROM employees WHERE tenant_id = $1 AND id = $2)
    `, tenantID, employeeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrEmployeeNotFound
		}
		if _, err := tx.Exec(ctx, "DELETE FROM employee_components WHERE tenant_id = $1 AND employee_id = $2", tenantID, employeeID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, component := range components {
			batch.Queue(`
        INSERT INTO employee_components (tenant_id, employee_id, code, name, component_type, calculation_type, value, formula, is_taxable, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10)
      `, tenantID, employeeID, component.Code, component.Name, string(component.Type), string(component.CalculationType),
				component.Value.String(), component.Formula, component.IsTaxable, component.IsActive)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) GetEmployeeInput(ctx context.Context, tenantID, employeeID string) (EmployeeInput, error) {
	var input EmployeeInput
	var basic, regime string
	err := s.DB.QueryRow(ctx, `
    SELECT id, basic_salary::text, tax_regime
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&input.EmployeeID, &basic, &regime)
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeInput{}, ErrEmployeeNotFound
	}
	if err != nil {
		return EmployeeInput{}, err
	}
	if input.BasicSalary, err = decimal.NewFromString(basic); err != nil {
		return EmployeeInput{}, err
	}
	input.TaxRegime = TaxRegime(regime)

	overrides, err := s.listEmployeeComponents(ctx, tenantID, employeeID)
	if err != nil {
		return EmployeeInput{}, err
	}
	input.Components = overrides[employeeID]
	return input, nil
}

func (s *Store) ListActiveEmployeeInputs(ctx context.Context, tenantID string) ([]EmployeeInput, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, basic_salary::text, tax_regime
    FROM employees
    WHERE tenant_id = $1 AND status = $2
    ORDER BY id
  `, tenantID, EmployeeStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []EmployeeInput
	for rows.Next() {
		var input EmployeeInput
		var basic, regime string
		if err := rows.Scan(&input.EmployeeID, &basic, &regime); err != nil {
			return nil, err
		}
		if input.BasicSalary, err = decimal.NewFromString(basic); err != nil {
			return nil, err
		}
		input.TaxRegime = TaxRegime(regime)
		inputs = append(inputs, input)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	overrides, err := s.listEmployeeComponents(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	for i := range inputs {
		inputs[i].Components = overrides[inputs[i].EmployeeID]
	}
	return inputs, nil
}

// listEmployeeComponents returns overrides keyed by employee. An empty
// employeeID loads the whole tenant.
func (s *Store) listEmployeeComponents(ctx context.Context, tenantID, employeeID string) (map[string][]SalaryComponent, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT employee_id, code, name, component_type, calculation_type, value::text, formula, is_taxable, is_active
    FROM employee_components
    WHERE tenant_id = $1 AND ($2 = '' OR employee_id::text = $2)
    ORDER BY employee_id, code
  `, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]SalaryComponent{}
	for rows.Next() {
		var owner string
		var component SalaryComponent
		var componentType, calculationType, value string
		if err := rows.Scan(&owner, &component.Code, &component.Name, &componentType, &calculationType, &value,
			&component.Formula, &component.IsTaxable, &component.IsActive); err != nil {
			return nil, err
		}
		component.Type = ComponentType(componentType)
		component.CalculationType = CalculationType(calculationType)
		if component.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], component)
	}
	return out, rows.Err()
}

func scanComponent(row rowScanner) (SalaryComponent, error) {
	var component SalaryComponent
	var componentType, calculationType, value string
	if err := row.Scan(&component.Code, &component.Name, &componentType, &calculationType, &value,
		&component.Formula, &component.IsTaxable, &component.IsActive); err != nil {
		return SalaryComponent{}, err
	}
	component.Type = ComponentType(componentType)
	component.CalculationType = CalculationType(calculationType)
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return SalaryComponent{}, err
	}
	component.Value = amount
	return component, nil
}

func (s *Store) CountPeriods(ctx context.Context, tenantID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_periods WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]Period, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, start_date, end_date, status, created_at, finalized_at
    FROM payroll_periods
    WHERE tenant_id = $1
    ORDER BY start_date DESC, id
    LIMIT $2 OFFSET $3
  `, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		var period Period
		if err := rows.Scan(&period.ID, &period.Name, &period.StartDate, &period.EndDate, &period.Status, &period.CreatedAt, &period.Finalized); err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

func (s *Store) CreatePeriod(ctx context.Context, tenantID, name string, startDate, endDate time.Time) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_periods (tenant_id, name, start_date, end_date, status)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, tenantID, name, startDate, endDate, PeriodStatusDraft).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetPeriod(ctx context.Context, tenantID, periodID string) (Period, error) {
	var period Period
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, start_date, end_date, status, created_at, finalized_at
    FROM payroll_periods
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, periodID).Scan(&period.ID, &period.Name, &period.StartDate, &period.EndDate, &period.Status, &period.CreatedAt, &period.Finalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return period, err
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, tenantID, periodID, status string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods SET status = $1 WHERE id = $2 AND tenant_id = $3
  `, status, periodID, tenantID)
	return err
}

func (s *Store) FinalizePeriod(ctx context.Context, tenantID, periodID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods SET status = $1, finalized_at = now() WHERE id = $2 AND tenant_id = $3
  `, PeriodStatusFinalized, periodID, tenantID)
	return err
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
