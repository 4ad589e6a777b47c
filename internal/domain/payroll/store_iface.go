package payroll

import (
	"context"
	"time"
)

type StoreAPI interface {
	ListComponents(ctx context.Context, tenantID string) ([]SalaryComponent, error)
	UpsertComponent(ctx context.Context, tenantID string, component SalaryComponent) error
	SetComponentActive(ctx context.Context, tenantID, code string, active bool) error
	ListTaxConfigurations(ctx context.Context, tenantID string) ([]TaxConfiguration, error)
	CreateTaxConfiguration(ctx context.Context, tenantID string, cfg TaxConfiguration) (string, error)
	CountEmployees(ctx context.Context, tenantID string) (int, error)
	ListEmployees(ctx context.Context, tenantID string, limit, offset int) ([]Employee, error)
	CreateEmployee(ctx context.Context, tenantID string, employee Employee) (string, error)
	ReplaceEmployeeComponents(ctx context.Context, tenantID, employeeID string, components []SalaryComponent) error
	GetEmployeeInput(ctx context.Context, tenantID, employeeID string) (EmployeeInput, error)
	ListActiveEmployeeInputs(ctx context.Context, tenantID string) ([]EmployeeInput, error)
	CountPeriods(ctx context.Context, tenantID string) (int, error)
	ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]Period, error)
	CreatePeriod(ctx context.Context, tenantID, name string, startDate, endDate time.Time) (string, error)
	GetPeriod(ctx context.Context, tenantID, periodID string) (Period, error)
	UpdatePeriodStatus(ctx context.Context, tenantID, periodID, status string) error
	FinalizePeriod(ctx context.Context, tenantID, periodID string) error
	CreateRun(ctx context.Context, tenantID, runID, periodID string, snapshotJSON []byte) error
	CompleteRun(ctx context.Context, tenantID string, run Run) error
	GetRun(ctx context.Context, tenantID, runID string) (Run, error)
	ReplacePayslips(ctx context.Context, tenantID, periodID string, records []PayslipRecord) error
	UpsertPayslips(ctx context.Context, tenantID, periodID string, records []PayslipRecord) error
	CountPayslips(ctx context.Context, tenantID, periodID string) (int, error)
	ListPayslips(ctx context.Context, tenantID, periodID string, limit, offset int) ([]PayslipRecord, error)
	GetPayslip(ctx context.Context, tenantID, payslipID string) (PayslipRecord, error)
	UpdatePayslipFileKey(ctx context.Context, tenantID, payslipID, fileKey string) error
	PayslipPDFData(ctx context.Context, tenantID, payslipID string) (PayslipPDFData, error)
}
