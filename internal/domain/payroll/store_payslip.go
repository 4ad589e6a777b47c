package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type PayslipPDFData struct {
	Record       PayslipRecord
	EmployeeName string
	Email        string
	PeriodName   string
	StartDate    time.Time
	EndDate      time.Time
}

func (s *Store) CreateRun(ctx context.Context, tenantID, runID, periodID string, snapshotJSON []byte) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO payroll_runs (id, tenant_id, period_id, status, snapshot)
    VALUES ($1,$2,$3,$4,$5)
  `, runID, tenantID, periodID, RunStatusRunning, snapshotJSON)
	return err
}

func (s *Store) CompleteRun(ctx context.Context, tenantID string, run Run) error {
	failuresJSON, err := json.Marshal(run.Failures)
	if err != nil {
		return err
	}
	skippedJSON, err := json.Marshal(run.Skipped)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    UPDATE payroll_runs
    SET status = $1, succeeded = $2, failed = $3, failures = $4, skipped = $5, error = $6, completed_at = now()
    WHERE tenant_id = $7 AND id = $8
  `, run.Status, run.Succeeded, run.FailedCount, failuresJSON, skippedJSON, run.Error, tenantID, run.ID)
	return err
}

func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (Run, error) {
	var run Run
	var failuresJSON, skippedJSON []byte
	err := s.DB.QueryRow(ctx, `
    SELECT id, period_id, status, succeeded, failed, COALESCE(failures, '[]'::jsonb), COALESCE(skipped, '[]'::jsonb),
           COALESCE(error, ''), started_at, completed_at
    FROM payroll_runs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID).Scan(&run.ID, &run.PeriodID, &run.Status, &run.Succeeded, &run.FailedCount,
		&failuresJSON, &skippedJSON, &run.Error, &run.StartedAt, &run.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(failuresJSON, &run.Failures); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(skippedJSON, &run.Skipped); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReplacePayslips swaps the period's payslips for records in one transaction
// so a rerun never leaves a mix of old and new results.
func (s *Store) ReplacePayslips(ctx context.Context, tenantID, periodID string, records []PayslipRecord) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM payslips WHERE tenant_id = $1 AND period_id = $2", tenantID, periodID); err != nil {
			return err
		}
		return sendPayslips(ctx, tx, tenantID, periodID, records, "")
	})
}

// UpsertPayslips writes records over the same employees' payslips and leaves
// every other payslip of the period untouched.
func (s *Store) UpsertPayslips(ctx context.Context, tenantID, periodID string, records []PayslipRecord) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		return sendPayslips(ctx, tx, tenantID, periodID, records, `
      ON CONFLICT (period_id, employee_id) DO UPDATE
      SET id = EXCLUDED.id, run_id = EXCLUDED.run_id, gross = EXCLUDED.gross, total_tax = EXCLUDED.total_tax,
          net = EXCLUDED.net, payload = EXCLUDED.payload, warnings = EXCLUDED.warnings, file_key = NULL, created_at = now()
    `)
	})
}

func sendPayslips(ctx context.Context, tx pgx.Tx, tenantID, periodID string, records []PayslipRecord, onConflict string) error {
	batch := &pgx.Batch{}
	for _, record := range records {
		payload, err := json.Marshal(record.Payslip)
		if err != nil {
			return err
		}
		warnings, err := json.Marshal(record.Warnings)
		if err != nil {
			return err
		}
		batch.Queue(`
      INSERT INTO payslips (id, tenant_id, run_id, period_id, employee_id, gross, total_tax, net, payload, warnings)
      VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10)
    `+onConflict, record.ID, tenantID, record.RunID, periodID, record.Payslip.EmployeeID,
			record.Payslip.GrossSalary.String(), record.Payslip.TotalTax.String(), record.Payslip.NetSalary.String(),
			payload, warnings)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Store) CountPayslips(ctx context.Context, tenantID, periodID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payslips WHERE tenant_id = $1 AND period_id = $2", tenantID, periodID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListPayslips(ctx context.Context, tenantID, periodID string, limit, offset int) ([]PayslipRecord, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, run_id, period_id, payload, warnings, COALESCE(file_key, ''), created_at
    FROM payslips
    WHERE tenant_id = $1 AND period_id = $2
    ORDER BY employee_id
    LIMIT $3 OFFSET $4
  `, tenantID, periodID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PayslipRecord
	for rows.Next() {
		record, err := scanPayslip(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) GetPayslip(ctx context.Context, tenantID, payslipID string) (PayslipRecord, error) {
	record, err := scanPayslip(s.DB.QueryRow(ctx, `
    SELECT id, run_id, period_id, payload, warnings, COALESCE(file_key, ''), created_at
    FROM payslips
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, payslipID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayslipRecord{}, ErrPayslipNotFound
	}
	return record, err
}

func (s *Store) UpdatePayslipFileKey(ctx context.Context, tenantID, payslipID, fileKey string) error {
	_, err := s.DB.Exec(ctx, "UPDATE payslips SET file_key = $1 WHERE tenant_id = $2 AND id = $3", fileKey, tenantID, payslipID)
	return err
}

func (s *Store) PayslipPDFData(ctx context.Context, tenantID, payslipID string) (PayslipPDFData, error) {
	var data PayslipPDFData
	var payload, warnings []byte
	err := s.DB.QueryRow(ctx, `
    SELECT s.id, s.run_id, s.period_id, s.payload, s.warnings, COALESCE(s.file_key, ''), s.created_at,
           COALESCE(e.name, ''), COALESCE(e.email, ''),
           p.name, p.start_date, p.end_date
    FROM payslips s
    JOIN payroll_periods p ON s.period_id = p.id
    LEFT JOIN employees e ON e.id::text = s.employee_id
    WHERE s.tenant_id = $1 AND s.id = $2
  `, tenantID, payslipID).Scan(&data.Record.ID, &data.Record.RunID, &data.Record.PeriodID, &payload, &warnings,
		&data.Record.FileKey, &data.Record.CreatedAt, &data.EmployeeName, &data.Email,
		&data.PeriodName, &data.StartDate, &data.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayslipPDFData{}, ErrPayslipNotFound
	}
	if err != nil {
		return PayslipPDFData{}, err
	}
	if err := decodePayslip(&data.Record, payload, warnings); err != nil {
		return PayslipPDFData{}, err
	}
	return data, nil
}

func scanPayslip(row rowScanner) (PayslipRecord, error) {
	var record PayslipRecord
	var payload, warnings []byte
	if err := row.Scan(&record.ID, &record.RunID, &record.PeriodID, &payload, &warnings, &record.FileKey, &record.CreatedAt); err != nil {
		return PayslipRecord{}, err
	}
	if err := decodePayslip(&record, payload, warnings); err != nil {
		return PayslipRecord{}, err
	}
	return record, nil
}

func decodePayslip(record *PayslipRecord, payload, warnings []byte) error {
	if err := json.Unmarshal(payload, &record.Payslip); err != nil {
		return err
	}
	if len(warnings) == 0 {
		return nil
	}
	return json.Unmarshal(warnings, &record.Warnings)
}
