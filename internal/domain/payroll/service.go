package payroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	cryptoutil "paycalc/internal/platform/crypto"
	"paycalc/internal/platform/storage"
)

type Service struct {
	store         StoreAPI
	crypto        *cryptoutil.Service
	files         storage.Store
	runner        *Runner
	validate      *validator.Validate
	strictOverlap bool
	logger        *slog.Logger
	now           func() time.Time
}

type ServiceOptions struct {
	Crypto           *cryptoutil.Service
	Files            storage.Store
	Runner           *Runner
	StrictTaxOverlap bool
	Logger           *slog.Logger
}

func NewService(store StoreAPI, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewRunner(RunnerOptions{Logger: logger})
	}
	return &Service{
		store:         store,
		crypto:        opts.Crypto,
		files:         opts.Files,
		runner:        runner,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		strictOverlap: opts.StrictTaxOverlap,
		logger:        logger,
		now:           time.Now,
	}
}

// RenderPayslipPDF writes the payslip document to file storage and records
// its key. The document is encrypted at rest when a data key is configured.
func (s *Service) RenderPayslipPDF(ctx context.Context, tenantID, payslipID string) (string, error) {
	if s.files == nil {
		return "", ErrStorageNotConfigured
	}
	if !validID(payslipID) {
		return "", ErrPayslipNotFound
	}
	data, err := s.store.PayslipPDFData(ctx, tenantID, payslipID)
	if err != nil {
		return "", err
	}

	body, err := payslipPDF(data)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("payslips/%s/%s/%s.pdf", tenantID, data.Record.PeriodID, payslipID)
	if s.crypto != nil && s.crypto.Configured() {
		if body, err = s.crypto.Encrypt(body); err != nil {
			return "", err
		}
		key += ".enc"
	}
	if err := s.files.Put(ctx, key, body, "application/pdf"); err != nil {
		return "", err
	}
	if err := s.store.UpdatePayslipFileKey(ctx, tenantID, payslipID, key); err != nil {
		return "", err
	}
	if previous := data.Record.FileKey; previous != "" && previous != key {
		if err := s.files.Delete(ctx, previous); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("stale payslip file not removed", "tenantId", tenantID, "payslipId", payslipID, "key", previous, "err", err)
		}
	}
	s.logger.Info("payslip rendered", "tenantId", tenantID, "payslipId", payslipID, "key", key)
	return key, nil
}

// DownloadPayslip returns the decrypted payslip document, rendering it first
// when no file exists yet.
func (s *Service) DownloadPayslip(ctx context.Context, tenantID, payslipID string) ([]byte, string, error) {
	if s.files == nil {
		return nil, "", ErrStorageNotConfigured
	}
	record, err := s.GetPayslip(ctx, tenantID, payslipID)
	if err != nil {
		return nil, "", err
	}
	key := record.FileKey
	if key == "" {
		if key, err = s.RenderPayslipPDF(ctx, tenantID, payslipID); err != nil {
			return nil, "", err
		}
	}
	body, err := s.files.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if strings.HasSuffix(key, ".enc") {
		if s.crypto == nil || !s.crypto.Configured() {
			return nil, "", fmt.Errorf("payslip %s is encrypted but no data key is configured", payslipID)
		}
		if body, err = s.crypto.Decrypt(body); err != nil {
			return nil, "", err
		}
	}
	filename := fmt.Sprintf("payslip-%s-%s.pdf", record.Payslip.EmployeeID, record.Payslip.PayDate.Format(dateLayout))
	return body, filename, nil
}

func payslipPDF(data PayslipPDFData) ([]byte, error) {
	slip := data.Record.Payslip

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	if data.EmployeeName != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", data.EmployeeName))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Employee ID: %s", slip.EmployeeID))
	pdf.Ln(7)
	if data.Email != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Email: %s", data.Email))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s (%s to %s)", data.PeriodName, data.StartDate.Format(dateLayout), data.EndDate.Format(dateLayout)))
	pdf.Ln(10)

	line := func(label string, amount string) {
		pdf.CellFormat(120, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, amount, "", 1, "R", false, 0, "")
	}
	line("Basic salary", slip.BasicSalary.StringFixed(2))
	for _, code := range slices.Sorted(maps.Keys(slip.ComponentBreakdown)) {
		line(code, slip.ComponentBreakdown[code].StringFixed(2))
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 12)
	line("Gross salary", slip.GrossSalary.StringFixed(2))
	pdf.SetFont("Helvetica", "", 12)
	line("Taxable income", slip.TaxableIncome.StringFixed(2))
	for _, taxType := range slices.Sorted(maps.Keys(slip.TaxBreakdown)) {
		line(string(taxType), slip.TaxBreakdown[taxType].StringFixed(2))
	}
	line("Total deductions", slip.TotalDeductions.StringFixed(2))
	line("Total bonuses", slip.TotalBonuses.StringFixed(2))
	line("Total tax", slip.TotalTax.StringFixed(2))
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 12)
	line("Net salary", slip.NetSalary.StringFixed(2))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
