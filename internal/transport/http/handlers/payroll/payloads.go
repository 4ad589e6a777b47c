package payrollhandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"paycalc/internal/domain/payroll"
	"paycalc/internal/transport/http/api"
	"paycalc/internal/transport/http/middleware"
	"paycalc/internal/transport/http/shared"
)

type activePayload struct {
	Active *bool `json:"active"`
}

type employeeComponentsPayload struct {
	Components []payroll.SalaryComponent `json:"components"`
}

type periodPayload struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type taxConfigurationPayload struct {
	TaxType       string            `json:"taxType"`
	EffectiveFrom string            `json:"effectiveFrom"`
	EffectiveTo   string            `json:"effectiveTo"`
	IsActive      *bool             `json:"isActive"`
	Slabs         []payroll.TaxSlab `json:"slabs"`
}

func (p taxConfigurationPayload) toConfiguration(w http.ResponseWriter, requestID string) (payroll.TaxConfiguration, bool) {
	validator := shared.NewValidator()
	validator.Required("taxType", p.TaxType, "is required")
	from, _ := validator.Date("effectiveFrom", p.EffectiveFrom)
	cfg := payroll.TaxConfiguration{
		TaxType:       payroll.TaxType(strings.ToUpper(strings.TrimSpace(p.TaxType))),
		EffectiveFrom: from,
		IsActive:      p.IsActive == nil || *p.IsActive,
		Slabs:         p.Slabs,
	}
	if strings.TrimSpace(p.EffectiveTo) != "" {
		if to, ok := validator.Date("effectiveTo", p.EffectiveTo); ok {
			validator.DateOrder("effectiveFrom", from, "effectiveTo", to)
			cfg.EffectiveTo = &to
		}
	}
	if len(p.Slabs) == 0 {
		validator.Add("slabs", "at least one slab is required")
	}
	if validator.Reject(w, requestID) {
		return payroll.TaxConfiguration{}, false
	}
	return cfg, true
}

type previewPayload struct {
	EmployeeID  string                    `json:"employeeId"`
	BasicSalary *decimal.Decimal          `json:"basicSalary"`
	Components  []payroll.SalaryComponent `json:"components"`
	TaxRegime   string                    `json:"taxRegime"`
	PayDate     string                    `json:"payDate"`
}

func (p previewPayload) toRequest(w http.ResponseWriter, requestID string) (payroll.PreviewRequest, bool) {
	validator := shared.NewValidator()
	if p.EmployeeID == "" && p.BasicSalary == nil {
		validator.Add("basicSalary", "is required when employeeId is empty")
	}
	validator.Enum("taxRegime", p.TaxRegime, []string{string(payroll.TaxRegimeNew), string(payroll.TaxRegimeOld)}, "must be NEW or OLD")
	req := payroll.PreviewRequest{
		EmployeeID:  strings.TrimSpace(p.EmployeeID),
		BasicSalary: p.BasicSalary,
		Components:  p.Components,
		TaxRegime:   payroll.TaxRegime(strings.ToUpper(strings.TrimSpace(p.TaxRegime))),
	}
	if strings.TrimSpace(p.PayDate) != "" {
		req.PayDate, _ = validator.Date("payDate", p.PayDate)
	}
	if validator.Reject(w, requestID) {
		return payroll.PreviewRequest{}, false
	}
	return req, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request payload too large", middleware.GetRequestID(r.Context()))
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}
