package payrollhandler

import (
	"errors"
	"net/http"

	"paycalc/internal/domain/payroll"
	"paycalc/internal/platform/jobs"
	"paycalc/internal/requestctx"
	"paycalc/internal/transport/http/api"
	"paycalc/internal/transport/http/middleware"
)

type statusError struct {
	target  error
	status  int
	code    string
	message string
}

var sentinelErrors = []statusError{
	{payroll.ErrPeriodNotFound, http.StatusNotFound, "period_not_found", "payroll period not found"},
	{payroll.ErrRunNotFound, http.StatusNotFound, "run_not_found", "payroll run not found"},
	{payroll.ErrPayslipNotFound, http.StatusNotFound, "payslip_not_found", "payslip not found"},
	{payroll.ErrEmployeeNotFound, http.StatusNotFound, "employee_not_found", "employee not found"},
	{payroll.ErrComponentNotFound, http.StatusNotFound, "component_not_found", "salary component not found"},
	{payroll.ErrPeriodFinalized, http.StatusConflict, "period_finalized", "payroll period already finalized"},
	{payroll.ErrFinalizeInvalidState, http.StatusConflict, "invalid_state", "payroll period must be reviewed before finalize"},
	{payroll.ErrFinalizeNoResults, http.StatusConflict, "no_results", "payroll period has no payroll results"},
	{payroll.ErrTaxConfigurationOverlap, http.StatusConflict, "tax_configuration_overlap", "tax configuration overlaps an active configuration"},
	{payroll.ErrInvalidTaxConfigWindow, http.StatusBadRequest, "validation_error", "effectiveTo must be on or after effectiveFrom"},
	{payroll.ErrInvalidPeriodDates, http.StatusBadRequest, "validation_error", "endDate must be on or after startDate"},
	{payroll.ErrStorageNotConfigured, http.StatusServiceUnavailable, "storage_unavailable", "payslip storage is not configured"},
	{jobs.ErrQueueFull, http.StatusServiceUnavailable, "queue_full", "payroll job queue is full, retry later"},
	{jobs.ErrStopped, http.StatusServiceUnavailable, "shutting_down", "server is shutting down, retry later"},
}

// writeError maps domain errors onto the response envelope. Computation
// errors carry their stable code and the offending detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	for _, candidate := range sentinelErrors {
		if errors.Is(err, candidate.target) {
			api.Fail(w, candidate.status, candidate.code, candidate.message, requestID)
			return
		}
	}

	code := payroll.ErrorCode(err)
	if code != "payroll_error" && code != "internal_error" {
		status := http.StatusUnprocessableEntity
		if code == "invalid_employee_input" {
			status = http.StatusBadRequest
		}
		api.FailWithDetails(w, status, code, err.Error(), errorDetails(err), requestID)
		return
	}

	h.Logger.Error("payroll request failed", append(requestctx.LogAttrs(r.Context()), "path", r.URL.Path, "err", err)...)
	api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
}

func errorDetails(err error) map[string]any {
	details := map[string]any{}
	var component *payroll.ComponentError
	if errors.As(err, &component) {
		details["component"] = component.Code
	}
	var syntax *payroll.FormulaSyntaxError
	if errors.As(err, &syntax) {
		details["position"] = syntax.Position
		details["expression"] = syntax.Expression
	}
	var unknown *payroll.UnknownVariableError
	if errors.As(err, &unknown) {
		details["variable"] = unknown.Name
	}
	var cycle *payroll.CircularDependencyError
	if errors.As(err, &cycle) {
		details["cycle"] = cycle.Cycle
	}
	var slab *payroll.InvalidSlabDefinitionError
	if errors.As(err, &slab) && slab.TaxType != "" {
		details["taxType"] = slab.TaxType
	}
	var noConfig *payroll.NoApplicableTaxConfigurationError
	if errors.As(err, &noConfig) {
		details["taxType"] = noConfig.TaxType
		details["payDate"] = noConfig.PayDate.Format("2006-01-02")
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
