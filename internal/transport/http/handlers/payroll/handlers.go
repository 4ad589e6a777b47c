package payrollhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"paycalc/internal/domain/audit"
	"paycalc/internal/domain/auth"
	"paycalc/internal/domain/payroll"
	"paycalc/internal/platform/jobs"
	"paycalc/internal/transport/http/api"
	"paycalc/internal/transport/http/middleware"
	"paycalc/internal/transport/http/shared"
)

type Service interface {
	ListComponents(ctx context.Context, tenantID string) ([]payroll.SalaryComponent, error)
	SaveComponent(ctx context.Context, tenantID string, component payroll.SalaryComponent) (payroll.SalaryComponent, error)
	SetComponentActive(ctx context.Context, tenantID, code string, active bool) error
	ListTaxConfigurations(ctx context.Context, tenantID string) ([]payroll.TaxConfiguration, error)
	CreateTaxConfiguration(ctx context.Context, tenantID string, cfg payroll.TaxConfiguration) (payroll.TaxConfiguration, error)
	ListEmployees(ctx context.Context, tenantID string, limit, offset int) ([]payroll.Employee, int, error)
	CreateEmployee(ctx context.Context, tenantID string, employee payroll.Employee) (payroll.Employee, error)
	SetEmployeeComponents(ctx context.Context, tenantID, employeeID string, components []payroll.SalaryComponent) error
	ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]payroll.Period, int, error)
	CreatePeriod(ctx context.Context, tenantID, name string, startDate, endDate time.Time) (string, error)
	Preview(ctx context.Context, tenantID string, req payroll.PreviewRequest) (payroll.PreviewResult, error)
	PrepareRun(ctx context.Context, tenantID, periodID string) (payroll.PreparedRun, error)
	ExecuteRun(ctx context.Context, tenantID string, prepared payroll.PreparedRun) (payroll.RunSummary, error)
	AbandonRun(ctx context.Context, tenantID string, prepared payroll.PreparedRun, reason error) error
	FinalizePeriod(ctx context.Context, tenantID, periodID string) error
	GetRun(ctx context.Context, tenantID, runID string) (payroll.Run, error)
	ListPayslips(ctx context.Context, tenantID, periodID string, limit, offset int) ([]payroll.PayslipRecord, int, error)
	GetPayslip(ctx context.Context, tenantID, payslipID string) (payroll.PayslipRecord, error)
	DownloadPayslip(ctx context.Context, tenantID, payslipID string) ([]byte, string, error)
}

type JobRunner interface {
	Enqueue(jobType, tenantID string, run func(context.Context) (any, error), dropped jobs.Dropped) error
	RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error)
}

type Handler struct {
	Service Service
	Jobs    JobRunner
	Audit   audit.Recorder
	Perms   middleware.PermissionStore
	Logger  *slog.Logger
}

func NewHandler(service Service, jobs JobRunner, recorder audit.Recorder, perms middleware.PermissionStore, logger *slog.Logger) *Handler {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: service, Jobs: jobs, Audit: recorder, Perms: perms, Logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	guard := middleware.NewGuard(h.Perms, h.Logger)
	read := guard.Require(auth.PermPayrollRead)
	write := guard.Require(auth.PermPayrollWrite)
	run := guard.Require(auth.PermPayrollRun)
	finalize := guard.Require(auth.PermPayrollFinalize)

	r.Route("/payroll", func(r chi.Router) {
		r.With(read).Get("/components", h.handleListComponents)
		r.With(write).Post("/components", h.handleSaveComponent)
		r.With(write).Post("/components/{code}/active", h.handleSetComponentActive)
		r.With(read).Get("/tax-configurations", h.handleListTaxConfigurations)
		r.With(write).Post("/tax-configurations", h.handleCreateTaxConfiguration)
		r.With(read).Get("/employees", h.handleListEmployees)
		r.With(write).Post("/employees", h.handleCreateEmployee)
		r.With(write).Put("/employees/{employeeID}/components", h.handleSetEmployeeComponents)
		r.With(read).Get("/periods", h.handleListPeriods)
		r.With(write).Post("/periods", h.handleCreatePeriod)
		r.With(run).Post("/periods/{periodID}/run", h.handleRunPeriod)
		r.With(finalize).Post("/periods/{periodID}/finalize", h.handleFinalizePeriod)
		r.With(read).Get("/periods/{periodID}/payslips", h.handleListPayslips)
		r.With(read).Get("/runs/{runID}", h.handleGetRun)
		r.With(read).Post("/preview", h.handlePreview)
		r.With(read).Get("/payslips/{payslipID}", h.handleGetPayslip)
		r.With(read).Get("/payslips/{payslipID}/download", h.handleDownloadPayslip)
	})
}

func (h *Handler) handleListComponents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	components, err := h.Service.ListComponents(r.Context(), user.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, components, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveComponent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload payroll.SalaryComponent
	if !decodeJSON(w, r, &payload) {
		return
	}
	component, err := h.Service.SaveComponent(r.Context(), user.TenantID, payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.component.save", "salary_component", component.Code, component)
	api.Created(w, component, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetComponentActive(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload activePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Active == nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "active", Reason: "is required"}})
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.Service.SetComponentActive(r.Context(), user.TenantID, code, *payload.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.component.active", "salary_component", code, payload)
	api.Success(w, map[string]any{"code": code, "isActive": *payload.Active}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListTaxConfigurations(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	configs, err := h.Service.ListTaxConfigurations(r.Context(), user.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, configs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateTaxConfiguration(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload taxConfigurationPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	cfg, ok := payload.toConfiguration(w, middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	created, err := h.Service.CreateTaxConfiguration(r.Context(), user.TenantID, cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.tax_configuration.create", "tax_configuration", created.ID, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	validator := shared.NewValidator()
	page := shared.ParsePagination(r, shared.EmployeePages, validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	employees, total, err := h.Service.ListEmployees(r.Context(), user.TenantID, page.Limit, page.Offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, api.Page{Items: employees, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload payroll.Employee
	if !decodeJSON(w, r, &payload) {
		return
	}
	employee, err := h.Service.CreateEmployee(r.Context(), user.TenantID, payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.employee.create", "employee", employee.ID, employee)
	api.Created(w, employee, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetEmployeeComponents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload employeeComponentsPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	employeeID := chi.URLParam(r, "employeeID")
	if err := h.Service.SetEmployeeComponents(r.Context(), user.TenantID, employeeID, payload.Components); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.employee.components", "employee", employeeID, payload)
	api.Success(w, map[string]any{"employeeId": employeeID, "components": len(payload.Components)}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	validator := shared.NewValidator()
	page := shared.ParsePagination(r, shared.PeriodPages, validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	periods, total, err := h.Service.ListPeriods(r.Context(), user.TenantID, page.Limit, page.Offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, api.Page{Items: periods, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload periodPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	validator := shared.NewValidator()
	start, _ := validator.Date("startDate", payload.StartDate)
	end, _ := validator.Date("endDate", payload.EndDate)
	validator.DateOrder("startDate", start, "endDate", end)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	id, err := h.Service.CreatePeriod(r.Context(), user.TenantID, payload.Name, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.period.create", "payroll_period", id, payload)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

// handleRunPeriod runs the batch inline, or queues it when async=true and
// answers with the run id to poll.
func (h *Handler) handleRunPeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

	prepared, err := h.Service.PrepareRun(r.Context(), user.TenantID, periodID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.period.run", "payroll_period", periodID, map[string]any{"runId": prepared.Run.ID, "async": async})

	execute := func(ctx context.Context) (any, error) {
		return h.Service.ExecuteRun(ctx, user.TenantID, prepared)
	}
	abandon := func(reason error) {
		if err := h.Service.AbandonRun(context.Background(), user.TenantID, prepared, reason); err != nil {
			h.Logger.Warn("abandon payroll run failed", "runId", prepared.Run.ID, "err", err)
		}
	}
	if async {
		if err := h.Jobs.Enqueue(payroll.JobPayrollRun, user.TenantID, execute, abandon); err != nil {
			abandon(err)
			h.writeError(w, r, err)
			return
		}
		api.Accepted(w, prepared.Run, middleware.GetRequestID(r.Context()))
		return
	}

	details, err := h.Jobs.RunNow(r.Context(), payroll.JobPayrollRun, user.TenantID, execute)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, _ := details.(payroll.RunSummary)
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleFinalizePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	if err := h.Service.FinalizePeriod(r.Context(), user.TenantID, periodID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, user, "payroll.period.finalize", "payroll_period", periodID, map[string]string{"status": payroll.PeriodStatusFinalized})
	api.Success(w, map[string]string{"id": periodID, "status": payroll.PeriodStatusFinalized}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListPayslips(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	validator := shared.NewValidator()
	page := shared.ParsePagination(r, shared.PayslipPages, validator)
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	records, total, err := h.Service.ListPayslips(r.Context(), user.TenantID, chi.URLParam(r, "periodID"), page.Limit, page.Offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, api.Page{Items: records, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	run, err := h.Service.GetRun(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload previewPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	req, ok := payload.toRequest(w, middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	result, err := h.Service.Preview(r.Context(), user.TenantID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPayslip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	record, err := h.Service.GetPayslip(r.Context(), user.TenantID, chi.URLParam(r, "payslipID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	body, filename, err := h.Service.DownloadPayslip(r.Context(), user.TenantID, chi.URLParam(r, "payslipID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.Logger.Warn("payslip download write failed", "err", err)
	}
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, after any) {
	err := h.Audit.Record(r.Context(), audit.Entry{
		TenantID:   user.TenantID,
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		After:      after,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.Logger.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}
