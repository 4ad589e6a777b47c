package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// Pagination is a limit/offset window over a list endpoint.
type Pagination struct {
	Limit  int
	Offset int
}

// PageSize bounds one list endpoint. Payslip listings page wider than
// employee or period listings.
type PageSize struct {
	Default int
	Max     int
}

var (
	EmployeePages = PageSize{Default: 50, Max: 500}
	PeriodPages   = PageSize{Default: 24, Max: 120}
	PayslipPages  = PageSize{Default: 100, Max: 1000}
)

// ParsePagination reads limit and offset, recording malformed values on the
// validator instead of silently falling back to defaults. Oversized limits
// are clamped.
func ParsePagination(r *http.Request, size PageSize, v *Validator) Pagination {
	page := Pagination{Limit: size.Default}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = min(limit, size.Max)
		}
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			v.Add("offset", "must be a non-negative integer")
		} else {
			page.Offset = offset
		}
	}
	return page
}
