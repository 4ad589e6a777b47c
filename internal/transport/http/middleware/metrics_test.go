package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeRecorder struct {
	calls []recordedRequest
}

func (f *fakeRecorder) Record(method, route string, status int, _ time.Duration) {
	f.calls = append(f.calls, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	recorder := &fakeRecorder{}
	router := chi.NewRouter()
	router.Use(Metrics(recorder))
	router.Get("/payroll/runs/{runID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payroll/runs/abc", nil))

	if len(recorder.calls) != 1 {
		t.Fatalf("expected one recorded request, got %d", len(recorder.calls))
	}
	got := recorder.calls[0]
	if got.route != "/payroll/runs/{runID}" || got.status != http.StatusAccepted || got.method != http.MethodGet {
		t.Fatalf("unexpected record: %+v", got)
	}
}
