package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type RequestRecorder interface {
	Record(method, route string, status int, duration time.Duration)
}

// Metrics reports each request under its chi route pattern so path
// parameters do not explode label cardinality.
func Metrics(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			status := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(status, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			recorder.Record(r.Method, route, status.status, time.Since(start))
		})
	}
}
