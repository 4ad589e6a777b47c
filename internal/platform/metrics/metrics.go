package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paycalc/internal/domain/payroll"
)

const namespace = "paycalc"

// Collector owns a private registry so collectors can be created per server
// and per test without clashing on global registration.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
	batches         *prometheus.CounterVec
	batchEmployees  *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	jobs            *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payroll_batches_total",
			Help:      "Payroll batches by outcome.",
		}, []string{"outcome"}),
		batchEmployees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payroll_batch_employees_total",
			Help:      "Employees processed by payroll batches, by result.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payroll_batch_duration_seconds",
			Help:      "Wall time of payroll batches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by type and status.",
		}, []string{"type", "status"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests,
		c.requestDuration,
		c.rateLimited,
		c.batches,
		c.batchEmployees,
		c.batchDuration,
		c.jobs,
	)
	return c
}

func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		c.rateLimited.Inc()
	}
}

func (c *Collector) ObserveBatch(outcome string, result payroll.BatchResult, elapsed time.Duration) {
	c.batches.WithLabelValues(outcome).Inc()
	c.batchEmployees.WithLabelValues("succeeded").Add(float64(len(result.Succeeded)))
	c.batchEmployees.WithLabelValues("failed").Add(float64(len(result.Failed)))
	c.batchEmployees.WithLabelValues("skipped").Add(float64(len(result.Skipped)))
	c.batchDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveJob(jobType, status string) {
	c.jobs.WithLabelValues(jobType, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
