// Package metrics exposes prometheus collectors for the API and worker.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sprout-escrow/backend/internal/approval"
)

const namespace = "sprout"

type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	approvalRequestErrors *prometheus.CounterVec
	approvalChecks        *prometheus.CounterVec
	approvalCheckErrors   *prometheus.CounterVec
	approvalsResolved     *prometheus.CounterVec
	approvalsPending      *prometheus.GaugeVec

	feedSubscribers prometheus.Gauge
	feedErrors      prometheus.Counter

	escrowsMatured prometheus.Counter
}

// New registers all collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		approvalRequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_request_errors_total",
			Help:      "Approval requests whose initiating call failed",
		}, []string{"kind"}),
		approvalChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_status_checks_total",
			Help:      "Status checks issued by approval pollers",
		}, []string{"kind"}),
		approvalCheckErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_status_check_errors_total",
			Help:      "Status checks that failed and were retried",
		}, []string{"kind"}),
		approvalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_resolved_total",
			Help:      "Approvals that reached a terminal state",
		}, []string{"kind", "state"}),
		approvalsPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approvals_pending",
			Help:      "Approvals currently being polled",
		}, []string{"kind"}),

		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projection_subscribers",
			Help:      "Open escrow projection subscriptions",
		}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_errors_total",
			Help:      "Projection refreshes that failed",
		}),

		escrowsMatured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrows_matured_total",
			Help:      "Escrows the worker found past their unlock date",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.approvalRequestErrors,
		m.approvalChecks,
		m.approvalCheckErrors,
		m.approvalsResolved,
		m.approvalsPending,
		m.feedSubscribers,
		m.feedErrors,
		m.escrowsMatured,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// approval.Recorder

func (m *Metrics) RequestFailed(kind string) {
	m.approvalRequestErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PollStarted(kind string) {
	m.approvalsPending.WithLabelValues(kind).Inc()
}

func (m *Metrics) Checked(kind string) {
	m.approvalChecks.WithLabelValues(kind).Inc()
}

func (m *Metrics) TransientError(kind string) {
	m.approvalCheckErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PollResolved(kind string, state approval.State) {
	m.approvalsPending.WithLabelValues(kind).Dec()
	m.approvalsResolved.WithLabelValues(kind, string(state)).Inc()
}

// projection

func (m *Metrics) SubscriberOpened() { m.feedSubscribers.Inc() }
func (m *Metrics) SubscriberClosed() { m.feedSubscribers.Dec() }
func (m *Metrics) FeedError()        { m.feedErrors.Inc() }

// worker

func (m *Metrics) EscrowsMatured(n int) {
	m.escrowsMatured.Add(float64(n))
}
