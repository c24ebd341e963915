// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service reports.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	issued          *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	scoreDuration   prometheus.Histogram
	verdicts        *prometheus.CounterVec
	archiveUploads  *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		issued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captcha_issued_total",
				Help:      "Challenge issuance attempts by result",
			},
			[]string{"result"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captcha_terminal_outcomes_total",
				Help:      "Terminal session outcomes by writer",
			},
			[]string{"source", "outcome"},
		),
		scoreDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "captcha_behavior_score_duration_seconds",
				Help:      "Time spent extracting and scoring telemetry",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captcha_behavior_verdicts_total",
				Help:      "Behavioral verdicts, including absent signals",
			},
			[]string{"verdict"},
		),
		archiveUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captcha_archive_uploads_total",
				Help:      "Telemetry archive uploads by result",
			},
			[]string{"result"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "captcha_verify_queue_depth",
				Help:      "Pending verification jobs",
			},
		),
	}
}

// Middleware records duration and count per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}

			m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			m.requestTotal.WithLabelValues(labels...).Inc()
			return err
		}
	}
}

func (m *Metrics) ObserveIssued(result string) {
	m.issued.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutcome(source, outcome string) {
	m.outcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveScore(verdict string, d time.Duration) {
	m.verdicts.WithLabelValues(verdict).Inc()
	if d > 0 {
		m.scoreDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveArchive(result string) {
	m.archiveUploads.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	m.queueDepth.Set(float64(n))
}
