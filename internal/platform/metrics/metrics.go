package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every application metric. A nil *Collector is valid and
// records nothing, so services can be built without metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	SlotsResolved     prometheus.Histogram
	BookingsTotal     *prometheus.CounterVec
	RegistrationSteps *prometheus.CounterVec
	ReconcileRepairs  prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
}

// NewCollector registers all metrics under namespace on a fresh registry that
// also carries the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		SlotsResolved: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slots_resolved",
			Help:      "Number of bookable slots returned per availability query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result (booked, unavailable, rejected, error).",
		}, []string{"result"}),

		RegistrationSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_steps_total",
			Help:      "Post-signup registration steps by step and outcome.",
		}, []string{"step", "status"}),

		ReconcileRepairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_repairs_total",
			Help:      "Profiles repaired by the reconciler.",
		}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the publisher, by type and result.",
		}, []string{"type", "result"}),

		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Appointment and medication order status changes.",
		}, []string{"entity", "to"}),
	}
}

func (c *Collector) ObserveSlotsResolved(n int) {
	if c == nil {
		return
	}
	c.SlotsResolved.Observe(float64(n))
}

func (c *Collector) Booking(result string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RegistrationStep(step, status string) {
	if c == nil {
		return
	}
	c.RegistrationSteps.WithLabelValues(step, status).Inc()
}

func (c *Collector) ReconcileRepaired(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ReconcileRepairs.Add(float64(n))
}

func (c *Collector) EventPublished(eventType, result string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(eventType, result).Inc()
}

func (c *Collector) StatusTransition(entity, to string) {
	if c == nil {
		return
	}
	c.StatusTransitions.WithLabelValues(entity, to).Inc()
}

// RegisterPool exposes connection pool statistics as gauges read at scrape
// time.
func (c *Collector) RegisterPool(namespace string, pool *pgxpool.Pool) {
	if c == nil || pool == nil {
		return
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(pool.Stat()) })
	}
	c.registry.MustRegister(
		gauge("total_connections", "Connections currently open.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("acquired_connections", "Connections checked out of the pool.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("idle_connections", "Idle connections in the pool.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
	)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request count, latency and in-flight requests. Routes
// are labelled by their registered pattern, not the raw path.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			if c == nil {
				return next(ec)
			}
			start := time.Now()
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			err := next(ec)

			status := ec.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := ec.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ec.Request().Method
			c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
