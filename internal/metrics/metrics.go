package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records purge outcomes as Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	purged      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
}

// NewCollector registers the purge metrics on registry, or on a fresh
// registry when nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "garbageman",
			Name:      "records_purged_total",
			Help:      "Soft deleted records permanently removed.",
		}, []string{"model"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "garbageman",
			Name:      "models_skipped_total",
			Help:      "Scheduled models skipped because they could not be purged.",
		}, []string{"model", "reason"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "garbageman",
			Name:      "runs_total",
			Help:      "Purge runs by outcome.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "garbageman",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a purge run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "garbageman",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last purge run finished.",
		}),
	}
	registry.MustRegister(c.purged, c.skipped, c.runs, c.runDuration, c.lastRun)
	return c
}

// Purged adds n deleted records for model.
func (c *Collector) Purged(model string, n int64) {
	c.purged.WithLabelValues(model).Add(float64(n))
}

// Skipped counts a model that was not purged.
func (c *Collector) Skipped(model, reason string) {
	c.skipped.WithLabelValues(model, reason).Inc()
}

// RunFinished records a completed or failed run.
func (c *Collector) RunFinished(started, finished time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(finished.Sub(started).Seconds())
	c.lastRun.Set(float64(finished.Unix()))
}

// Router exposes /healthz and /metrics.
func (c *Collector) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return r
}
