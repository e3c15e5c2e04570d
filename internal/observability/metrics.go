package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for export
// submission and monitoring.
type Metrics struct {
	Submissions      prometheus.Counter
	SubmitErrors     *prometheus.CounterVec // labels: stage={failed_at_build,failed_at_submit}
	SubmitDuration   prometheus.Histogram
	BatchYears       prometheus.Gauge
	StatusPolls      *prometheus.CounterVec // labels: status={submitted,running,completed,failed,unknown,error}
	TasksPending     prometheus.Gauge
	MonitorRunning   prometheus.Gauge
	APIDuration      *prometheus.HistogramVec // labels: method={export,operation}
	EventsPublished  prometheus.Counter
	LedgerErrors     prometheus.Counter
	MonitorCycleTime prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Submissions,
		m.SubmitErrors,
		m.SubmitDuration,
		m.BatchYears,
		m.StatusPolls,
		m.TasksPending,
		m.MonitorRunning,
		m.APIDuration,
		m.EventsPublished,
		m.LedgerErrors,
		m.MonitorCycleTime,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ndvi_export",
			Name:      "submissions_total",
			Help:      "Export tasks accepted by the imagery service.",
		}),
		SubmitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndvi_export",
			Name:      "submit_errors_total",
			Help:      "Years that failed to produce an export task, by stage.",
		}, []string{"stage"}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ndvi_export",
			Name:      "submit_duration_seconds",
			Help:      "Time from build to submission acknowledgment for one year.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchYears: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ndvi_export",
			Name:      "batch_years",
			Help:      "Number of years in the most recent batch.",
		}),
		StatusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ndvi_export",
			Name:      "status_polls_total",
			Help:      "Export task status polls by observed status.",
		}, []string{"status"}),
		TasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ndvi_export",
			Name:      "tasks_pending",
			Help:      "Export tasks not yet completed or failed as of the last monitor cycle.",
		}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ndvi_export",
			Name:      "monitor_running",
			Help:      "1 when the task monitor is active, 0 when shut down.",
		}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ndvi_export",
			Name:      "api_duration_seconds",
			Help:      "Imagery service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ndvi_export",
			Name:      "events_published_total",
			Help:      "Task events written to the event topic.",
		}),
		LedgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ndvi_export",
			Name:      "ledger_errors_total",
			Help:      "Failed writes to the local task ledger.",
		}),
		MonitorCycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ndvi_export",
			Name:      "monitor_cycle_duration_seconds",
			Help:      "Duration of one monitor poll cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
