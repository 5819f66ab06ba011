package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vpo",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	JobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "jobs_claimed_total",
		Help:      "Total jobs claimed from the queue.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "jobs_completed_total",
		Help:      "Total jobs finished by terminal status.",
	}, []string{"status"})

	JobsRecoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "jobs_recovered_total",
		Help:      "Total stale jobs returned to the queue.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vpo",
		Name:      "queue_depth",
		Help:      "Number of currently queued jobs.",
	})

	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vpo",
		Name:      "active_workers",
		Help:      "Number of workers currently running a job.",
	})

	ExecutorRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "executor_runs_total",
		Help:      "Total executor runs by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	ExecutorRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vpo",
		Name:      "executor_run_duration_seconds",
		Help:      "Duration of executor runs in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 3600},
	})

	EncoderFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "encoder_fallbacks_total",
		Help:      "Total hardware-to-software encoder fallbacks.",
	})

	FilesScannedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpo",
		Name:      "files_scanned_total",
		Help:      "Total files seen by the scanner, by outcome.",
	}, []string{"outcome"})

	ProbeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vpo",
		Name:      "probe_duration_seconds",
		Help:      "Duration of ffprobe invocations in seconds.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 15, 60},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JobsClaimedTotal,
		JobsCompletedTotal,
		JobsRecoveredTotal,
		QueueDepth,
		ActiveWorkers,
		ExecutorRunsTotal,
		ExecutorRunDuration,
		EncoderFallbacksTotal,
		FilesScannedTotal,
		ProbeDuration,
	)
}
