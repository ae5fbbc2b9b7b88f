package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autoapitester/api-acceptor/types"
)

const (
	MetricsNamespace = "acceptor"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	suiteRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_runs_total",
		Help:      "Count of suite executions",
	}, []string{
		"suite",
		"result",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Total number of executed test cases",
	}, []string{
		"suite",
	})

	casesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_passed",
		Help:      "Number of passed test cases",
	}, []string{
		"suite",
	})

	casesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_failed",
		Help:      "Number of failed test cases",
	}, []string{
		"suite",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent suite run",
	}, []string{
		"suite",
	})

	reportCorruptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "report_corruptions_total",
		Help:      "Count of unreadable prior report files replaced by fresh ones",
	}, []string{
		"suite",
	})
)

// RecordError counts an operational error under a short label.
func RecordError(label string) {
	errorsTotal.WithLabelValues(label).Inc()
}

// RecordRun records the outcome counters of one suite execution.
func RecordRun(suite string, run *types.TestRun) {
	suiteRuns.WithLabelValues(suite, string(run.Status())).Inc()
	casesTotal.WithLabelValues(suite).Add(float64(run.Total))
	casesPassed.WithLabelValues(suite).Add(float64(run.Passed))
	casesFailed.WithLabelValues(suite).Add(float64(run.Failed))
	runDuration.WithLabelValues(suite).Set(run.Duration.Seconds())
}

// RecordReportCorruption counts a prior report file that could not be read
// back. The new run is still recorded; this keeps the loss visible to
// monitoring instead of silent.
func RecordReportCorruption(suite string) {
	reportCorruptionsTotal.WithLabelValues(suite).Inc()
}
