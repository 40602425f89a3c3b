package repository

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lastCloneTimestamp is a Gauge that captures the timestamp of the last
	// successful clone
	lastCloneTimestamp *prometheus.GaugeVec
	// cloneCount is a Counter vector of clone attempts
	cloneCount *prometheus.CounterVec
	// cloneLatency is a Histogram vector that keeps track of clone durations
	cloneLatency *prometheus.HistogramVec
)

// EnableMetrics will enable metrics collection for repository clones.
// Available metrics are...
//   - git_last_clone_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful clone per repo.
//   - git_clone_count - (tags: repo,success)
//     A Counter for each clone, incremented with each attempt and tagged with the result (success=true|false)
//   - git_clone_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the clone latency per repo.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	// promauto registers on creation, a separate MustRegister would
	// register the collectors twice and panic
	factory := promauto.With(registerer)

	lastCloneTimestamp = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_last_clone_timestamp",
		Help:      "Timestamp of the last successful clone",
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	cloneCount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_clone_count",
		Help:      "Count of clone operations",
	},
		[]string{
			// name of the repository
			"repo",
			// Whether the clone was successful or not
			"success",
		},
	)

	cloneLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_clone_latency_seconds",
		Help:      "Latency for repository clones",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			// name of the repository
			"repo",
		},
	)
}

// recordClone records a clone attempt by updating all the relevant metrics
func recordClone(repo string, success bool) {
	// if metrics not enabled return
	if lastCloneTimestamp == nil || cloneCount == nil {
		return
	}
	if success {
		lastCloneTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	cloneCount.With(prometheus.Labels{
		"repo":    repo,
		"success": strconv.FormatBool(success),
	}).Inc()
}

func updateCloneLatency(repo string, seconds float64) {
	// if metrics not enabled return
	if cloneLatency == nil {
		return
	}
	cloneLatency.WithLabelValues(repo).Observe(seconds)
}
