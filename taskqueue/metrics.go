package taskqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runningTasks is a Gauge of currently executing clone tasks
	runningTasks prometheus.Gauge
	// queueDepth is a Gauge of tasks waiting for a worker slot
	queueDepth prometheus.Gauge
)

// EnableMetrics will enable metrics collection for the task queue.
// Available metrics are...
//   - task_queue_running - A Gauge of currently executing tasks.
//   - task_queue_depth - A Gauge of tasks waiting for a worker slot.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	// promauto registers on creation, a separate MustRegister would
	// register the collectors twice and panic
	factory := promauto.With(registerer)

	runningTasks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "task_queue_running",
		Help:      "Number of currently executing clone tasks",
	})

	queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "task_queue_depth",
		Help:      "Number of tasks waiting for a worker slot",
	})
}

func setRunningTasks(n int) {
	// if metrics not enabled return
	if runningTasks == nil {
		return
	}
	runningTasks.Set(float64(n))
}

func setQueueDepth(n int) {
	// if metrics not enabled return
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(n))
}
