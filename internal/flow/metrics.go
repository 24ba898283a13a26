package flow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics instruments review job execution. All metrics live in
// the "reviewflow" namespace:
//
//   - inflight_workers (gauge): task workers currently executing.
//   - task_queue_depth (gauge): tasks waiting in the dispatch frontier.
//   - stage_latency_ms (histogram): node execution duration, labeled
//     run_id/node_id/status (success, error, timeout).
//   - node_retries_total (counter): engine-level node retries.
//   - llm_retries_total (counter): completer call retries, labeled by provider.
//   - worker_failures_total (counter): review tasks that ended failed.
//   - process_timeouts_total (counter): external processes killed on timeout.
//
// The serve-mode server exposes them on /metrics. Methods are safe on a nil
// receiver so call sites need no guards when metrics are disabled.
type PrometheusMetrics struct {
	inflightWorkers prometheus.Gauge
	taskQueueDepth  prometheus.Gauge
	stageLatency    *prometheus.HistogramVec
	nodeRetries     *prometheus.CounterVec
	llmRetries      *prometheus.CounterVec
	workerFailures  *prometheus.CounterVec
	processTimeouts *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers the metric set with the given registry
// (prometheus.DefaultRegisterer when nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightWorkers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "reviewflow",
		Name:      "inflight_workers",
		Help:      "Task workers currently executing",
	})

	pm.taskQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "reviewflow",
		Name:      "task_queue_depth",
		Help:      "Review tasks waiting in the dispatch queue",
	})

	pm.stageLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "stage_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"run_id", "node_id", "status"})

	pm.nodeRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "node_retries_total",
		Help:      "Engine-level node retry attempts",
	}, []string{"run_id", "node_id"})

	pm.llmRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "llm_retries_total",
		Help:      "Completer call retries",
	}, []string{"run_id", "provider"})

	pm.workerFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "worker_failures_total",
		Help:      "Review tasks that completed with failed status",
	}, []string{"run_id"})

	pm.processTimeouts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "process_timeouts_total",
		Help:      "External processes killed after exceeding their timeout",
	}, []string{"run_id", "kind"})

	return pm
}

// RecordStageLatency observes one node execution.
func (pm *PrometheusMetrics) RecordStageLatency(runID, nodeID, status string, ms float64) {
	if !pm.active() {
		return
	}
	pm.stageLatency.WithLabelValues(runID, nodeID, status).Observe(ms)
}

// RecordNodeRetry counts an engine-level retry of a node.
func (pm *PrometheusMetrics) RecordNodeRetry(runID, nodeID string) {
	if !pm.active() {
		return
	}
	pm.nodeRetries.WithLabelValues(runID, nodeID).Inc()
}

// RecordLLMRetry counts a retried completer call.
func (pm *PrometheusMetrics) RecordLLMRetry(runID, provider string) {
	if !pm.active() {
		return
	}
	pm.llmRetries.WithLabelValues(runID, provider).Inc()
}

// RecordWorkerFailure counts a task that ended failed.
func (pm *PrometheusMetrics) RecordWorkerFailure(runID string) {
	if !pm.active() {
		return
	}
	pm.workerFailures.WithLabelValues(runID).Inc()
}

// RecordProcessTimeout counts a process-group kill, labeled by what ran
// (test, profile).
func (pm *PrometheusMetrics) RecordProcessTimeout(runID, kind string) {
	if !pm.active() {
		return
	}
	pm.processTimeouts.WithLabelValues(runID, kind).Inc()
}

// AddInflightWorkers moves the in-flight worker gauge by delta.
func (pm *PrometheusMetrics) AddInflightWorkers(delta float64) {
	if !pm.active() {
		return
	}
	pm.inflightWorkers.Add(delta)
}

// SetTaskQueueDepth records the current dispatch queue depth.
func (pm *PrometheusMetrics) SetTaskQueueDepth(depth float64) {
	if !pm.active() {
		return
	}
	pm.taskQueueDepth.Set(depth)
}

// Disable stops recording without unregistering.
func (pm *PrometheusMetrics) Disable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording.
func (pm *PrometheusMetrics) Enable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) active() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
