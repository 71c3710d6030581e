package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/quickai/quickai/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, key := range sortedKeys(snap.Generations) {
		writeMetric(w, "quickai_generations_total{key=%q} %d\n", key, snap.Generations[key])
	}
	for _, reason := range sortedKeys(snap.GateRejections) {
		writeMetric(w, "quickai_gate_rejected_total{reason=%q} %d\n", reason, snap.GateRejections[reason])
	}
	for _, kind := range sortedKeys(snap.DelegateDurationCount) {
		writeMetric(w, "quickai_delegate_duration_seconds_count{kind=%q} %d\n", kind, snap.DelegateDurationCount[kind])
		writeMetric(w, "quickai_delegate_duration_seconds_sum{kind=%q} %.6f\n", kind, float64(snap.DelegateDurationTotalNs[kind])/1e9)
	}

	writeMetric(w, "quickai_usage_events_published_total{status=\"success\"} %d\n", snap.UsageEventsPublished)
	writeMetric(w, "quickai_usage_events_published_total{status=\"dropped\"} %d\n", snap.UsageEventsDropped)
	writeMetric(w, "quickai_usage_events_processed_total{status=\"success\"} %d\n", snap.UsageEventsProcessed)
	writeMetric(w, "quickai_usage_events_processed_total{status=\"failed\"} %d\n", snap.UsageEventsFailed)
	writeMetric(w, "quickai_usage_queue_depth %d\n", snap.UsageQueueDepth)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
