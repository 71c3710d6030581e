// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Generation pipeline metrics
	IncGeneration(creationType, status string) // status: "success" or "failed"
	IncGateRejected(reason string)             // reason: "quota" or "premium"
	ObserveDelegateDuration(kind string, duration time.Duration)

	// Usage sync pipeline metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success" or "failed"
	SetUsageQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
