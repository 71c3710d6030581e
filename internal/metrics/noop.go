package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncGeneration is a no-op.
func (n *NoopRecorder) IncGeneration(creationType, status string) {}

// IncGateRejected is a no-op.
func (n *NoopRecorder) IncGateRejected(reason string) {}

// ObserveDelegateDuration is a no-op.
func (n *NoopRecorder) ObserveDelegateDuration(kind string, duration time.Duration) {}

// IncUsageEventPublished is a no-op.
func (n *NoopRecorder) IncUsageEventPublished(status string) {}

// IncUsageEventProcessed is a no-op.
func (n *NoopRecorder) IncUsageEventProcessed(status string) {}

// SetUsageQueueDepth is a no-op.
func (n *NoopRecorder) SetUsageQueueDepth(depth int64) {}
