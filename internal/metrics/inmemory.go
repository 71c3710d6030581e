package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Generations             map[string]uint64 // keyed "type:status"
	GateRejections          map[string]uint64 // keyed by reason
	DelegateDurationCount   map[string]uint64 // keyed by delegate kind
	DelegateDurationTotalNs map[string]int64
	UsageEventsPublished    uint64
	UsageEventsDropped      uint64
	UsageEventsProcessed    uint64
	UsageEventsFailed       uint64
	UsageQueueDepth         int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu sync.Mutex

	generations             map[string]uint64
	gateRejections          map[string]uint64
	delegateDurationCount   map[string]uint64
	delegateDurationTotalNs map[string]int64
	usageEventsPublished    uint64
	usageEventsDropped      uint64
	usageEventsProcessed    uint64
	usageEventsFailed       uint64
	usageQueueDepth         int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		generations:             make(map[string]uint64),
		gateRejections:          make(map[string]uint64),
		delegateDurationCount:   make(map[string]uint64),
		delegateDurationTotalNs: make(map[string]int64),
	}
}

// IncGeneration counts one pipeline outcome.
func (m *InMemoryRecorder) IncGeneration(creationType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[creationType+":"+status]++
}

// IncGateRejected counts one gate rejection.
func (m *InMemoryRecorder) IncGateRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateRejections[reason]++
}

// ObserveDelegateDuration records one delegate call duration.
func (m *InMemoryRecorder) ObserveDelegateDuration(kind string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegateDurationCount[kind]++
	m.delegateDurationTotalNs[kind] += duration.Nanoseconds()
}

// IncUsageEventPublished counts one usage event publish attempt.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "success" {
		m.usageEventsPublished++
	} else {
		m.usageEventsDropped++
	}
}

// IncUsageEventProcessed counts one usage event processing attempt.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "success" {
		m.usageEventsProcessed++
	} else {
		m.usageEventsFailed++
	}
}

// SetUsageQueueDepth records the current queue depth.
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageQueueDepth = depth
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Generations:             copyMap(m.generations),
		GateRejections:          copyMap(m.gateRejections),
		DelegateDurationCount:   copyMap(m.delegateDurationCount),
		DelegateDurationTotalNs: copyMap(m.delegateDurationTotalNs),
		UsageEventsPublished:    m.usageEventsPublished,
		UsageEventsDropped:      m.usageEventsDropped,
		UsageEventsProcessed:    m.usageEventsProcessed,
		UsageEventsFailed:       m.usageEventsFailed,
		UsageQueueDepth:         m.usageQueueDepth,
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
