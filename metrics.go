package oaksub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates telemetry across every OverflowQueue, the packager,
// and the backpressure monitor in a running substrate. Per-queue counters
// are kept alongside the totals so a caller can tell a single noisy queue
// apart from a system-wide problem.
type Metrics struct {
	TotalEnqueues             atomic.Uint64
	TotalDrops                atomic.Uint64
	TotalDequeues             atomic.Uint64
	TotalDequeueWaitNs        atomic.Uint64
	BackpressureTransitions   atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64

	mu        sync.Mutex
	perQueue  map[string]*queueCounters
}

type queueCounters struct {
	enqueues  uint64
	drops     uint64
	dequeues  uint64
	maxDepth  int
}

// NewMetrics creates an empty Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{perQueue: make(map[string]*queueCounters)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) counters(queue string) *queueCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.perQueue[queue]
	if !ok {
		c = &queueCounters{}
		m.perQueue[queue] = c
	}
	return c
}

// RecordEnqueue records a successful enqueue and the queue's depth
// immediately after it.
func (m *Metrics) RecordEnqueue(queue string, depth int) {
	m.TotalEnqueues.Add(1)
	c := m.counters(queue)
	m.mu.Lock()
	c.enqueues++
	if depth > c.maxDepth {
		c.maxDepth = depth
	}
	m.mu.Unlock()
}

// RecordDrop records an eviction on queue. total is the queue's own
// cumulative drop counter, kept so a snapshot can cross-check against this
// aggregate's view.
func (m *Metrics) RecordDrop(queue string, total uint64) {
	m.TotalDrops.Add(1)
	c := m.counters(queue)
	m.mu.Lock()
	c.drops = total
	m.mu.Unlock()
}

// RecordDequeue records a successful dequeue and how long the consumer
// waited for it.
func (m *Metrics) RecordDequeue(queue string, waitNs int64) {
	m.TotalDequeues.Add(1)
	m.TotalDequeueWaitNs.Add(uint64(waitNs))
	c := m.counters(queue)
	m.mu.Lock()
	c.dequeues++
	m.mu.Unlock()
}

// RecordBackpressureTransition records one state change published by the
// BackpressureMonitor.
func (m *Metrics) RecordBackpressureTransition(queue, fromState, toState string) {
	m.BackpressureTransitions.Add(1)
}

// Stop marks the substrate as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// QueueSnapshot is a point-in-time view of one queue's counters.
type QueueSnapshot struct {
	Enqueues uint64
	Drops    uint64
	Dequeues uint64
	MaxDepth int
}

// MetricsSnapshot is a point-in-time view of the whole substrate.
type MetricsSnapshot struct {
	TotalEnqueues           uint64
	TotalDrops              uint64
	TotalDequeues           uint64
	AvgDequeueWaitNs        uint64
	BackpressureTransitions uint64
	UptimeNs                uint64
	DropRate                float64 // fraction of enqueues that were evictions
	PerQueue                map[string]QueueSnapshot
}

// Snapshot computes a consistent point-in-time view of every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalEnqueues:           m.TotalEnqueues.Load(),
		TotalDrops:              m.TotalDrops.Load(),
		TotalDequeues:           m.TotalDequeues.Load(),
		BackpressureTransitions: m.BackpressureTransitions.Load(),
		PerQueue:                make(map[string]QueueSnapshot),
	}

	if snap.TotalDequeues > 0 {
		snap.AvgDequeueWaitNs = m.TotalDequeueWaitNs.Load() / snap.TotalDequeues
	}
	if snap.TotalEnqueues > 0 {
		snap.DropRate = float64(snap.TotalDrops) / float64(snap.TotalEnqueues)
	}

	startTime := m.StartTime.Load()
	if stopTime := m.StopTime.Load(); stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	m.mu.Lock()
	for name, c := range m.perQueue {
		snap.PerQueue[name] = QueueSnapshot{
			Enqueues: c.enqueues,
			Drops:    c.drops,
			Dequeues: c.dequeues,
			MaxDepth: c.maxDepth,
		}
	}
	m.mu.Unlock()

	return snap
}

// Reset clears every counter, useful between test cases.
func (m *Metrics) Reset() {
	m.TotalEnqueues.Store(0)
	m.TotalDrops.Store(0)
	m.TotalDequeues.Store(0)
	m.TotalDequeueWaitNs.Store(0)
	m.BackpressureTransitions.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
	m.mu.Lock()
	m.perQueue = make(map[string]*queueCounters)
	m.mu.Unlock()
}

// MetricsObserver adapts Metrics to the Observer contract every queue,
// the packager, and the backpressure monitor are constructed with.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveEnqueue(queue string, depth int)    { o.metrics.RecordEnqueue(queue, depth) }
func (o *MetricsObserver) ObserveDrop(queue string, total uint64)    { o.metrics.RecordDrop(queue, total) }
func (o *MetricsObserver) ObserveDequeue(queue string, waitNs int64) { o.metrics.RecordDequeue(queue, waitNs) }
func (o *MetricsObserver) ObserveBackpressureTransition(queue, fromState, toState string) {
	o.metrics.RecordBackpressureTransition(queue, fromState, toState)
}

var _ Observer = (*MetricsObserver)(nil)
