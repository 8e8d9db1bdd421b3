package oaksub

import (
	"sync"
	"time"

	"github.com/home-river/OAK-sub001/internal/backpressure"
)

// MockRenderer is a test double for Renderer that records call counts and
// lets a test inject failures on either lifecycle method.
type MockRenderer struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
}

// NewMockRenderer creates a MockRenderer with no injected errors.
func NewMockRenderer() *MockRenderer {
	return &MockRenderer{}
}

// Start implements Renderer.
func (m *MockRenderer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	return m.startErr
}

// Stop implements Renderer.
func (m *MockRenderer) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}

// SetStartErr makes the next and subsequent calls to Start return err.
func (m *MockRenderer) SetStartErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetStopErr makes the next and subsequent calls to Stop return err.
func (m *MockRenderer) SetStopErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// StartCalls returns how many times Start has been called.
func (m *MockRenderer) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

// StopCalls returns how many times Stop has been called.
func (m *MockRenderer) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

var _ Renderer = (*MockRenderer)(nil)

// MockMetricsProvider is a test double that feeds a fixed, adjustable
// QueueMetrics reading to a BackpressureMonitor registration, so hysteresis
// behavior can be exercised without a real OverflowQueue.
type MockMetricsProvider struct {
	mu      sync.Mutex
	metrics backpressure.QueueMetrics
}

// NewMockMetricsProvider creates a provider reporting the given initial
// depth, cumulative drop count, and this-tick drop delta.
func NewMockMetricsProvider(depth int, dropCount, dropDelta uint64) *MockMetricsProvider {
	return &MockMetricsProvider{metrics: backpressure.QueueMetrics{Depth: depth, DropCount: dropCount, DropDelta: dropDelta}}
}

// Set updates the reading the provider will return on its next call.
func (p *MockMetricsProvider) Set(depth int, dropCount, dropDelta uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = backpressure.QueueMetrics{Depth: depth, DropCount: dropCount, DropDelta: dropDelta}
}

// Provide implements backpressure.MetricsProvider.
func (p *MockMetricsProvider) Provide() backpressure.QueueMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
