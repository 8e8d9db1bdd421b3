package backpressure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/home-river/OAK-sub001/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.HighHitsToTrip = 2
	cfg.LowHitsToClear = 2
	cfg.MinCapacity = 0
	return cfg
}

func TestRegisterDuplicateQueueErrors(t *testing.T) {
	m := NewMonitor(fastConfig(), bus.New(), nil)
	require.NoError(t, m.Register("q1", 10, func() QueueMetrics { return QueueMetrics{} }))
	err := m.Register("q1", 10, func() QueueMetrics { return QueueMetrics{} })
	assert.Error(t, err)
}

func TestTripsToPressuredAfterSustainedHighWatermark(t *testing.T) {
	b := bus.New()
	m := NewMonitor(fastConfig(), b, nil)
	require.NoError(t, m.Register("hot", 10, func() QueueMetrics {
		return QueueMetrics{Depth: 9} // above the 0.75 high watermark
	}))

	var mu sync.Mutex
	var events []Event
	b.Subscribe(bus.EventBackpressure, func(p any) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.(Event))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, ok := m.StateOf("hot")
		return ok && s == StatePressured
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StatePressured, last.ToState)
	assert.Equal(t, ActionThrottle, last.Action)
	assert.Equal(t, "queue_high_hits", last.Reason)
}

func TestClearsBackToNormalAfterSustainedLowWatermark(t *testing.T) {
	depth := 9
	var mu sync.Mutex
	m := NewMonitor(fastConfig(), bus.New(), nil)
	require.NoError(t, m.Register("q", 10, func() QueueMetrics {
		mu.Lock()
		defer mu.Unlock()
		return QueueMetrics{Depth: depth}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StatePressured
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	depth = 1
	mu.Unlock()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StateNormal
	}, time.Second, 2*time.Millisecond)

	a, ok := m.ActionOf("q")
	require.True(t, ok)
	assert.Equal(t, ActionNormal, a)
}

func TestDropDeltaForcesOverloadedRegardlessOfDepth(t *testing.T) {
	m := NewMonitor(fastConfig(), bus.New(), nil)
	require.NoError(t, m.Register("q", 10, func() QueueMetrics {
		return QueueMetrics{Depth: 0, DropCount: 100, DropDelta: 6}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StateOverloaded
	}, time.Second, 2*time.Millisecond)

	a, ok := m.ActionOf("q")
	require.True(t, ok)
	assert.Equal(t, ActionPause, a)
}

func TestOverloadedQueueExitsOnceDropsStopAndDepthFalls(t *testing.T) {
	var mu sync.Mutex
	dropDelta := uint64(6)
	depth := 9
	m := NewMonitor(fastConfig(), bus.New(), nil)
	require.NoError(t, m.Register("q", 10, func() QueueMetrics {
		mu.Lock()
		defer mu.Unlock()
		return QueueMetrics{Depth: depth, DropDelta: dropDelta}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StateOverloaded
	}, time.Second, 2*time.Millisecond)

	// Drops stop and depth falls below the low watermark (2); the
	// overloaded state must clear once the per-tick drop delta is zero,
	// since it is the delta, not the cumulative count, that decides
	// overload.
	mu.Lock()
	dropDelta = 0
	depth = 1
	mu.Unlock()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StateNormal
	}, time.Second, 2*time.Millisecond)
}

func TestAnyDropImmediatelyEntersPressuredFromNormal(t *testing.T) {
	var mu sync.Mutex
	dropDelta := uint64(0)
	m := NewMonitor(fastConfig(), bus.New(), nil)
	require.NoError(t, m.Register("q", 100, func() QueueMetrics {
		mu.Lock()
		defer mu.Unlock()
		return QueueMetrics{Depth: 0, DropDelta: dropDelta}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StateNormal
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	dropDelta = 1
	mu.Unlock()

	// A single tick with any drop is enough, unlike the high-watermark path
	// which requires HighHitsToTrip consecutive hits.
	require.Eventually(t, func() bool {
		s, _ := m.StateOf("q")
		return s == StatePressured
	}, time.Second, 2*time.Millisecond)

	a, ok := m.ActionOf("q")
	require.True(t, ok)
	assert.Equal(t, ActionThrottle, a)
}

func TestStopIsIdempotentAndUnblocksQuickly(t *testing.T) {
	m := NewMonitor(fastConfig(), bus.New(), nil)
	ctx := context.Background()
	m.Start(ctx)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestConfigValidateRejectsInvertedWatermarks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighWatermarkFrac = 0.1
	cfg.LowWatermarkFrac = 0.9
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsNegativeMinCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCapacity = -1
	assert.Error(t, cfg.Validate())
}

func TestCalculateWatermarksUsesFixedFractionsBelowMinCapacity(t *testing.T) {
	w := CalculateWatermarks(4, 0.75, 0.25, 10)
	assert.Equal(t, 3, w.High) // max(2, floor(0.9*4)) = 3
	assert.Equal(t, 2, w.Low)  // max(1, floor(0.5*4)) = 2
}

func TestCalculateWatermarksFloorsFixedFractionsAtTwoAndOne(t *testing.T) {
	w := CalculateWatermarks(1, 0.75, 0.25, 10)
	assert.Equal(t, 2, w.High)
	assert.Equal(t, 1, w.Low)
}

func TestCalculateWatermarksUsesConfiguredRatiosAtOrAboveMinCapacity(t *testing.T) {
	w := CalculateWatermarks(100, 0.75, 0.25, 10)
	assert.Equal(t, 75, w.High)
	assert.Equal(t, 25, w.Low)
}

func TestMoreSevereLexOrdersActionBeforeState(t *testing.T) {
	// Pause+Pressured must outrank Throttle+Overloaded: action is the
	// primary sort key, state only breaks ties within the same action.
	assert.True(t, moreSevere(ActionPause, StatePressured, ActionThrottle, StateOverloaded))
	assert.True(t, moreSevere(ActionThrottle, StateOverloaded, ActionThrottle, StatePressured))
	assert.False(t, moreSevere(ActionThrottle, StateNormal, ActionThrottle, StateNormal))
}
