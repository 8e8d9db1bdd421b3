package packager

import (
	"context"
	"testing"
	"time"

	"github.com/home-river/OAK-sub001/internal/bus"
	"github.com/home-river/OAK-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(devices ...string) Config {
	return Config{
		Devices:              devices,
		QueueMaxSize:         8,
		PairingTimeout:       30 * time.Millisecond,
		PairingBufferHardCap: 4,
	}
}

func newTestPackager(t *testing.T, devices ...string) (*Packager, *bus.Bus) {
	t.Helper()
	b := bus.New()
	p, err := New(fastConfig(devices...), b, nil)
	require.NoError(t, err)
	return p, b
}

func TestNewRejectsEmptyDeviceList(t *testing.T) {
	_, err := New(fastConfig(), bus.New(), nil)
	assert.Error(t, err)
}

func TestPairingCompletesWhenBothHalvesArrive(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	vf := model.VideoFrame{DeviceID: "cam-0", FrameID: 7}
	pb := model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 7}

	b.Publish(bus.EventRawFrame, vf)
	b.Publish(bus.EventProcessedData, pb)

	q, ok := p.PacketQueue("cam-0")
	require.True(t, ok)

	pkt, got := q.Get(ctx, time.Second)
	require.True(t, got)
	assert.Equal(t, uint64(7), pkt.VideoFrame.FrameID)
	require.NotNil(t, pkt.ProcessedBatch)
	assert.Equal(t, uint64(7), pkt.ProcessedBatch.FrameID)
}

func TestUnpairedHalfIsPurgedAfterTimeout(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 1})

	require.Eventually(t, func() bool {
		return p.Stats().Purges > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, p.PendingPairs())
	_, ok := p.LatestPacket("cam-0")
	assert.False(t, ok)
}

func TestOrderIndependentPairingAlsoCompletes(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	// Processed data arrives before the video frame.
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 3})
	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 3})

	q, ok := p.PacketQueue("cam-0")
	require.True(t, ok)
	pkt, got := q.Get(ctx, time.Second)
	require.True(t, got)
	assert.Equal(t, uint64(3), pkt.VideoFrame.FrameID)
}

func TestPairingBufferHardCapEvictsOldest(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	// Fill the buffer beyond its hard cap with unpaired video frames only,
	// faster than the pairing timeout can purge them.
	for i := uint64(0); i < 10; i++ {
		b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: i})
	}

	require.Eventually(t, func() bool {
		return p.PendingPairs() <= fastConfig("cam-0").PairingBufferHardCap
	}, time.Second, 2*time.Millisecond)
}

func TestStopIsIdempotentAndUnblocksQuickly(t *testing.T) {
	p, _ := newTestPackager(t, "cam-0")
	ctx := context.Background()
	p.Start(ctx)

	err := p.Stop(time.Second)
	assert.NoError(t, err)

	// Second Stop on an already-stopped packager must not block or error.
	err = p.Stop(time.Second)
	assert.NoError(t, err)
}

func TestStartTwiceIsANoOp(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx) // must not panic, double-subscribe, or replace the worker
	defer p.Stop(time.Second)

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 1})
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 1})

	q, ok := p.PacketQueue("cam-0")
	require.True(t, ok)
	_, got := q.Get(ctx, time.Second)
	assert.True(t, got)
}

func TestUnknownDeviceFramesCompleteButHaveNowhereToGo(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-unknown", FrameID: 1})
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-unknown", FrameID: 1})

	_, ok := p.PacketQueue("cam-unknown")
	assert.False(t, ok)

	// The pair still completes internally (it is recorded by deviceID from
	// the payload, not from the configured device list) but there is no
	// queue configured to deliver it into, so it can never be popped or
	// cached.
	require.Eventually(t, func() bool {
		return p.Stats().RenderPackets > 0
	}, time.Second, 5*time.Millisecond)
	_, ok = p.LatestPacket("cam-unknown")
	assert.False(t, ok)
	_, ok = p.GetPacketByID(ctx, "cam-unknown", 10*time.Millisecond)
	assert.False(t, ok)
}

func TestDuplicateVideoFrameForSameKeyIsDroppedNotOverwritten(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 5})
	require.Eventually(t, func() bool {
		return p.PendingPairs() == 1
	}, time.Second, 2*time.Millisecond)

	// A second video frame for the same (device, frame) key must be
	// detected as a duplicate and dropped, not silently overwrite the
	// buffered half.
	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 5})
	require.Eventually(t, func() bool {
		return p.Stats().Duplicates > 0
	}, time.Second, 2*time.Millisecond)

	assert.Equal(t, 1, p.PendingPairs())
	assert.Equal(t, uint64(0), p.Stats().RenderPackets)
}

func TestDuplicateProcessedBatchForSameKeyIsDroppedNotOverwritten(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 5})
	require.Eventually(t, func() bool {
		return p.PendingPairs() == 1
	}, time.Second, 2*time.Millisecond)

	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 5})
	require.Eventually(t, func() bool {
		return p.Stats().Duplicates > 0
	}, time.Second, 2*time.Millisecond)

	assert.Equal(t, 1, p.PendingPairs())
}

func TestGetPacketByIDPopsAndCachesThenFallsBackOnEmptyQueue(t *testing.T) {
	p, b := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	_, ok := p.LatestPacket("cam-0")
	assert.False(t, ok, "cache must not be populated before any consumer pop")

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 9})
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 9})

	pkt, ok := p.GetPacketByID(ctx, "cam-0", time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(9), pkt.VideoFrame.FrameID)

	cached, ok := p.LatestPacket("cam-0")
	require.True(t, ok, "a successful pop must populate the cache")
	assert.Equal(t, uint64(9), cached.VideoFrame.FrameID)

	// Queue is now empty; GetPacketByID must fall back to the cache rather
	// than reporting nothing.
	again, ok := p.GetPacketByID(ctx, "cam-0", 5*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, uint64(9), again.VideoFrame.FrameID)
}

func TestGetPacketByIDUnconfiguredDeviceReturnsFalse(t *testing.T) {
	p, _ := newTestPackager(t, "cam-0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	_, ok := p.GetPacketByID(ctx, "cam-unconfigured", 5*time.Millisecond)
	assert.False(t, ok)
}

func TestGetPacketsReturnsOnePacketPerConfiguredDevice(t *testing.T) {
	p, b := newTestPackager(t, "cam-0", "cam-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(time.Second)

	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-0", FrameID: 1})
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-0", FrameID: 1})
	b.Publish(bus.EventRawFrame, model.VideoFrame{DeviceID: "cam-1", FrameID: 2})
	b.Publish(bus.EventProcessedData, model.ProcessedDetectionBatch{DeviceID: "cam-1", FrameID: 2})

	require.Eventually(t, func() bool {
		return p.Stats().RenderPackets == 2
	}, time.Second, 5*time.Millisecond)

	packets := p.GetPackets(ctx, time.Second)
	require.Len(t, packets, 2)
	assert.Equal(t, uint64(1), packets["cam-0"].VideoFrame.FrameID)
	assert.Equal(t, uint64(2), packets["cam-1"].VideoFrame.FrameID)
}
