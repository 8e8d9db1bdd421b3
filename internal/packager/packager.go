// Package packager implements the RenderPacketPackager: it pairs each
// device's video frames with the processed detections computed for the
// same (device, frame) key and emits a RenderPacket once both halves have
// arrived, or drops the unmatched half after a timeout.
package packager

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/home-river/OAK-sub001/internal/backpressure"
	"github.com/home-river/OAK-sub001/internal/bus"
	"github.com/home-river/OAK-sub001/internal/constants"
	"github.com/home-river/OAK-sub001/internal/errs"
	"github.com/home-river/OAK-sub001/internal/interfaces"
	"github.com/home-river/OAK-sub001/internal/logging"
	"github.com/home-river/OAK-sub001/internal/model"
	"github.com/home-river/OAK-sub001/internal/queue"
)

// DataType distinguishes the two halves a RawDataEvent can carry.
type DataType int

const (
	DataTypeRawFrame DataType = iota
	DataTypeProcessed
)

// RawDataEvent wraps exactly one half of a render packet as it arrives off
// the bus. Exactly one of VideoFrame/ProcessedBatch is non-nil.
type RawDataEvent struct {
	DataType       DataType
	VideoFrame     *model.VideoFrame
	ProcessedBatch *model.ProcessedDetectionBatch
}

// NewRawFrameEvent wraps a video frame.
func NewRawFrameEvent(vf model.VideoFrame) RawDataEvent {
	return RawDataEvent{DataType: DataTypeRawFrame, VideoFrame: &vf}
}

// NewProcessedEvent wraps a processed detection batch.
func NewProcessedEvent(b model.ProcessedDetectionBatch) RawDataEvent {
	return RawDataEvent{DataType: DataTypeProcessed, ProcessedBatch: &b}
}

func (e RawDataEvent) deviceID() string {
	if e.VideoFrame != nil {
		return e.VideoFrame.DeviceID
	}
	return e.ProcessedBatch.DeviceID
}

func (e RawDataEvent) frameID() uint64 {
	if e.VideoFrame != nil {
		return e.VideoFrame.FrameID
	}
	return e.ProcessedBatch.FrameID
}

type pairKey struct {
	deviceID string
	frameID  uint64
}

// Config controls queue sizing and pairing timeouts.
type Config struct {
	Devices               []string
	QueueMaxSize          int
	PairingTimeout        time.Duration
	PairingBufferHardCap  int
}

// DefaultConfig returns the substrate's standard packager configuration
// for the given device list.
func DefaultConfig(devices []string) Config {
	return Config{
		Devices:              devices,
		QueueMaxSize:         constants.DefaultPackagerQueueMaxSize,
		PairingTimeout:       constants.DefaultPairingTimeout,
		PairingBufferHardCap: constants.DefaultPairingBufferHardCap,
	}
}

// Validate reports a config error for out-of-range fields.
func (c Config) Validate() error {
	if len(c.Devices) == 0 {
		return errs.New("packager.Config.Validate", errs.CodeConfig, "device list must not be empty")
	}
	for _, d := range c.Devices {
		if strings.TrimSpace(d) == "" {
			return errs.New("packager.Config.Validate", errs.CodeConfig, "device id must not be blank")
		}
	}
	if c.QueueMaxSize <= 0 {
		return errs.New("packager.Config.Validate", errs.CodeConfig, "queue max size must be positive")
	}
	if c.PairingTimeout <= 0 {
		return errs.New("packager.Config.Validate", errs.CodeConfig, "pairing timeout must be positive")
	}
	if c.PairingBufferHardCap <= 0 {
		return errs.New("packager.Config.Validate", errs.CodeConfig, "pairing buffer hard cap must be positive")
	}
	return nil
}

// Stats are the packager's cumulative counters.
type Stats struct {
	RenderPackets uint64
	Drops         uint64
	Purges        uint64
	Duplicates    uint64
}

// Packager is the RenderPacketPackager. Construct with New, then Start to
// begin consuming from the bus.
type Packager struct {
	cfg Config
	bus *bus.Bus
	obs interfaces.Observer
	log *logging.Logger

	eventQueue   *queue.Overflow[RawDataEvent]
	packetQueues map[string]*queue.Overflow[model.RenderPacket]

	mu     sync.Mutex
	buffer map[pairKey]*model.PartialMatch
	latest map[string]model.RenderPacket

	renderPackets atomic.Uint64
	purges        atomic.Uint64
	duplicates    atomic.Uint64

	lifecycle sync.Mutex
	running   bool
	unsub     []func()
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// New validates cfg and constructs a Packager. It does not start consuming
// until Start is called.
func New(cfg Config, b *bus.Bus, observer interfaces.Observer) (*Packager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}

	packetQueues := make(map[string]*queue.Overflow[model.RenderPacket], len(cfg.Devices))
	for _, d := range cfg.Devices {
		packetQueues[d] = queue.New[model.RenderPacket]("packager.packets."+d, cfg.QueueMaxSize, observer)
	}

	return &Packager{
		cfg:          cfg,
		bus:          b,
		obs:          observer,
		log:          logging.Default().With("packager"),
		eventQueue:   queue.New[RawDataEvent]("packager.events", cfg.QueueMaxSize, observer),
		packetQueues: packetQueues,
		buffer:       make(map[pairKey]*model.PartialMatch),
		latest:       make(map[string]model.RenderPacket),
	}, nil
}

// Start subscribes to the bus and launches the pairing worker. Calling
// Start twice without an intervening Stop is a no-op.
func (p *Packager) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	p.running = true

	unsubVideo := p.bus.Subscribe(bus.EventRawFrame, func(payload any) {
		vf, ok := payload.(model.VideoFrame)
		if !ok {
			return
		}
		p.eventQueue.PutWithOverflow(NewRawFrameEvent(vf))
	})
	unsubProcessed := p.bus.Subscribe(bus.EventProcessedData, func(payload any) {
		pb, ok := payload.(model.ProcessedDetectionBatch)
		if !ok {
			return
		}
		p.eventQueue.PutWithOverflow(NewProcessedEvent(pb))
	})
	p.unsub = []func(){unsubVideo, unsubProcessed}

	go p.workerLoop(loopCtx)
}

// Stop cancels the worker, unsubscribes from the bus, and waits up to
// timeout for the worker to exit.
func (p *Packager) Stop(timeout time.Duration) error {
	p.lifecycle.Lock()
	if !p.running {
		p.lifecycle.Unlock()
		return nil
	}
	cancel := p.cancel
	stopped := p.stopped
	unsub := p.unsub
	p.lifecycle.Unlock()

	cancel()
	for _, fn := range unsub {
		fn()
	}

	select {
	case <-stopped:
		p.lifecycle.Lock()
		p.running = false
		p.lifecycle.Unlock()
		return nil
	case <-time.After(timeout):
		return errs.New("Packager.Stop", errs.CodeShutdownTimeout, "packager worker did not stop before timeout")
	}
}

func (p *Packager) workerLoop(ctx context.Context) {
	defer close(p.stopped)
	for {
		if ctx.Err() != nil {
			return
		}
		ev, ok := p.eventQueue.Get(ctx, p.cfg.PairingTimeout)
		if ok {
			p.handle(ev)
		}
		p.purgeStale()
	}
}

func (p *Packager) handle(ev RawDataEvent) {
	key := pairKey{deviceID: ev.deviceID(), frameID: ev.frameID()}

	p.mu.Lock()
	pm, exists := p.buffer[key]
	if !exists {
		if len(p.buffer) >= p.cfg.PairingBufferHardCap {
			p.evictOldestLocked()
		}
		pm = &model.PartialMatch{DeviceID: key.deviceID, FrameID: key.frameID, FirstArrival: time.Now()}
		p.buffer[key] = pm
	}

	var duplicateHalf string
	switch ev.DataType {
	case DataTypeRawFrame:
		if pm.VideoFrame != nil {
			duplicateHalf = "video frame"
		} else {
			pm.VideoFrame = ev.VideoFrame
		}
	case DataTypeProcessed:
		if pm.ProcessedBatch != nil {
			duplicateHalf = "processed batch"
		} else {
			pm.ProcessedBatch = ev.ProcessedBatch
		}
	}

	ready := duplicateHalf == "" && pm.Ready()
	if ready {
		delete(p.buffer, key)
	}
	p.mu.Unlock()

	if duplicateHalf != "" {
		p.duplicates.Add(1)
		err := errs.NewQueue("Packager.handle", key.deviceID, errs.CodeDuplicatePayload,
			"duplicate "+duplicateHalf+" for an already-filled frame, dropping event")
		p.log.Warn(err.Error(), "device", key.deviceID, "frame", key.frameID)
		return
	}

	if !ready {
		return
	}

	pkt := model.RenderPacket{VideoFrame: *pm.VideoFrame, ProcessedBatch: pm.ProcessedBatch}
	p.renderPackets.Add(1)
	p.deliver(key.deviceID, pkt)
}

// evictOldestLocked drops the longest-waiting partial match. This is the
// pairing buffer's hard-cap safety net: unbounded growth here would mean a
// stalled producer on one side of a pair leaks memory without limit.
// Caller must hold p.mu.
func (p *Packager) evictOldestLocked() {
	var oldestKey pairKey
	var oldestTime time.Time
	first := true
	for k, pm := range p.buffer {
		if first || pm.FirstArrival.Before(oldestTime) {
			oldestKey = k
			oldestTime = pm.FirstArrival
			first = false
		}
	}
	if !first {
		delete(p.buffer, oldestKey)
		p.log.Warn("pairing buffer hard cap reached, evicting oldest partial match", "device", oldestKey.deviceID, "frame", oldestKey.frameID)
	}
}

func (p *Packager) purgeStale() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, pm := range p.buffer {
		if now.Sub(pm.FirstArrival) > p.cfg.PairingTimeout {
			delete(p.buffer, k)
			p.purges.Add(1)
		}
	}
}

// deliver pushes a completed packet onto the device's outbound queue. The
// "latest" cache is not written here: it is a consumer-side read cache
// updated on GetPackets/GetPacketByID's pop, not on production, so a
// renderer that polls slower than frames arrive still sees the newest
// packet it actually consumed rather than one it never asked for.
func (p *Packager) deliver(deviceID string, pkt model.RenderPacket) {
	p.mu.Lock()
	pq := p.packetQueues[deviceID]
	p.mu.Unlock()

	if pq != nil {
		pq.PutWithOverflow(pkt)
	}
}

// LatestPacket returns the most recently popped packet for a device, without
// popping anything itself. It reflects the cache GetPackets/GetPacketByID
// last populated, not necessarily the newest packet the packager produced.
func (p *Packager) LatestPacket(deviceID string) (model.RenderPacket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pkt, ok := p.latest[deviceID]
	return pkt, ok
}

// PacketQueue returns the bounded queue a device's completed packets flow
// through, for a consumer to drain.
func (p *Packager) PacketQueue(deviceID string) (*queue.Overflow[model.RenderPacket], bool) {
	q, ok := p.packetQueues[deviceID]
	return q, ok
}

// GetPacketByID pops the next completed packet for deviceID, waiting up to
// timeout. A pop refreshes the device's cached "latest" packet; if nothing
// arrives before the timeout, it falls back to that cache instead of
// reporting nothing, so a renderer polling faster than frames arrive still
// has something to draw. ok is false only for an unconfigured device or one
// that has never produced a packet.
func (p *Packager) GetPacketByID(ctx context.Context, deviceID string, timeout time.Duration) (model.RenderPacket, bool) {
	q, exists := p.packetQueues[deviceID]
	if !exists {
		return model.RenderPacket{}, false
	}
	if pkt, got := q.Get(ctx, timeout); got {
		p.mu.Lock()
		p.latest[deviceID] = pkt
		p.mu.Unlock()
		return pkt, true
	}
	return p.LatestPacket(deviceID)
}

// GetPackets performs a bounded-wait pop against every configured device's
// packet queue and returns what each one has: the packet it just popped, or
// its cached last packet if nothing new arrived within timeout. A device
// that has never produced a packet is omitted from the result.
func (p *Packager) GetPackets(ctx context.Context, timeout time.Duration) map[string]model.RenderPacket {
	out := make(map[string]model.RenderPacket, len(p.packetQueues))
	for deviceID := range p.packetQueues {
		if pkt, ok := p.GetPacketByID(ctx, deviceID, timeout); ok {
			out[deviceID] = pkt
		}
	}
	return out
}

// Stats returns a snapshot of the packager's cumulative counters.
func (p *Packager) Stats() Stats {
	return Stats{
		RenderPackets: p.renderPackets.Load(),
		Drops:         p.eventQueue.DropCount(),
		Purges:        p.purges.Load(),
		Duplicates:    p.duplicates.Load(),
	}
}

// PendingPairs reports how many (device, frame) keys are currently
// awaiting their other half, for diagnostics.
func (p *Packager) PendingPairs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// dropDeltaTracker turns a queue's cumulative drop count into the per-tick
// delta a backpressure.Monitor's decision logic needs: the number of drops
// since this tracker's own previous call, not since the queue was created.
type dropDeltaTracker struct {
	mu   sync.Mutex
	last uint64
}

func (t *dropDeltaTracker) delta(current uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current < t.last {
		// Defensive: a reset counter must not appear as a negative delta.
		t.last = current
		return 0
	}
	delta := current - t.last
	t.last = current
	return delta
}

// EventQueueMetricsProvider exposes the inbound pairing queue to a
// backpressure.Monitor registration.
func (p *Packager) EventQueueMetricsProvider() backpressure.MetricsProvider {
	tracker := &dropDeltaTracker{}
	return func() backpressure.QueueMetrics {
		current := p.eventQueue.DropCount()
		return backpressure.QueueMetrics{
			Depth:     p.eventQueue.Len(),
			DropCount: current,
			DropDelta: tracker.delta(current),
		}
	}
}

// PacketQueueMetricsProvider exposes one device's outbound packet queue to
// a backpressure.Monitor registration. ok is false for an unconfigured
// device.
func (p *Packager) PacketQueueMetricsProvider(deviceID string) (provider backpressure.MetricsProvider, ok bool) {
	q, exists := p.packetQueues[deviceID]
	if !exists {
		return nil, false
	}
	tracker := &dropDeltaTracker{}
	return func() backpressure.QueueMetrics {
		current := q.DropCount()
		return backpressure.QueueMetrics{
			Depth:     q.Len(),
			DropCount: current,
			DropDelta: tracker.delta(current),
		}
	}, true
}
