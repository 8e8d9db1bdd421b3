package oaksub

import (
	"context"
	"time"

	"github.com/home-river/OAK-sub001/internal/backpressure"
	"github.com/home-river/OAK-sub001/internal/bus"
	"github.com/home-river/OAK-sub001/internal/constants"
	"github.com/home-river/OAK-sub001/internal/filter"
	"github.com/home-river/OAK-sub001/internal/orchestrator"
	"github.com/home-river/OAK-sub001/internal/packager"
	"github.com/home-river/OAK-sub001/internal/tracker"
)

// SubstrateConfig wires every component's own configuration into one
// struct, the way the teacher repo's root package hands back a single
// constructed value instead of requiring callers to assemble internal/*
// pieces by hand.
type SubstrateConfig struct {
	Devices []string
	Labels  []int32

	PoolSize      int
	TrackerMethod string // "greedy" or "hungarian"
	IoUThreshold  float32

	FilterMaxWindow        int
	FilterMaxMissed        int
	FilterRecalcMultiplier int
	UseWeightedFilter      bool

	Packager     packager.Config
	Backpressure backpressure.Config
}

// DefaultSubstrateConfig returns the substrate's standard configuration for
// the given devices and detection labels.
func DefaultSubstrateConfig(devices []string, labels []int32) SubstrateConfig {
	return SubstrateConfig{
		Devices:                devices,
		Labels:                 labels,
		PoolSize:               constants.DefaultPoolSize,
		TrackerMethod:          "greedy",
		IoUThreshold:           constants.DefaultIoUThreshold,
		FilterMaxWindow:        8,
		FilterMaxMissed:        constants.DefaultMaxMissedCount,
		FilterRecalcMultiplier: constants.DefaultRecalcInterval,
		Packager:               packager.DefaultConfig(devices),
		Backpressure:           backpressure.DefaultConfig(),
	}
}

// Substrate wires the EventBus, BackpressureMonitor, FilterManager,
// RenderPacketPackager, and DisplayOrchestrator into one running system.
// The individual components remain reachable as fields for callers that
// need finer control than Start/Stop provides.
type Substrate struct {
	cfg SubstrateConfig

	Bus          *bus.Bus
	Monitor      *backpressure.Monitor
	Filters      *filter.Manager
	Packager     *packager.Packager
	Orchestrator *orchestrator.Orchestrator
	Metrics      *Metrics
}

// NewSubstrate validates cfg, constructs every component, and registers
// the packager's queues with the backpressure monitor. It does not start
// anything; call Start.
func NewSubstrate(cfg SubstrateConfig, renderer Renderer) (*Substrate, error) {
	if err := cfg.Packager.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Backpressure.Validate(); err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	observer := NewMetricsObserver(metrics)

	eventBus := bus.New()
	monitor := backpressure.NewMonitor(cfg.Backpressure, eventBus, observer)

	trk, err := tracker.New(cfg.TrackerMethod, cfg.IoUThreshold)
	if err != nil {
		return nil, err
	}

	factory := func() filter.SpatialFilter {
		if cfg.UseWeightedFilter {
			return filter.NewWeightedMovingAverage(cfg.FilterMaxWindow, cfg.FilterMaxMissed)
		}
		return filter.NewMovingAverage(cfg.FilterMaxWindow, cfg.FilterMaxMissed, cfg.FilterRecalcMultiplier)
	}

	filters, err := filter.NewManager(cfg.Devices, cfg.Labels, cfg.PoolSize, factory, trk)
	if err != nil {
		return nil, err
	}

	pkg, err := packager.New(cfg.Packager, eventBus, observer)
	if err != nil {
		return nil, err
	}

	if err := monitor.Register("packager.events", cfg.Packager.QueueMaxSize, pkg.EventQueueMetricsProvider()); err != nil {
		return nil, err
	}
	for _, device := range cfg.Devices {
		provider, ok := pkg.PacketQueueMetricsProvider(device)
		if !ok {
			continue
		}
		if err := monitor.Register("packager.packets."+device, cfg.Packager.QueueMaxSize, provider); err != nil {
			return nil, err
		}
	}

	orch := orchestrator.New(pkg, renderer)

	return &Substrate{
		cfg:          cfg,
		Bus:          eventBus,
		Monitor:      monitor,
		Filters:      filters,
		Packager:     pkg,
		Orchestrator: orch,
		Metrics:      metrics,
	}, nil
}

// Start launches the backpressure monitor and the orchestrator (which in
// turn starts the packager and the renderer).
func (s *Substrate) Start(ctx context.Context) error {
	s.Monitor.Start(ctx)
	if err := s.Orchestrator.Start(ctx); err != nil {
		s.Monitor.Stop()
		return err
	}
	return nil
}

// Stop tears down the orchestrator and then the backpressure monitor,
// returning the first error encountered.
func (s *Substrate) Stop(timeout time.Duration) error {
	var firstErr error
	if err := s.Orchestrator.Stop(timeout); err != nil {
		firstErr = err
	}
	if err := s.Monitor.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.Metrics.Stop()
	return firstErr
}

// ProcessDetections runs one frame's raw detections through tracking and
// spatial filtering for deviceID. rawCoords holds one unfiltered 3D
// position estimate per detection (e.g. a depth-map projection computed
// upstream of the substrate), in the same order as batch's parallel
// slices; the returned batch carries the smoothed coordinates in its
// place.
func (s *Substrate) ProcessDetections(deviceID string, batch DetectionBatch, rawCoords [][3]float32) (ProcessedDetectionBatch, error) {
	labels, bboxes, confidences, filteredCoords, err := s.Filters.Process(deviceID, batch.Labels, batch.BBoxes, batch.Confidence, rawCoords)
	if err != nil {
		return ProcessedDetectionBatch{}, err
	}

	stateLabels := make([]DetectionState, len(labels))
	for i := range stateLabels {
		stateLabels[i] = StateMeasured
	}

	return ProcessedDetectionBatch{
		DeviceID:   deviceID,
		FrameID:    batch.FrameID,
		Timestamp:  batch.Timestamp,
		Labels:     labels,
		BBoxes:     bboxes,
		Confidence: confidences,
		Coords:     filteredCoords,
		StateLabel: stateLabels,
	}, nil
}

// PublishVideoFrame publishes a video frame to the bus for the packager to
// pair against its matching processed detection batch.
func (s *Substrate) PublishVideoFrame(vf VideoFrame) {
	s.Bus.Publish(bus.EventRawFrame, vf)
}

// PublishProcessedDetections publishes a processed detection batch to the
// bus for the packager to pair against its matching video frame.
func (s *Substrate) PublishProcessedDetections(batch ProcessedDetectionBatch) {
	s.Bus.Publish(bus.EventProcessedData, batch)
}
