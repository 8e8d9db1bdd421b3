// Package model holds the data-transfer types shared across the
// substrate's internal packages. It exists so internal/packager,
// internal/filter, and the root package can all refer to the same frame
// and detection shapes without the root package creating an import cycle
// by depending on internal/packager and vice versa.
package model

import "time"

// PixelBuffer is a minimal, codec-agnostic image buffer. The core never
// assumes a concrete color model; whatever produced the bytes (depth
// sensor, RGB camera) is an external collaborator.
type PixelBuffer struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// VideoFrame is one camera's frame for a device at a point in time.
type VideoFrame struct {
	DeviceID  string
	FrameID   uint64
	Timestamp time.Time
	RGB       PixelBuffer
	Depth     PixelBuffer
}

// DetectionState records whether a detection's spatial coordinate came
// from a fresh measurement or a filter's predicted carry-over.
type DetectionState int

const (
	StateMeasured DetectionState = iota
	StatePredicted
)

// RawDetection is a single detector output before tracking/filtering.
type RawDetection struct {
	Label      int32
	BBox       [4]float32 // xmin, ymin, xmax, ymax, normalized
	Confidence float32
}

// DetectionBatch holds one frame's worth of raw detections as parallel
// slices, matching the wire shape the external detector emits.
type DetectionBatch struct {
	DeviceID   string
	FrameID    uint64
	Timestamp  time.Time
	Labels     []int32
	BBoxes     [][4]float32
	Confidence []float32
}

// Len returns the batch size, validated to be consistent across every
// parallel slice. A negative result signals a malformed batch.
func (b *DetectionBatch) Len() int {
	n := len(b.Labels)
	if len(b.BBoxes) != n || len(b.Confidence) != n {
		return -1
	}
	return n
}

// ProcessedDetectionBatch is a DetectionBatch after tracking and spatial
// filtering: one 3D coordinate and state label per detection. The filter
// manager groups rows by ascending label, so they need not follow the
// originating DetectionBatch's order.
type ProcessedDetectionBatch struct {
	DeviceID   string
	FrameID    uint64
	Timestamp  time.Time
	Labels     []int32
	BBoxes     [][4]float32
	Confidence []float32
	Coords     [][3]float32
	StateLabel []DetectionState
}

// Len mirrors DetectionBatch.Len, validated across every parallel slice.
func (b *ProcessedDetectionBatch) Len() int {
	n := len(b.Labels)
	if len(b.BBoxes) != n || len(b.Confidence) != n || len(b.Coords) != n || len(b.StateLabel) != n {
		return -1
	}
	return n
}

// RenderPacket pairs one device's video frame with the processed
// detections computed from that same (device, frame) key. The packager
// only emits a packet once both halves have arrived, so ProcessedBatch is
// set on every packet it produces; a frame whose detections do not arrive
// before the pairing timeout is purged, not emitted.
type RenderPacket struct {
	VideoFrame     VideoFrame
	ProcessedBatch *ProcessedDetectionBatch
}

// PartialMatch is the packager's in-flight pairing state for a
// (DeviceID, FrameID) key awaiting its other half.
type PartialMatch struct {
	DeviceID       string
	FrameID        uint64
	FirstArrival   time.Time
	VideoFrame     *VideoFrame
	ProcessedBatch *ProcessedDetectionBatch
}

// Ready reports whether both halves of the pair have arrived.
func (p *PartialMatch) Ready() bool {
	return p.VideoFrame != nil && p.ProcessedBatch != nil
}
