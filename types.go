package oaksub

import "github.com/home-river/OAK-sub001/internal/model"

// The data-transfer types below are defined once in internal/model so
// every internal package can share them without creating an import cycle
// back to this root package; these are plain aliases, not copies.
type (
	PixelBuffer             = model.PixelBuffer
	VideoFrame              = model.VideoFrame
	DetectionState          = model.DetectionState
	RawDetection            = model.RawDetection
	DetectionBatch          = model.DetectionBatch
	ProcessedDetectionBatch = model.ProcessedDetectionBatch
	RenderPacket            = model.RenderPacket
	PartialMatch            = model.PartialMatch
)

const (
	StateMeasured  = model.StateMeasured
	StatePredicted = model.StatePredicted
)
