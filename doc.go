// Package oaksub is a streaming concurrency substrate for a multi-camera
// depth-and-detection pipeline. It provides a bounded evict-oldest queue,
// an in-process event bus, a hysteresis-based backpressure monitor, IoU
// tracking, per-track spatial smoothing filters, a video/detection pairing
// packager, and a thin display orchestrator tying a renderer to the
// pairing stage.
//
// Most callers only need Substrate: construct one with NewSubstrate,
// Start it, feed it frames and detections, and Stop it on shutdown. The
// internal/* packages remain directly importable within this module for
// callers that need a single component in isolation (a bare OverflowQueue,
// the IoU tracker on its own, and so on).
package oaksub
