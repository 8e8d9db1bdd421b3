// Package filter implements the per-track spatial smoothing filters, the
// fixed-size FilterPool that assigns them to tracked objects via IoU
// matching, and the FilterManager that fans a frame's detections out to
// one pool per (device, label) pair.
package filter

import "github.com/home-river/OAK-sub001/internal/constants"

// SpatialFilter smooths a stream of noisy 3D measurements for a single
// tracked object. Implementations decide how the smoothed value is
// computed; everything about queue bookkeeping, missed-frame aging, and
// bbox tracking is common and lives in base.
type SpatialFilter interface {
	// Input feeds a new measurement and its source bounding box, resets the
	// missed-frame counter, and returns the filter's current smoothed value.
	Input(value [3]float32, bbox [4]float32) [3]float32

	// Predict returns the filter's last smoothed value without a new
	// measurement, incrementing the missed-frame counter. ok is false once
	// the filter has gone unseen for longer than its configured tolerance,
	// at which point the filter has also reset itself.
	Predict() (value [3]float32, ok bool)

	// Miss is Predict without the value: used when a pool slot is active
	// but received no detection this frame and the caller only needs to
	// know whether the slot should be retired.
	Miss() (ok bool)

	// IsValid reports whether the filter currently holds a usable value.
	IsValid() bool

	// CurrentBBox returns the bounding box of the most recent Input call.
	CurrentBBox() (bbox [4]float32, ok bool)

	// Reset clears all filter state back to empty.
	Reset()
}

// base holds every concern shared across filter flavors: the fixed-size
// measurement window, missed-frame aging, and current bbox/value tracking.
// Grounded on the same shape as the original filter's queue + missed-count
// bookkeeping, generalized behind the updater hook below.
type base struct {
	window        []([3]float32)
	maxWindow     int
	maxMissed     int
	missedCount   int
	currentValue  [3]float32
	hasCurrent    bool
	currentBBox   [4]float32
	hasBBox       bool
	updater       updater
}

// updater is the hook each concrete filter flavor implements to compute the
// new smoothed value after a measurement is pushed into the window, and to
// clear whatever extra state it keeps on Reset.
type updater interface {
	update(window []([3]float32), evicted [3]float32, hadEvicted bool) [3]float32
	resetExtra()
}

func newBase(maxWindow, maxMissed int, u updater) base {
	if maxWindow <= 0 {
		maxWindow = constants.DefaultFilterQueueMaxSize
	}
	if maxMissed <= 0 {
		maxMissed = constants.DefaultMaxMissedCount
	}
	return base{
		window:    make([]([3]float32), 0, maxWindow),
		maxWindow: maxWindow,
		maxMissed: maxMissed,
		updater:   u,
	}
}

func (b *base) Input(value [3]float32, bbox [4]float32) [3]float32 {
	b.missedCount = 0

	var evicted [3]float32
	hadEvicted := false
	if len(b.window) >= b.maxWindow {
		evicted = b.window[0]
		hadEvicted = true
		b.window = b.window[1:]
	}
	b.window = append(b.window, value)

	b.currentBBox = bbox
	b.hasBBox = true

	b.currentValue = b.updater.update(b.window, evicted, hadEvicted)
	b.hasCurrent = true
	return b.currentValue
}

func (b *base) Predict() ([3]float32, bool) {
	b.missedCount++
	if b.missedCount > b.maxMissed {
		b.Reset()
		return [3]float32{}, false
	}
	return b.currentValue, b.hasCurrent
}

func (b *base) Miss() bool {
	_, ok := b.Predict()
	return ok
}

func (b *base) IsValid() bool {
	return b.hasCurrent && b.missedCount <= b.maxMissed
}

func (b *base) CurrentBBox() ([4]float32, bool) {
	return b.currentBBox, b.hasBBox
}

func (b *base) Reset() {
	b.window = b.window[:0]
	b.currentValue = [3]float32{}
	b.hasCurrent = false
	b.currentBBox = [4]float32{}
	b.hasBBox = false
	b.missedCount = 0
	if b.updater != nil {
		b.updater.resetExtra()
	}
}

// windowLen reports how many measurements are currently held, for
// warm-up checks.
func (b *base) windowLen() int { return len(b.window) }
func (b *base) capacity() int  { return b.maxWindow }
