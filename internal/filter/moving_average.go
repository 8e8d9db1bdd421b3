package filter

import "github.com/home-river/OAK-sub001/internal/constants"

// MovingAverage is an O(1)-per-update incremental mean over a fixed-size
// sliding window: each Input adds the new measurement and subtracts the
// one just evicted, rather than re-summing the whole window. Every
// recalcInterval updates it does a full re-sum anyway, to correct the
// float64 drift that incremental subtraction accumulates over a long run.
type MovingAverage struct {
	base

	sumX, sumY, sumZ float64
	size             int
	updateCount      int
	recalcInterval   int
}

// NewMovingAverage creates a MovingAverage filter. recalcMultiplier sets
// the re-sum cadence as a multiple of maxWindow (recalcInterval =
// maxWindow * recalcMultiplier); <= 0 uses the package default.
func NewMovingAverage(maxWindow, maxMissed, recalcMultiplier int) *MovingAverage {
	m := &MovingAverage{}
	m.base = newBase(maxWindow, maxMissed, m)
	if recalcMultiplier <= 0 {
		recalcMultiplier = constants.DefaultRecalcInterval
	}
	m.recalcInterval = m.base.capacity() * recalcMultiplier
	return m
}

func (m *MovingAverage) update(window []([3]float32), evicted [3]float32, hadEvicted bool) [3]float32 {
	m.updateCount++

	if m.recalcInterval > 0 && m.updateCount%m.recalcInterval == 0 {
		var sx, sy, sz float64
		for _, v := range window {
			sx += float64(v[0])
			sy += float64(v[1])
			sz += float64(v[2])
		}
		m.sumX, m.sumY, m.sumZ = sx, sy, sz
		m.size = len(window)
	} else {
		if hadEvicted {
			m.sumX -= float64(evicted[0])
			m.sumY -= float64(evicted[1])
			m.sumZ -= float64(evicted[2])
		} else {
			m.size++
		}
		newest := window[len(window)-1]
		m.sumX += float64(newest[0])
		m.sumY += float64(newest[1])
		m.sumZ += float64(newest[2])
	}

	if m.size == 0 {
		return [3]float32{}
	}
	return [3]float32{
		float32(m.sumX / float64(m.size)),
		float32(m.sumY / float64(m.size)),
		float32(m.sumZ / float64(m.size)),
	}
}

func (m *MovingAverage) resetExtra() {
	m.sumX, m.sumY, m.sumZ = 0, 0, 0
	m.size = 0
	m.updateCount = 0
}

// IsWarmedUp reports whether the window has filled to capacity at least
// once, so its mean reflects a full window rather than a partial one.
func (m *MovingAverage) IsWarmedUp() bool {
	return m.size == m.base.capacity()
}

var _ SpatialFilter = (*MovingAverage)(nil)
