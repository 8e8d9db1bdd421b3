package filter

import (
	"sort"
	"strings"
	"sync"

	"github.com/home-river/OAK-sub001/internal/errs"
	"github.com/home-river/OAK-sub001/internal/tracker"
)

// PoolKey identifies one (device, label) pool.
type PoolKey struct {
	DeviceID string
	Label    int32
}

// PoolStats reports a single pool's occupancy.
type PoolStats struct {
	Capacity    int
	ActiveCount int
}

// Manager owns one Pool per (device, label) pair, built eagerly for the
// full device x label Cartesian product at construction, and fans each
// frame's detections out to the matching pool by label.
type Manager struct {
	mu    sync.Mutex
	pools map[PoolKey]*Pool
}

// NewManager validates its configuration and eagerly constructs a Pool for
// every (device, label) combination. factory is called once per pool slot
// (poolSize times per pool); trk is shared across every pool since trackers
// are stateless between calls.
func NewManager(deviceIDs []string, labels []int32, poolSize int, factory Factory, trk tracker.Tracker) (*Manager, error) {
	if len(deviceIDs) == 0 {
		return nil, errs.New("filter.NewManager", errs.CodeConfig, "device list must not be empty")
	}
	for _, id := range deviceIDs {
		if strings.TrimSpace(id) == "" {
			return nil, errs.New("filter.NewManager", errs.CodeConfig, "device id must not be blank")
		}
	}
	if len(labels) == 0 {
		return nil, errs.New("filter.NewManager", errs.CodeConfig, "label set must not be empty")
	}
	if poolSize <= 0 {
		return nil, errs.New("filter.NewManager", errs.CodeConfig, "pool size must be positive")
	}

	pools := make(map[PoolKey]*Pool, len(deviceIDs)*len(labels))
	for _, id := range deviceIDs {
		for _, label := range labels {
			p, err := NewPool(poolSize, factory, trk)
			if err != nil {
				return nil, err
			}
			pools[PoolKey{DeviceID: id, Label: label}] = p
		}
	}
	return &Manager{pools: pools}, nil
}

// Process fans one frame's detections (already split into parallel slices)
// out to their per-label pools and recombines the filtered results. Output
// rows are grouped by ascending label rather than preserving the input
// order: each label's detections pass through its own pool as a
// contiguous batch, and the output reflects that grouping.
func (m *Manager) Process(deviceID string, labels []int32, bboxes [][4]float32, confidences []float32, coords [][3]float32) (labelsOut []int32, bboxesOut [][4]float32, confidencesOut []float32, coordsOut [][3]float32, err error) {
	n := len(labels)
	if len(bboxes) != n || len(confidences) != n || len(coords) != n {
		return nil, nil, nil, nil, errs.New("Manager.Process", errs.CodeConfig, "parallel slice length mismatch")
	}
	if n == 0 {
		return []int32{}, [][4]float32{}, []float32{}, [][3]float32{}, nil
	}

	uniqueLabels := uniqueSorted(labels)

	for _, label := range uniqueLabels {
		var idxs []int
		for i, l := range labels {
			if l == label {
				idxs = append(idxs, i)
			}
		}

		subBoxes := make([][4]float32, len(idxs))
		subConf := make([]float32, len(idxs))
		subCoords := make([][3]float32, len(idxs))
		for j, idx := range idxs {
			subBoxes[j] = bboxes[idx]
			subConf[j] = confidences[idx]
			subCoords[j] = coords[idx]
		}

		m.mu.Lock()
		pool, ok := m.pools[PoolKey{DeviceID: deviceID, Label: label}]
		m.mu.Unlock()
		if !ok {
			// No pool was provisioned for this (device, label) pair; skip
			// it rather than fail the whole frame.
			continue
		}

		filtered, stepErr := pool.Step(subCoords, subBoxes)
		if stepErr != nil {
			return nil, nil, nil, nil, stepErr
		}

		for j, idx := range idxs {
			labelsOut = append(labelsOut, label)
			bboxesOut = append(bboxesOut, bboxes[idx])
			confidencesOut = append(confidencesOut, confidences[idx])
			coordsOut = append(coordsOut, filtered[j])
		}
	}

	if labelsOut == nil {
		labelsOut = []int32{}
		bboxesOut = [][4]float32{}
		confidencesOut = []float32{}
		coordsOut = [][3]float32{}
	}
	return labelsOut, bboxesOut, confidencesOut, coordsOut, nil
}

// PoolStats returns a snapshot of every pool's occupancy, keyed by
// (device, label).
func (m *Manager) PoolStats() map[PoolKey]PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[PoolKey]PoolStats, len(m.pools))
	for k, p := range m.pools {
		out[k] = PoolStats{Capacity: p.Capacity(), ActiveCount: p.ActiveCount()}
	}
	return out
}

func uniqueSorted(labels []int32) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
