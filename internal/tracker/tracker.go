// Package tracker matches the previous frame's active filter slots against
// the current frame's detections by intersection-over-union, so a
// SpatialFilter keeps receiving the same physical object's measurements
// frame over frame instead of a new one each time.
package tracker

import (
	"math"

	"github.com/home-river/OAK-sub001/internal/errs"
	"github.com/home-river/OAK-sub001/internal/queue"
)

// Tracker matches previous bounding boxes against current ones by IoU.
// Match returns a map from previous-index to current-index for every pair
// it accepted, plus the full IoU matrix it computed (rows = prev, cols =
// curr) for callers that want to inspect match quality.
type Tracker interface {
	Match(prevBoxes, currBoxes [][4]float32) (matches map[int]int, iou [][]float32)
	Threshold() float32
}

const iouEpsilon = 1e-6

// BatchIoU computes the full prev x curr IoU matrix. The working matrix is
// borrowed from a pool sized to the scene's larger dimension, so the hot
// per-frame path doesn't allocate a fresh matrix every call; the returned
// matrix is a plain copy sized exactly len(prev) x len(curr) so callers can
// retain it beyond the call without pinning pooled memory.
func BatchIoU(prev, curr [][4]float32) [][]float32 {
	scratch := queue.GetMatrix(max(len(prev), len(curr)))
	defer queue.PutMatrix(scratch)

	for i, p := range prev {
		for j, c := range curr {
			scratch[i][j] = iou(p, c)
		}
	}

	out := make([][]float32, len(prev))
	for i := range out {
		out[i] = make([]float32, len(curr))
		copy(out[i], scratch[i][:len(curr)])
	}
	return out
}

func iou(a, b [4]float32) float32 {
	xMin := max32(a[0], b[0])
	yMin := max32(a[1], b[1])
	xMax := min32(a[2], b[2])
	yMax := min32(a[3], b[3])

	interW := max32(0, xMax-xMin)
	interH := max32(0, yMax-yMin)
	inter := interW * interH

	areaA := max32(0, a[2]-a[0]) * max32(0, a[3]-a[1])
	areaB := max32(0, b[2]-b[0]) * max32(0, b[3]-b[1])
	union := areaA + areaB - inter

	return inter / (union + iouEpsilon)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Greedy assigns the highest-IoU pairs first, never reusing a prev or curr
// index once matched. It is the substrate's default tracker: cheap,
// deterministic for a fixed input order, and good enough when frame-to-
// frame motion is small relative to box size.
type Greedy struct {
	threshold float32
}

// NewGreedy creates a Greedy tracker. threshold is the minimum IoU for a
// pair to be accepted.
func NewGreedy(threshold float32) *Greedy {
	return &Greedy{threshold: threshold}
}

func (g *Greedy) Threshold() float32 { return g.threshold }

type pairCandidate struct {
	iou  float32
	prev int
	curr int
}

func (g *Greedy) Match(prevBoxes, currBoxes [][4]float32) (map[int]int, [][]float32) {
	iouMatrix := BatchIoU(prevBoxes, currBoxes)

	candidates := make([]pairCandidate, 0, len(prevBoxes)*len(currBoxes))
	for i := range prevBoxes {
		for j := range currBoxes {
			if iouMatrix[i][j] >= g.threshold {
				candidates = append(candidates, pairCandidate{iou: iouMatrix[i][j], prev: i, curr: j})
			}
		}
	}
	sortCandidatesDescending(candidates)

	matches := make(map[int]int)
	usedPrev := make(map[int]bool)
	usedCurr := make(map[int]bool)
	for _, c := range candidates {
		if usedPrev[c.prev] || usedCurr[c.curr] {
			continue
		}
		matches[c.prev] = c.curr
		usedPrev[c.prev] = true
		usedCurr[c.curr] = true
	}
	return matches, iouMatrix
}

func sortCandidatesDescending(c []pairCandidate) {
	// Insertion sort is fine here: candidate lists are bounded by the pool
	// size per device/label, never by total scene detections.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].iou > c[j-1].iou; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Hungarian solves the assignment problem optimally via the Kuhn-Munkres
// algorithm on a cost matrix of (1 - IoU), then discards any assignment
// below threshold. No ecosystem linear-assignment library exists in this
// module's dependency set, so this is hand-rolled on the standard library;
// see the module's design notes for why.
type Hungarian struct {
	threshold float32
}

// NewHungarian creates a Hungarian tracker.
func NewHungarian(threshold float32) *Hungarian {
	return &Hungarian{threshold: threshold}
}

func (h *Hungarian) Threshold() float32 { return h.threshold }

func (h *Hungarian) Match(prevBoxes, currBoxes [][4]float32) (map[int]int, [][]float32) {
	iouMatrix := BatchIoU(prevBoxes, currBoxes)
	n := len(prevBoxes)
	m := len(currBoxes)
	if n == 0 || m == 0 {
		return map[int]int{}, iouMatrix
	}

	size := max(n, m)
	const padCost = 1e6 // larger than any real (1 - IoU) cost, so padding is never preferred
	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
		for j := range cost[i] {
			if i < n && j < m {
				cost[i][j] = 1.0 - float64(iouMatrix[i][j])
			} else {
				cost[i][j] = padCost
			}
		}
	}

	assignment := solveAssignment(cost)

	matches := make(map[int]int)
	for i := 0; i < n; i++ {
		j := assignment[i]
		if j < 0 || j >= m {
			continue
		}
		if iouMatrix[i][j] >= h.threshold {
			matches[i] = j
		}
	}
	return matches, iouMatrix
}

// solveAssignment runs the O(n^3) Hungarian algorithm (shortest augmenting
// path formulation) on a square cost matrix and returns, for each row, the
// assigned column.
func solveAssignment(cost [][]float64) []int {
	n := len(cost)
	const inf = math.MaxFloat64

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row currently assigned to column j (1-indexed), 0 = none
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			result[p[j]-1] = j - 1
		}
	}
	return result
}

// New constructs a Tracker by method name ("greedy" or "hungarian").
func New(method string, threshold float32) (Tracker, error) {
	switch method {
	case "", "greedy":
		return NewGreedy(threshold), nil
	case "hungarian":
		return NewHungarian(threshold), nil
	default:
		return nil, errs.New("tracker.New", errs.CodeConfig, "unknown tracker method: "+method)
	}
}
