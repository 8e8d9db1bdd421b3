package queue

import "sync"

// MatrixPool hands out scratch [][]float32 rows for the tracker's IoU
// matrix, avoiding a fresh allocation on every Match call. Buckets are
// sized in powers of 2 up to 256 the same way the original byte-buffer pool
// bucketed by size, trading a little slack for a fixed, small bucket set.
//
// Rows beyond the largest bucket are allocated directly and not pooled.
const (
	rows16  = 16
	rows32  = 32
	rows64  = 64
	rows256 = 256
)

var matrixPool = struct {
	p16  sync.Pool
	p32  sync.Pool
	p64  sync.Pool
	p256 sync.Pool
}{
	p16:  sync.Pool{New: func() any { return newMatrix(rows16) }},
	p32:  sync.Pool{New: func() any { return newMatrix(rows32) }},
	p64:  sync.Pool{New: func() any { return newMatrix(rows64) }},
	p256: sync.Pool{New: func() any { return newMatrix(rows256) }},
}

func newMatrix(n int) *[][]float32 {
	m := make([][]float32, n)
	for i := range m {
		m[i] = make([]float32, n)
	}
	return &m
}

// GetMatrix returns a pooled n x n float32 matrix, rows and columns
// cleared to zero. Caller must call PutMatrix when done.
func GetMatrix(n int) [][]float32 {
	var m *[][]float32
	var bucket int
	switch {
	case n <= rows16:
		m, bucket = matrixPool.p16.Get().(*[][]float32), rows16
	case n <= rows32:
		m, bucket = matrixPool.p32.Get().(*[][]float32), rows32
	case n <= rows64:
		m, bucket = matrixPool.p64.Get().(*[][]float32), rows64
	case n <= rows256:
		m, bucket = matrixPool.p256.Get().(*[][]float32), rows256
	default:
		return newZeroMatrix(n)
	}
	out := (*m)[:n]
	for i := 0; i < n; i++ {
		row := out[i][:bucket]
		for j := range row {
			row[j] = 0
		}
		out[i] = row[:n]
	}
	return out
}

// PutMatrix returns a matrix obtained from GetMatrix to its pool. Matrices
// whose capacity does not match a known bucket size are dropped.
func PutMatrix(m [][]float32) {
	if len(m) == 0 {
		return
	}
	c := cap(m[0])
	full := m[:cap(m)]
	switch c {
	case rows16:
		matrixPool.p16.Put(&full)
	case rows32:
		matrixPool.p32.Put(&full)
	case rows64:
		matrixPool.p64.Put(&full)
	case rows256:
		matrixPool.p256.Put(&full)
	}
}

func newZeroMatrix(n int) [][]float32 {
	m := make([][]float32, n)
	for i := range m {
		m[i] = make([]float32, n)
	}
	return m
}
