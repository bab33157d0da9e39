package simplex

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"q.log/steepest/sparse"
)

// Matrix is the structural part [A | artificials] of the working problem.
// Row variables are implicit with column -e_i.
type Matrix struct {
	a          *mat.Dense
	rows, cols int
}

func NewMatrix(a *mat.Dense) *Matrix {
	rows, cols := a.Dims()
	return &Matrix{a: a, rows: rows, cols: cols}
}

func (m *Matrix) Dims() (rows, cols int) { return m.rows, m.cols }

func (m *Matrix) TransposeTimes(scalar float64, pi *sparse.Vector, out *sparse.Vector) {
	out.Clear()
	index := pi.Indices()
	for j := range m.cols {
		sum := 0.0
		for _, i := range index {
			sum += pi.At(i) * m.a.At(i, j)
		}
		if math.Abs(sum) > sparse.Tiny {
			out.Set(j, scalar*sum)
		}
	}
}

func (m *Matrix) SubsetTransposeTimes(pi *sparse.Vector, subset []int, out []float64) {
	index := pi.Indices()
	for k, j := range subset {
		sum := 0.0
		for _, i := range index {
			sum += pi.At(i) * m.a.At(i, j)
		}
		out[k] = sum
	}
}

func (m *Matrix) Unpack(v *sparse.Vector, seq int) {
	v.Clear()
	if seq >= m.cols {
		v.Set(seq-m.cols, -1)
		return
	}
	for i := range m.rows {
		if value := m.a.At(i, seq); value != 0 {
			v.Set(i, value)
		}
	}
}

// column writes the dense constraint column of seq into dst.
func (m *Matrix) column(dst []float64, seq int) {
	clear(dst)
	if seq >= m.cols {
		dst[seq-m.cols] = -1
		return
	}
	mat.Col(dst, seq, m.a)
}

// activity adds value times the column of seq to dst.
func (m *Matrix) activity(dst []float64, seq int, value float64) {
	if value == 0 {
		return
	}
	if seq >= m.cols {
		dst[seq-m.cols] -= value
		return
	}
	for i := range m.rows {
		dst[i] += value * m.a.At(i, seq)
	}
}
