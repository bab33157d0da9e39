// Package sparse provides the indexed vector used for reduced-cost
// infeasibilities and for the work vectors of basis solves.
//
// A Vector keeps a dense value array next to a packed list of the indices
// that are currently nonzero, plus a position table so that membership,
// insertion and removal are all O(1). Iteration over Indices visits only
// the stored entries; the order is not meaningful.
package sparse

import "math"

// Tiny is the magnitude below which Scatter drops values.
const Tiny = 1.0e-14

type Vector struct {
	dense []float64
	index []int
	// where[i] is the position of i in index plus one, 0 when absent
	where []int
}

func NewVector(size int) *Vector {
	return &Vector{
		dense: make([]float64, size),
		index: make([]int, 0, size),
		where: make([]int, size),
	}
}

// Size is the capacity of the vector, i.e. one past the largest index it
// can hold.
func (v *Vector) Size() int {
	return len(v.dense)
}

// Len is the number of stored entries.
func (v *Vector) Len() int {
	return len(v.index)
}

// Indices returns the stored indices. The slice is owned by the vector and
// is invalidated by any mutation.
func (v *Vector) Indices() []int {
	return v.index
}

// Dense returns the dense value array. Callers must not write to it.
func (v *Vector) Dense() []float64 {
	return v.dense
}

func (v *Vector) At(i int) float64 {
	return v.dense[i]
}

func (v *Vector) Has(i int) bool {
	return v.where[i] != 0
}

// Insert stores value at i. A zero value removes the entry.
func (v *Vector) Insert(i int, value float64) {
	v.Set(i, value)
}

// Set stores value at i whether or not i is present. A zero value removes
// the entry.
func (v *Vector) Set(i int, value float64) {
	if value == 0 {
		v.Zero(i)
		return
	}
	if v.where[i] == 0 {
		v.index = append(v.index, i)
		v.where[i] = len(v.index)
	}
	v.dense[i] = value
}

// Add accumulates value into entry i, dropping the entry if the sum
// vanishes.
func (v *Vector) Add(i int, value float64) {
	v.Set(i, v.dense[i]+value)
}

// Zero removes entry i.
func (v *Vector) Zero(i int) {
	pos := v.where[i]
	if pos == 0 {
		return
	}
	last := len(v.index) - 1
	moved := v.index[last]
	v.index[pos-1] = moved
	v.where[moved] = pos
	v.index = v.index[:last]
	v.where[i] = 0
	v.dense[i] = 0
}

// Clear removes every entry, touching only the stored indices.
func (v *Vector) Clear() {
	for _, i := range v.index {
		v.dense[i] = 0
		v.where[i] = 0
	}
	v.index = v.index[:0]
}

// Scatter replaces the contents with the entries of values whose magnitude
// exceeds Tiny.
func (v *Vector) Scatter(values []float64) {
	v.Clear()
	for i, value := range values {
		if math.Abs(value) > Tiny {
			v.Set(i, value)
		}
	}
}

// Gather writes the vector densely into dst, which must have length Size.
func (v *Vector) Gather(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for _, i := range v.index {
		dst[i] = v.dense[i]
	}
}

// CopyFrom makes v an exact copy of src. Both vectors must have the same
// size.
func (v *Vector) CopyFrom(src *Vector) {
	if src.Size() != v.Size() {
		panic("sparse: size mismatch")
	}
	v.Clear()
	for _, i := range src.index {
		v.Set(i, src.dense[i])
	}
}

// Scale multiplies every stored entry by alpha.
func (v *Vector) Scale(alpha float64) {
	if alpha == 0 {
		v.Clear()
		return
	}
	for _, i := range v.index {
		v.dense[i] *= alpha
	}
}

// Norm2 returns the sum of squares of the stored entries.
func (v *Vector) Norm2() float64 {
	sum := 0.0
	for _, i := range v.index {
		sum += v.dense[i] * v.dense[i]
	}
	return sum
}
