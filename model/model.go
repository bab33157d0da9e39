package model

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrDimension = errors.New("model: dimension mismatch")
	ErrIndex     = errors.New("model: index out of range")
	ErrBounds    = errors.New("model: invalid bounds")
)

// Sense of the objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// Model is a linear program
//
//	min (or max) cᵀx  s.t.  rowLower <= Ax <= rowUpper,  colLower <= x <= colUpper
//
// Missing bounds are ±Inf. Equality rows have equal bounds.
type Model struct {
	Name  string
	Sense Sense

	//C objective function coefficients, 1×NumCols
	C *mat.Dense
	// Offset is the constant term of the objective.
	Offset float64

	//A constraints matrix
	A *mat.Dense

	ColLower []float64
	ColUpper []float64
	RowLower []float64
	RowUpper []float64

	NumRows int
	NumCols int
}

// NewModel returns a model with zero costs and coefficients, columns in
// [0, +Inf) and free rows. Both dimensions must be positive.
func NewModel(numRows, numCols int) *Model {
	m := &Model{
		C:        mat.NewDense(1, numCols, nil),
		A:        mat.NewDense(numRows, numCols, nil),
		ColLower: make([]float64, numCols),
		ColUpper: make([]float64, numCols),
		RowLower: make([]float64, numRows),
		RowUpper: make([]float64, numRows),
		NumRows:  numRows,
		NumCols:  numCols,
	}
	for c := range numCols {
		m.ColUpper[c] = math.Inf(1)
	}
	for r := range numRows {
		m.RowLower[r] = math.Inf(-1)
		m.RowUpper[r] = math.Inf(1)
	}
	return m
}

func (m *Model) SetC(cVec []float64) error {
	if len(cVec) != m.NumCols {
		return fmt.Errorf("%w: %d costs for %d columns", ErrDimension, len(cVec), m.NumCols)
	}
	m.C = mat.NewDense(1, m.NumCols, append([]float64(nil), cVec...))
	return nil
}

// SetA sets the constraint matrix from row-major data.
func (m *Model) SetA(aVec []float64) error {
	if len(aVec) != m.NumCols*m.NumRows {
		return fmt.Errorf("%w: %d coefficients for a %d×%d matrix", ErrDimension, len(aVec), m.NumRows, m.NumCols)
	}
	m.A = mat.NewDense(m.NumRows, m.NumCols, append([]float64(nil), aVec...))
	return nil
}

func (m *Model) SetColBounds(c int, lower, upper float64) error {
	if c < 0 || c >= m.NumCols {
		return fmt.Errorf("%w: column %d", ErrIndex, c)
	}
	m.ColLower[c] = lower
	m.ColUpper[c] = upper
	return nil
}

func (m *Model) SetRowBounds(r int, lower, upper float64) error {
	if r < 0 || r >= m.NumRows {
		return fmt.Errorf("%w: row %d", ErrIndex, r)
	}
	m.RowLower[r] = lower
	m.RowUpper[r] = upper
	return nil
}

func (m *Model) AddCol(cVec []float64, coef, lower, upper float64) error {
	if len(cVec) != m.NumRows {
		return fmt.Errorf("%w: column of length %d for %d rows", ErrDimension, len(cVec), m.NumRows)
	}

	m.A = mat.DenseCopyOf(m.A.Grow(0, 1))
	m.A.SetCol(m.NumCols, cVec)

	m.C = mat.DenseCopyOf(m.C.Grow(0, 1))
	m.C.Set(0, m.NumCols, coef)

	m.ColLower = append(m.ColLower, lower)
	m.ColUpper = append(m.ColUpper, upper)
	m.NumCols++
	return nil
}

func (m *Model) RemoveRow(r int) error {
	if r < 0 || r >= m.NumRows {
		return fmt.Errorf("%w: row %d", ErrIndex, r)
	}
	if m.NumRows == 1 {
		return fmt.Errorf("%w: cannot remove the last row", ErrDimension)
	}

	auxA := mat.NewDense(m.NumRows-1, m.NumCols, nil)
	to := 0
	for row := range m.NumRows {
		if row == r {
			continue
		}
		auxA.SetRow(to, m.A.RawRowView(row))
		to++
	}

	m.A = auxA
	m.RowLower = append(m.RowLower[:r], m.RowLower[r+1:]...)
	m.RowUpper = append(m.RowUpper[:r], m.RowUpper[r+1:]...)
	m.NumRows--
	return nil
}

// DropFreeRows removes rows with no finite bound, keeping at least one row,
// and returns how many were removed.
func (m *Model) DropFreeRows() int {
	dropped := 0
	for r := m.NumRows - 1; r >= 0 && m.NumRows > 1; r-- {
		if math.IsInf(m.RowLower[r], -1) && math.IsInf(m.RowUpper[r], 1) {
			if err := m.RemoveRow(r); err != nil {
				break
			}
			dropped++
		}
	}
	return dropped
}

// Clone returns a deep copy of m.
func (m *Model) Clone() *Model {
	return &Model{
		Name:     m.Name,
		Sense:    m.Sense,
		C:        mat.DenseCopyOf(m.C),
		Offset:   m.Offset,
		A:        mat.DenseCopyOf(m.A),
		ColLower: append([]float64(nil), m.ColLower...),
		ColUpper: append([]float64(nil), m.ColUpper...),
		RowLower: append([]float64(nil), m.RowLower...),
		RowUpper: append([]float64(nil), m.RowUpper...),
		NumRows:  m.NumRows,
		NumCols:  m.NumCols,
	}
}

// Validate checks dimensions and bounds.
func (m *Model) Validate() error {
	if r, c := m.A.Dims(); r != m.NumRows || c != m.NumCols {
		return fmt.Errorf("%w: A is %d×%d, model is %d×%d", ErrDimension, r, c, m.NumRows, m.NumCols)
	}
	if _, c := m.C.Dims(); c != m.NumCols {
		return fmt.Errorf("%w: %d costs for %d columns", ErrDimension, c, m.NumCols)
	}
	if len(m.ColLower) != m.NumCols || len(m.ColUpper) != m.NumCols ||
		len(m.RowLower) != m.NumRows || len(m.RowUpper) != m.NumRows {
		return fmt.Errorf("%w: bound arrays", ErrDimension)
	}
	for c := range m.NumCols {
		if err := checkBounds(m.ColLower[c], m.ColUpper[c]); err != nil {
			return fmt.Errorf("column %d: %w", c, err)
		}
		if v := m.C.At(0, c); math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("column %d: %w: cost %g", c, ErrBounds, v)
		}
	}
	for r := range m.NumRows {
		if err := checkBounds(m.RowLower[r], m.RowUpper[r]); err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
	}
	if math.IsNaN(m.Offset) || math.IsInf(m.Offset, 0) {
		return fmt.Errorf("%w: objective offset %g", ErrBounds, m.Offset)
	}
	return nil
}

func checkBounds(lower, upper float64) error {
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper ||
		math.IsInf(lower, 1) || math.IsInf(upper, -1) {
		return fmt.Errorf("%w: [%g, %g]", ErrBounds, lower, upper)
	}
	return nil
}

// Objective returns cᵀx plus the offset.
func (m *Model) Objective(x []float64) float64 {
	z := m.Offset
	for c := range m.NumCols {
		z += x[c] * m.C.At(0, c)
	}
	return z
}

// RowActivity returns Ax.
func (m *Model) RowActivity(x []float64) []float64 {
	var ax mat.VecDense
	ax.MulVec(m.A, mat.NewVecDense(m.NumCols, append([]float64(nil), x...)))
	return ax.RawVector().Data
}

// Format writes the model in matrix form.
func (m *Model) Format(w io.Writer) {
	if m.Name != "" {
		fmt.Fprintf(w, "%s\n", m.Name)
	}
	fmt.Fprintf(w, "%s, %d rows, %d columns\n", m.Sense, m.NumRows, m.NumCols)
	fmt.Fprintf(w, "c = %v\n", mat.Formatted(m.C, mat.Prefix("    "), mat.Squeeze()))
	if m.Offset != 0 {
		fmt.Fprintf(w, "offset = %g\n", m.Offset)
	}
	fmt.Fprintf(w, "A = %v\n", mat.Formatted(m.A, mat.Prefix("    "), mat.Squeeze()))
	fmt.Fprintf(w, "col lower = %v\n", m.ColLower)
	fmt.Fprintf(w, "col upper = %v\n", m.ColUpper)
	fmt.Fprintf(w, "row lower = %v\n", m.RowLower)
	fmt.Fprintf(w, "row upper = %v\n", m.RowUpper)
}
