package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"q.log/steepest/sparse"
)

const testTolerance = 1.0e-7

// fakeFactorization factorizes the dense basis with gonum on every change.
type fakeFactorization struct {
	lu       mat.LU
	n        int
	elements int
	pivots   int
}

func (f *fakeFactorization) solve(v *sparse.Vector, trans bool) {
	b := mat.NewVecDense(f.n, nil)
	for _, i := range v.Indices() {
		b.SetVec(i, v.At(i))
	}
	var x mat.VecDense
	if err := f.lu.SolveVecTo(&x, trans, b); err != nil {
		panic(err)
	}
	values := make([]float64, f.n)
	for i := range values {
		values[i] = x.AtVec(i)
	}
	v.Scatter(values)
}

func (f *fakeFactorization) UpdateColumn(v *sparse.Vector)          { f.solve(v, false) }
func (f *fakeFactorization) UpdateColumnTranspose(v *sparse.Vector) { f.solve(v, true) }
func (f *fakeFactorization) NumberElements() int                    { return f.elements }
func (f *fakeFactorization) Pivots() int                            { return f.pivots }

type fakeMatrix struct {
	a *mat.Dense
}

func (m *fakeMatrix) TransposeTimes(scalar float64, pi *sparse.Vector, out *sparse.Vector) {
	out.Clear()
	_, cols := m.a.Dims()
	for j := range cols {
		sum := 0.0
		for _, i := range pi.Indices() {
			sum += pi.At(i) * m.a.At(i, j)
		}
		if math.Abs(sum) > sparse.Tiny {
			out.Set(j, scalar*sum)
		}
	}
}

func (m *fakeMatrix) SubsetTransposeTimes(pi *sparse.Vector, subset []int, out []float64) {
	for k, j := range subset {
		sum := 0.0
		for _, i := range pi.Indices() {
			sum += pi.At(i) * m.a.At(i, j)
		}
		out[k] = sum
	}
}

func (m *fakeMatrix) Unpack(v *sparse.Vector, seq int) {
	v.Clear()
	rows, cols := m.a.Dims()
	if seq >= cols {
		v.Set(seq-cols, -1)
		return
	}
	for i := range rows {
		v.Set(i, m.a.At(i, seq))
	}
}

// fakeModel is a tiny simplex state: a dense matrix, a basis and the
// reduced costs that go with it. Primal values are not tracked.
type fakeModel struct {
	rows, cols int
	cost       []float64
	matrix     *fakeMatrix
	factor     *fakeFactorization
	status     []Status
	flagged    map[int]bool
	dj         []float64
	pivot      []int
	it         Iteration
}

// newFakeModel starts from the slack basis with every structural at its
// lower bound.
func newFakeModel(t *testing.T, a [][]float64, cost []float64) *fakeModel {
	t.Helper()
	rows, cols := len(a), len(a[0])
	dense := mat.NewDense(rows, cols, nil)
	for i, row := range a {
		require.Len(t, row, cols)
		dense.SetRow(i, row)
	}
	m := &fakeModel{
		rows:    rows,
		cols:    cols,
		cost:    append(cost, make([]float64, rows)...),
		matrix:  &fakeMatrix{a: dense},
		factor:  &fakeFactorization{n: rows},
		status:  make([]Status, cols+rows),
		flagged: map[int]bool{},
		dj:      make([]float64, cols+rows),
		pivot:   make([]int, rows),
		it: Iteration{
			PivotRow:      -1,
			SequenceIn:    -1,
			SequenceOut:   -1,
			DualTolerance: testTolerance,
		},
	}
	for j := range cols {
		m.status[j] = AtLowerBound
	}
	for i := range rows {
		m.pivot[i] = cols + i
		m.status[cols+i] = Basic
	}
	m.refactor()
	m.computeDuals()
	return m
}

func (m *fakeModel) NumberRows() int              { return m.rows }
func (m *fakeModel) NumberColumns() int           { return m.cols }
func (m *fakeModel) Status(seq int) Status        { return m.status[seq] }
func (m *fakeModel) Flagged(seq int) bool         { return m.flagged[seq] }
func (m *fakeModel) ReducedCosts() []float64      { return m.dj }
func (m *fakeModel) PivotVariables() []int        { return m.pivot }
func (m *fakeModel) Factorization() Factorization { return m.factor }
func (m *fakeModel) Matrix() Matrix               { return m.matrix }
func (m *fakeModel) Iteration() Iteration         { return m.it }
func (m *fakeModel) SetSequenceOut(seq int)       { m.it.SequenceOut = seq }

func (m *fakeModel) refactor() {
	basis := mat.NewDense(m.rows, m.rows, nil)
	column := sparse.NewVector(m.rows)
	for r, seq := range m.pivot {
		m.matrix.Unpack(column, seq)
		for _, i := range column.Indices() {
			basis.Set(i, r, column.At(i))
		}
	}
	m.factor.lu.Factorize(basis)
}

// computeDuals sets the reduced costs from scratch for the current basis.
func (m *fakeModel) computeDuals() {
	y := sparse.NewVector(m.rows)
	for r, seq := range m.pivot {
		y.Set(r, m.cost[seq])
	}
	m.factor.UpdateColumnTranspose(y)
	column := sparse.NewVector(m.rows)
	for seq := range m.cols + m.rows {
		m.matrix.Unpack(column, seq)
		value := m.cost[seq]
		for _, i := range column.Indices() {
			value -= y.At(i) * column.At(i)
		}
		m.dj[seq] = value
	}
}

// ftran returns B⁻¹a for sequence seq.
func (m *fakeModel) ftran(seq int) *sparse.Vector {
	column := sparse.NewVector(m.rows)
	m.matrix.Unpack(column, seq)
	m.factor.UpdateColumn(column)
	return column
}

// steepestNorm is 1+‖B⁻¹a‖² for sequence seq.
func (m *fakeModel) steepestNorm(seq int) float64 {
	return addOne + m.ftran(seq).Norm2()
}

// pivotOn brings q into the basis at the row with the largest entry of its
// column and tells p about it the way a driver does. It returns the pivot
// row.
func (m *fakeModel) pivotOn(p Pricer, q int) int {
	column := m.ftran(q)
	r := -1
	for _, i := range column.Indices() {
		if r < 0 || math.Abs(column.At(i)) > math.Abs(column.At(r)) {
			r = i
		}
	}
	out := m.pivot[r]
	m.it.DualIn = m.dj[q]
	m.it.PivotRow = r
	m.it.SequenceIn = q
	m.it.SequenceOut = out
	m.it.Alpha = column.At(r)
	m.it.Number++
	p.UpdateWeights(column)

	m.pivot[r] = q
	m.status[q] = Basic
	m.status[out] = AtLowerBound
	m.refactor()
	m.factor.pivots++
	return r
}

func newTestEngine(t *testing.T, algorithm string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Algorithm = algorithm
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// threeByFour is a small well conditioned problem with every structural
// attractive at the slack basis.
func threeByFour(t *testing.T) *fakeModel {
	return newFakeModel(t,
		[][]float64{
			{2, 1, 0, 1},
			{1, 3, 1, 0},
			{0, 1, 4, 2},
		},
		[]float64{-1, -2, -1, -3},
	)
}
