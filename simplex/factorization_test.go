package simplex

import (
	"bytes"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"q.log/steepest/sparse"
)

func testMatrix() *Matrix {
	return NewMatrix(mat.NewDense(3, 3, []float64{
		2, 1, 0,
		1, 3, 1,
		0, 1, 4,
	}))
}

// denseSolve solves with the basis built from scratch.
func denseSolve(t *testing.T, m *Matrix, pivot []int, b []float64, trans bool) []float64 {
	t.Helper()
	n := len(pivot)
	basis := mat.NewDense(n, n, nil)
	column := make([]float64, n)
	for r, seq := range pivot {
		m.column(column, seq)
		basis.SetCol(r, column)
	}
	var x mat.VecDense
	if trans {
		require.NoError(t, x.SolveVec(basis.T(), mat.NewVecDense(n, b)))
	} else {
		require.NoError(t, x.SolveVec(basis, mat.NewVecDense(n, b)))
	}
	return x.RawVector().Data
}

func TestMatrix_Unpack(t *testing.T) {
	m := testMatrix()
	v := sparse.NewVector(3)

	m.Unpack(v, 0)
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 2.0, v.At(0))
	assert.Equal(t, 1.0, v.At(1))

	m.Unpack(v, 4)
	assert.Equal(t, 1, v.Len())
	assert.Equal(t, -1.0, v.At(1))
}

func TestMatrix_TransposeTimes(t *testing.T) {
	m := testMatrix()
	pi := sparse.NewVector(3)
	pi.Set(0, 1)
	pi.Set(2, -1)
	out := sparse.NewVector(3)

	m.TransposeTimes(-2, pi, out)
	// Aᵀpi = (2, 0, -4)
	assert.Equal(t, -4.0, out.At(0))
	assert.False(t, out.Has(1))
	assert.Equal(t, 8.0, out.At(2))

	subset := make([]float64, 2)
	m.SubsetTransposeTimes(pi, []int{2, 0}, subset)
	assert.Equal(t, []float64{-4, 2}, subset)
}

func TestFactorization_SolvesMatchDense(t *testing.T) {
	m := testMatrix()
	f := NewFactorization(m, nil)
	pivot := []int{3, 4, 5}
	require.NoError(t, f.Factorize(pivot))
	assert.Zero(t, f.NumberElements(), "slack basis has no fill")

	require.NoError(t, f.Replace(1, 1))
	pivot[1] = 1
	require.NoError(t, f.Replace(0, 0))
	pivot[0] = 0
	assert.Equal(t, 2, f.Pivots())
	assert.Positive(t, f.NumberElements())

	b := []float64{1, -2, 3}
	for _, trans := range []bool{false, true} {
		v := sparse.NewVector(3)
		for i, value := range b {
			v.Set(i, value)
		}
		if trans {
			f.UpdateColumnTranspose(v)
		} else {
			f.UpdateColumn(v)
		}
		want := denseSolve(t, m, pivot, b, trans)
		for i := range want {
			assert.InDelta(t, want[i], v.At(i), 1e-12, "trans %v row %d", trans, i)
		}
	}
	got := f.Solve(b)
	want := denseSolve(t, m, pivot, b, false)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}

	require.NoError(t, f.Factorize(pivot))
	assert.Zero(t, f.Pivots())
}

func TestFactorization_SingularReplaceLeavesFactorsAlone(t *testing.T) {
	m := testMatrix()
	f := NewFactorization(m, nil)
	require.NoError(t, f.Factorize([]int{3, 4, 5}))

	// two copies of -e_1
	err := f.Replace(0, 4)
	require.ErrorIs(t, err, ErrSingularBasis)
	assert.Zero(t, f.Pivots())

	v := sparse.NewVector(3)
	v.Set(0, 2)
	f.UpdateColumn(v)
	assert.Equal(t, -2.0, v.At(0))
}

func TestFactorization_SingularFactorize(t *testing.T) {
	f := NewFactorization(testMatrix(), nil)
	err := f.Factorize([]int{4, 4, 5})
	assert.ErrorIs(t, err, ErrSingularBasis)
}

func TestFactorization_SolveErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactorization(testMatrix(), log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel}))

	f.checkSolve(nil)
	assert.Zero(t, buf.Len())

	f.checkSolve(mat.Condition(1e17))
	assert.Contains(t, buf.String(), "ill-conditioned basis solve")
	assert.Contains(t, buf.String(), "condition=")

	buf.Reset()
	f.checkSolve(errors.New("bad lu"))
	assert.Contains(t, buf.String(), "basis solve failed")
	assert.Contains(t, buf.String(), "bad lu")
}
