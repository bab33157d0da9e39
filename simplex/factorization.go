package simplex

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	"q.log/steepest/sparse"
)

// maxCondition is the largest basis condition number accepted.
const maxCondition = 1.0e12

// Factorization is a dense LU of the basis matrix, updated in place by
// rank-one column replacements between refactorizations.
type Factorization struct {
	matrix *Matrix
	logger *log.Logger
	n      int
	basis  *mat.Dense
	lu     *mat.LU
	spare  *mat.LU

	pivots   int
	elements int
	counted  bool

	rhs    *mat.VecDense
	x      *mat.VecDense
	values []float64
	column []float64
}

// NewFactorization returns an empty factorization of bases of matrix. A nil
// logger discards.
func NewFactorization(matrix *Matrix, logger *log.Logger) *Factorization {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	n, _ := matrix.Dims()
	// RankOne keeps the ok flag of its receiver, so the spare starts out
	// holding a successful factorization
	identity := mat.NewDiagDense(n, nil)
	for i := range n {
		identity.SetDiag(i, 1)
	}
	spare := &mat.LU{}
	spare.Factorize(identity)
	return &Factorization{
		matrix: matrix,
		logger: logger,
		n:      n,
		basis:  mat.NewDense(n, n, nil),
		lu:     &mat.LU{},
		spare:  spare,
		rhs:    mat.NewVecDense(n, nil),
		x:      mat.NewVecDense(n, nil),
		values: make([]float64, n),
		column: make([]float64, n),
	}
}

// Factorize builds the basis from pivotVariables (one sequence per row) and
// factorizes it.
func (f *Factorization) Factorize(pivotVariables []int) error {
	for r, seq := range pivotVariables {
		f.matrix.column(f.column, seq)
		f.basis.SetCol(r, f.column)
	}
	f.lu.Factorize(f.basis)
	f.pivots = 0
	f.counted = false
	if cond := f.lu.Cond(); math.IsInf(cond, 1) || cond > maxCondition {
		return fmt.Errorf("%w: condition %g", ErrSingularBasis, cond)
	}
	return nil
}

// Replace puts the column of seq in basis position r. On error the
// factorization is unchanged.
func (f *Factorization) Replace(r, seq int) error {
	f.matrix.column(f.column, seq)
	for i := range f.n {
		f.values[i] = f.column[i] - f.basis.At(i, r)
	}
	e := mat.NewVecDense(f.n, nil)
	e.SetVec(r, 1)
	f.spare.RankOne(f.lu, 1, mat.NewVecDense(f.n, f.values), e)
	if cond := f.spare.Cond(); math.IsNaN(cond) || math.IsInf(cond, 1) || cond > maxCondition {
		return fmt.Errorf("%w: replacing row %d gives condition %g", ErrSingularBasis, r, cond)
	}
	f.lu, f.spare = f.spare, f.lu
	f.basis.SetCol(r, f.column)
	f.pivots++
	f.counted = false
	return nil
}

func (f *Factorization) solve(v *sparse.Vector, trans bool) {
	for i := range f.n {
		f.rhs.SetVec(i, v.At(i))
	}
	f.checkSolve(f.lu.SolveVecTo(f.x, trans, f.rhs))
	for i := range f.n {
		f.values[i] = f.x.AtVec(i)
	}
	v.Scatter(f.values)
}

func (f *Factorization) UpdateColumn(v *sparse.Vector)          { f.solve(v, false) }
func (f *Factorization) UpdateColumnTranspose(v *sparse.Vector) { f.solve(v, true) }

// Solve returns B⁻¹b for a dense right-hand side.
func (f *Factorization) Solve(b []float64) []float64 {
	var x mat.VecDense
	f.checkSolve(f.lu.SolveVecTo(&x, false, mat.NewVecDense(f.n, append([]float64(nil), b...))))
	return x.RawVector().Data
}

// checkSolve logs a solve error. A mat.Condition error still comes with a
// solution; Factorize and Replace keep the condition far below where gonum
// reports it.
func (f *Factorization) checkSolve(err error) {
	if err == nil {
		return
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		f.logger.Debug("ill-conditioned basis solve", "condition", float64(cond), "pivots", f.pivots)
		return
	}
	f.logger.Warn("basis solve failed", "err", err)
}

// NumberElements counts the off-diagonal nonzeros of L and U.
func (f *Factorization) NumberElements() int {
	if f.counted {
		return f.elements
	}
	var l, u mat.TriDense
	f.lu.LTo(&l)
	f.lu.UTo(&u)
	number := 0
	for i := range f.n {
		for j := range f.n {
			if i == j {
				continue
			}
			if math.Abs(l.At(i, j)) > sparse.Tiny || math.Abs(u.At(i, j)) > sparse.Tiny {
				number++
			}
		}
	}
	f.elements = number
	f.counted = true
	return number
}

func (f *Factorization) Pivots() int { return f.pivots }

// Condition is the condition number estimate of the current factors.
func (f *Factorization) Condition() float64 { return f.lu.Cond() }
