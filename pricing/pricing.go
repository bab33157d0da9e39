// Package pricing chooses the entering variable of a primal simplex
// iteration.
//
// Variables are numbered columns first, then rows: sequence j < NumberColumns
// is structural column j, sequence NumberColumns+i is the activity of row i,
// whose constraint column is -e_i. Reduced costs are stored the same way.
//
// The Engine keeps a sparse set of squared dual infeasibilities patched every
// iteration from one row of the updated tableau, and maintains Devex or
// projected steepest-edge weights through the rank-one recurrence tied to the
// last pivot. The Dantzig pricer is the plain largest-reduced-cost rule.
package pricing

import (
	"errors"

	"q.log/steepest/sparse"
)

var (
	// ErrNotInitialized is the panic value when pricing is requested
	// before SaveWeights has created the weights.
	ErrNotInitialized = errors.New("pricing: weights not initialized")
	// ErrNoPendingPivot is the panic value when a weight-only update is
	// requested with no pivot row left over from UpdateWeights.
	ErrNoPendingPivot = errors.New("pricing: no pending pivot row")

	ErrUnknownAlgorithm = errors.New("pricing: unknown algorithm")
)

// Status of a variable with respect to the current basis.
type Status int

const (
	Basic Status = iota
	AtLowerBound
	AtUpperBound
	IsFree
	SuperBasic
	IsFixed
)

func (s Status) String() string {
	switch s {
	case Basic:
		return "basic"
	case AtLowerBound:
		return "at-lower"
	case AtUpperBound:
		return "at-upper"
	case IsFree:
		return "free"
	case SuperBasic:
		return "superbasic"
	case IsFixed:
		return "fixed"
	}
	return "unknown"
}

// Iteration is what the driver knows about the pivot it just made.
// PivotRow is -1 after a bound flip or a refactorization, SequenceIn and
// SequenceOut are -1 when there is no such variable.
type Iteration struct {
	DualIn                float64
	PivotRow              int
	SequenceIn            int
	SequenceOut           int
	Alpha                 float64
	DualTolerance         float64
	LargestDualError      float64
	Number                int
	LastBadIteration      int
	PrimalInfeasibilities int
	InfeasibilityCost     float64
}

// Factorization solves against the current basis. Both solves work in place
// on vectors of length NumberRows.
type Factorization interface {
	// UpdateColumn replaces v by B⁻¹v.
	UpdateColumn(v *sparse.Vector)
	// UpdateColumnTranspose replaces v by B⁻ᵀv.
	UpdateColumnTranspose(v *sparse.Vector)
	// NumberElements is the nonzero count of the factors, not counting
	// the diagonal.
	NumberElements() int
	// Pivots is the number of basis changes since the last factorization.
	Pivots() int
}

// Matrix is the structural part of the constraint matrix.
type Matrix interface {
	// TransposeTimes sets out, of length NumberColumns, to scalar·Aᵀpi.
	TransposeTimes(scalar float64, pi *sparse.Vector, out *sparse.Vector)
	// SubsetTransposeTimes sets out[k] to piᵀa_j for j = subset[k].
	SubsetTransposeTimes(pi *sparse.Vector, subset []int, out []float64)
	// Unpack sets v to the constraint column of sequence seq.
	Unpack(v *sparse.Vector, seq int)
}

// Simplex is the view of the driver the pricers need.
type Simplex interface {
	NumberRows() int
	NumberColumns() int
	Status(seq int) Status
	Flagged(seq int) bool
	// ReducedCosts is indexed by sequence and updated in place by the
	// pricer.
	ReducedCosts() []float64
	// PivotVariables maps each basis row to its basic sequence.
	PivotVariables() []int
	Factorization() Factorization
	Matrix() Matrix
	Iteration() Iteration
	SetSequenceOut(seq int)
}

// SaveMode tells SaveWeights where the driver is in its cycle.
type SaveMode int

const (
	BeforeFactorization SaveMode = iota + 1
	AfterFactorization
	RedoInfeasibilities
	RestoreWeights
	ForceInitialize
)

func (m SaveMode) String() string {
	switch m {
	case BeforeFactorization:
		return "before-factorization"
	case AfterFactorization:
		return "after-factorization"
	case RedoInfeasibilities:
		return "redo-infeasibilities"
	case RestoreWeights:
		return "restore"
	case ForceInitialize:
		return "initialize"
	}
	return "unknown"
}

// Pricer is implemented by Engine and DantzigPricer.
type Pricer interface {
	// PivotColumn folds the last pivot into the reduced costs (and
	// weights) and returns the entering sequence, or -1 when nothing
	// prices out.
	PivotColumn(updates *sparse.Vector) int
	// UpdateWeights is called with the FTRAN'd entering column before the
	// basis changes.
	UpdateWeights(column *sparse.Vector)
	SaveWeights(model Simplex, mode SaveMode)
	// UnrollWeights undoes the last UpdateWeights when the driver rejects
	// the step.
	UnrollWeights()
	LooksOptimal() bool
	Stats() Stats
}

// Stats describes the pricer state for logs and metrics.
type Stats struct {
	Strategy        Strategy
	Switches        int
	Initializations int
	Recoveries      int
	Infeasibilities int
}

// NewPricer returns the pricer named by cfg.Algorithm.
func NewPricer(cfg Config, opts ...Option) (Pricer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Algorithm == AlgorithmDantzig {
		return NewDantzig(opts...), nil
	}
	return New(cfg, opts...)
}
