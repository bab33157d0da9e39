package pricing

import (
	"io"
	"math"
	"math/rand/v2"

	"github.com/charmbracelet/log"

	"q.log/steepest/sparse"
)

const (
	// freeBias scales the reduced cost of free variables before squaring.
	freeBias = 10.0
	// freeAccept times the tolerance is the smallest free reduced cost
	// that prices.
	freeAccept = 100.0
	// weightFloor is the smallest weight ever stored.
	weightFloor = 1.0e-4
	// addOne is the unit term of a steepest-edge norm.
	addOne = 1.0
	// devexDecay bounds how fast a Devex weight may shrink in one pivot.
	devexDecay = 0.99
	// tinyDual is the smallest entering reduced cost worth folding in.
	tinyDual = 1.0e-15
	// smallDual is the entering reduced cost below which the tableau row
	// is recomputed with unit scale for the weights.
	smallDual = 1.0e-6
	// badWindow is the number of iterations after a bad dual error during
	// which the tolerance is widened.
	badWindow = 200
)

// state of the weights across a factorization.
type state int

const (
	stateEmpty state = iota
	stateReady
	stateFactorizing
)

// availability says what the last pivot left for PivotColumn to fold in.
type availability int

const (
	// availNothing: bound flip, reduced costs are unchanged.
	availNothing availability = iota
	// availRow: one tableau row serves both reduced costs and weights.
	availRow
	// availDeferred: reduced costs first, then the pivot row is recomputed
	// with unit scale for the weights.
	availDeferred
	// availWeights: reduced costs are already current, only the pending
	// weight update is left.
	availWeights
)

type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger used for strategy switches and drift
// recoveries.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	return o
}

type undoEntry struct {
	seq    int
	weight float64
}

// Engine is the Devex / steepest-edge pricer. One Engine serves one solve;
// it is not safe for concurrent use.
type Engine struct {
	cfg    Config
	mode   Mode
	logger *log.Logger
	rng    *rand.Rand
	model  Simplex

	weights    []float64
	saved      []float64
	reference  framework
	infeasible *sparse.Vector
	// alternate holds -2·Eᵀα between UpdateWeights and the next weight
	// pass, indexed by basis row.
	alternate *sparse.Vector

	// pivotOrder is the basis order recorded before a factorization while
	// a pivot is pending.
	pivotOrder      []int
	pivotIsSequence bool
	pivotSequence   int

	tableau *sparse.Vector
	column  *sparse.Vector
	subset  []float64
	byVar   []float64

	devex          float64
	state          state
	numberSwitched int

	undo    []undoEntry
	undoAll []float64

	scanStart float64
	stats     Stats
}

// New returns an Engine for cfg. SaveWeights must be called with
// AfterFactorization before the first PivotColumn.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Engine{
		cfg:           cfg,
		mode:          mode,
		logger:        o.logger,
		rng:           rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		pivotSequence: -1,
	}, nil
}

// Strategy returns the weighting currently in force.
func (e *Engine) Strategy() Strategy {
	switch e.mode {
	case ModeExact:
		return FullExact
	case ModeSteepest:
		return Steepest
	case ModePartial:
		return PartialExact
	case ModeAutoExact:
		return AutoExact
	}
	switch e.numberSwitched {
	case 0:
		return Dantzig
	case 1:
		return Devex
	}
	return AutoExact
}

func (e *Engine) steepest() bool {
	return e.mode == ModeSteepest
}

// firstDevex is true while auto mode runs its first Devex regime, where the
// drift checks are looser.
func (e *Engine) firstDevex() bool {
	return e.mode == ModeAuto && e.numberSwitched == 1
}

// Weight returns the weight of seq.
func (e *Engine) Weight(seq int) float64 {
	if e.weights == nil {
		panic(ErrNotInitialized)
	}
	return e.weights[seq]
}

// InReference reports whether seq is in the reference framework.
func (e *Engine) InReference(seq int) bool {
	if e.reference == nil {
		return false
	}
	return e.reference.has(seq)
}

// Infeasibility returns the stored squared infeasibility of seq, 0 when seq
// does not price.
func (e *Engine) Infeasibility(seq int) float64 {
	if e.infeasible == nil {
		return 0
	}
	return e.infeasible.At(seq)
}

func (e *Engine) Stats() Stats {
	s := e.stats
	s.Strategy = e.Strategy()
	s.Switches = e.numberSwitched
	if e.infeasible != nil {
		s.Infeasibilities = e.infeasible.Len()
	}
	return s
}

// PivotColumn implements Pricer.
func (e *Engine) PivotColumn(updates *sparse.Vector) int {
	if e.weights == nil || e.model == nil {
		panic(ErrNotInitialized)
	}
	it := e.model.Iteration()
	tolerance := baseTolerance(it)
	strategy := e.Strategy()

	avail := e.classifyUpdates(updates, it)
	e.update(updates, avail, strategy, tolerance)

	// the outgoing variable of the last iteration changed status
	sequenceOut := it.SequenceOut
	if sequenceOut >= 0 {
		e.classify(sequenceOut, e.model.ReducedCosts()[sequenceOut], tolerance)
	}

	strategy = e.checkSwitch(updates, strategy)
	e.scanStart = e.rng.Float64()
	best := e.bestCandidate(strategy, it, sequenceOut)
	e.checkSign(best)
	return best
}

// BestCandidate repeats the selection of the last PivotColumn without
// touching reduced costs or weights.
func (e *Engine) BestCandidate() int {
	if e.weights == nil || e.model == nil {
		panic(ErrNotInitialized)
	}
	it := e.model.Iteration()
	return e.bestCandidate(e.Strategy(), it, it.SequenceOut)
}

// classifyUpdates adds the entering reduced cost at the pivot row and says
// which update path the last pivot needs.
func (e *Engine) classifyUpdates(updates *sparse.Vector, it Iteration) availability {
	dj := it.DualIn
	pivotRow := it.PivotRow
	switch {
	case updates.Len() > 0:
		if pivotRow >= 0 {
			updates.Add(pivotRow, -dj)
		}
		return availDeferred
	case pivotRow >= 0:
		if math.Abs(dj) <= tinyDual {
			return availWeights
		}
		updates.Insert(pivotRow, -dj)
		if math.Abs(dj) > smallDual {
			return availRow
		}
		return availDeferred
	case e.pivotSequence >= 0:
		// just after a factorization
		return availWeights
	}
	return availNothing
}

// baseTolerance is the dual tolerance widened by the dual error.
func baseTolerance(it Iteration) float64 {
	return it.DualTolerance + math.Min(1.0e-3, it.LargestDualError)
}

// recentTolerance widens tolerance further shortly after a bad dual error.
func recentTolerance(tolerance float64, it Iteration, pivots int) float64 {
	if it.Number >= it.LastBadIteration+badWindow {
		return tolerance
	}
	check := 1.0e-8
	if pivots == 0 {
		check = 1.0e-6
	}
	if it.LargestDualError > check {
		tolerance *= it.LargestDualError / check
	}
	return math.Min(1000.0, tolerance)
}

// classify stores the squared infeasibility of seq given its reduced cost,
// or removes it when seq does not price.
func (e *Engine) classify(seq int, value, tolerance float64) {
	switch e.model.Status(seq) {
	case Basic, IsFixed:
		e.infeasible.Zero(seq)
	case IsFree, SuperBasic:
		if math.Abs(value) > freeAccept*tolerance {
			value *= freeBias
			e.infeasible.Set(seq, value*value)
		} else {
			e.infeasible.Zero(seq)
		}
	case AtUpperBound:
		if value > tolerance {
			e.infeasible.Set(seq, value*value)
		} else {
			e.infeasible.Zero(seq)
		}
	case AtLowerBound:
		if value < -tolerance {
			e.infeasible.Set(seq, value*value)
		} else {
			e.infeasible.Zero(seq)
		}
	}
}

// checkSign logs a candidate whose reduced cost has the wrong sign for its
// bound. Only numerical error gets here.
func (e *Engine) checkSign(seq int) {
	if seq < 0 {
		return
	}
	dj := e.model.ReducedCosts()[seq]
	status := e.model.Status(seq)
	if (status == AtLowerBound && dj >= 0) || (status == AtUpperBound && dj <= 0) {
		e.logger.Warn("candidate reduced cost has wrong sign",
			"sequence", seq, "status", status, "dj", dj)
	}
}

// LooksOptimal reports whether a full scan with the current tolerance would
// find nothing to price.
func (e *Engine) LooksOptimal() bool {
	if e.model == nil {
		panic(ErrNotInitialized)
	}
	it := e.model.Iteration()
	tolerance := recentTolerance(baseTolerance(it), it, e.model.Factorization().Pivots())
	return countInfeasible(e.model, tolerance) == 0
}

func countInfeasible(model Simplex, tolerance float64) int {
	reducedCost := model.ReducedCosts()
	number := 0
	for seq := range model.NumberRows() + model.NumberColumns() {
		value := reducedCost[seq]
		switch model.Status(seq) {
		case IsFree, SuperBasic:
			if math.Abs(value) > freeAccept*tolerance {
				number++
			}
		case AtUpperBound:
			if value > tolerance {
				number++
			}
		case AtLowerBound:
			if value < -tolerance {
				number++
			}
		}
	}
	return number
}
