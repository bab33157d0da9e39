// Package simplex is a bounded primal simplex driver over a dense LU basis
// factorization. The entering variable is chosen by a pricing.Pricer.
package simplex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"

	"q.log/steepest/model"
	"q.log/steepest/pricing"
	"q.log/steepest/sparse"
)

var (
	ErrInfeasible     = errors.New("simplex: problem is infeasible")
	ErrUnbounded      = errors.New("simplex: problem is unbounded")
	ErrIterationLimit = errors.New("simplex: iteration limit reached")
	ErrSingularBasis  = errors.New("simplex: singular basis")
)

const (
	// maxUnflagRounds is how many times flagged variables are released at
	// an apparent optimum before they are left out for good.
	maxUnflagRounds = 3
	// badDualError is the dual error that marks an iteration as bad.
	badDualError = 1.0e-7
)

// Solution of a solve, in the sense of the model.
type Solution struct {
	Objective    float64
	X            []float64
	RowActivity  []float64
	ReducedCosts []float64
	Duals        []float64

	Iterations       int
	Flips            int
	Refactorizations int
	Pricing          pricing.Stats
}

// Solver runs the primal simplex method on one model. It implements
// pricing.Simplex for its pricer.
type Solver struct {
	opts    Options
	pricer  pricing.Pricer
	logger  *log.Logger
	metrics *Metrics

	model       *model.Model
	sign        float64
	rows        int
	structurals int
	// cols counts structurals then artificials
	cols   int
	matrix *Matrix
	factor *Factorization

	cost    []float64
	lower   []float64
	upper   []float64
	x       []float64
	dj      []float64
	status  []pricing.Status
	flagged []bool
	pivot   []int

	numberFlagged int
	flips         int
	refactors     int
	it            pricing.Iteration
	updates       *sparse.Vector
	column        *sparse.Vector

	// last basis that factorized
	good struct {
		pivot        []int
		status       []pricing.Status
		x            []float64
		lower, upper []float64
	}
}

var _ pricing.Simplex = (*Solver)(nil)

// New sets up m for solving: structurals start at a bound, rows whose
// activity is then out of bounds get an artificial column.
func New(m *model.Model, pricer pricing.Pricer, opts Options, options ...Option) (*Solver, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Solver{
		opts:        opts,
		pricer:      pricer,
		logger:      log.New(io.Discard),
		model:       m,
		sign:        1,
		rows:        m.NumRows,
		structurals: m.NumCols,
	}
	for _, option := range options {
		option(s)
	}
	if m.Sense == model.Maximize {
		s.sign = -1
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	s.it = pricing.Iteration{
		PivotRow:          -1,
		SequenceIn:        -1,
		SequenceOut:       -1,
		DualTolerance:     opts.DualTolerance,
		InfeasibilityCost: opts.InfeasibilityCost,
	}
	return s, nil
}

// setup places the structurals at a bound and makes the starting basis out
// of row variables and artificials.
func (s *Solver) setup() error {
	m := s.model
	n := s.structurals
	start := make([]float64, n)
	for j := range n {
		start[j] = startValue(m.ColLower[j], m.ColUpper[j])
	}
	activity := m.RowActivity(start)

	type artificial struct {
		row       int
		direction float64
		value     float64
		atUpper   bool
	}
	var artificials []artificial
	for i := range s.rows {
		switch {
		case activity[i] < m.RowLower[i]-s.opts.PrimalTolerance:
			artificials = append(artificials, artificial{i, 1, m.RowLower[i] - activity[i], false})
		case activity[i] > m.RowUpper[i]+s.opts.PrimalTolerance:
			artificials = append(artificials, artificial{i, -1, activity[i] - m.RowUpper[i], true})
		}
	}

	s.cols = n + len(artificials)
	work := m.Clone()
	for _, art := range artificials {
		column := make([]float64, s.rows)
		column[art.row] = art.direction
		// the penalty is a minimization cost whatever the sense
		if err := work.AddCol(column, s.sign*s.opts.InfeasibilityCost, 0, math.Inf(1)); err != nil {
			return err
		}
	}
	total := s.cols + s.rows
	s.cost = make([]float64, total)
	s.lower = make([]float64, total)
	s.upper = make([]float64, total)
	s.x = make([]float64, total)
	s.dj = make([]float64, total)
	s.status = make([]pricing.Status, total)
	s.flagged = make([]bool, total)
	s.pivot = make([]int, s.rows)

	for j := range s.cols {
		s.cost[j] = s.sign * work.C.At(0, j)
		s.lower[j], s.upper[j] = work.ColLower[j], work.ColUpper[j]
	}
	for j := range n {
		s.x[j] = start[j]
		s.status[j] = startStatus(s.lower[j], s.upper[j])
	}
	for i := range s.rows {
		seq := s.cols + i
		s.lower[seq], s.upper[seq] = m.RowLower[i], m.RowUpper[i]
		s.x[seq] = activity[i]
		s.status[seq] = pricing.Basic
		s.pivot[i] = seq
	}
	for k, art := range artificials {
		seq := n + k
		s.x[seq] = art.value
		s.status[seq] = pricing.Basic
		s.pivot[art.row] = seq

		row := s.cols + art.row
		if art.atUpper {
			s.x[row] = s.upper[row]
		} else {
			s.x[row] = s.lower[row]
		}
		s.status[row] = boundStatus(s.lower[row], s.upper[row], art.atUpper)
	}
	if len(artificials) > 0 {
		s.logger.Debug("added artificials", "count", len(artificials))
	}

	s.matrix = NewMatrix(work.A)
	s.factor = NewFactorization(s.matrix, s.logger)
	s.updates = sparse.NewVector(s.rows)
	s.column = sparse.NewVector(s.rows)
	return nil
}

func startValue(lower, upper float64) float64 {
	switch {
	case !math.IsInf(lower, 0):
		return lower
	case !math.IsInf(upper, 0):
		return upper
	}
	return 0
}

func startStatus(lower, upper float64) pricing.Status {
	switch {
	case lower == upper:
		return pricing.IsFixed
	case !math.IsInf(lower, 0):
		return pricing.AtLowerBound
	case !math.IsInf(upper, 0):
		return pricing.AtUpperBound
	}
	return pricing.IsFree
}

func boundStatus(lower, upper float64, atUpper bool) pricing.Status {
	switch {
	case lower == upper:
		return pricing.IsFixed
	case atUpper:
		return pricing.AtUpperBound
	}
	return pricing.AtLowerBound
}

func (s *Solver) NumberRows() int                      { return s.rows }
func (s *Solver) NumberColumns() int                   { return s.cols }
func (s *Solver) Status(seq int) pricing.Status        { return s.status[seq] }
func (s *Solver) Flagged(seq int) bool                 { return s.flagged[seq] }
func (s *Solver) ReducedCosts() []float64              { return s.dj }
func (s *Solver) PivotVariables() []int                { return s.pivot }
func (s *Solver) Factorization() pricing.Factorization { return s.factor }
func (s *Solver) Matrix() pricing.Matrix               { return s.matrix }
func (s *Solver) Iteration() pricing.Iteration         { return s.it }
func (s *Solver) SetSequenceOut(seq int)               { s.it.SequenceOut = seq }

func (s *Solver) artificial(seq int) bool {
	return seq >= s.structurals && seq < s.cols
}

// Solve runs the primal simplex method to optimality.
func (s *Solver) Solve(ctx context.Context) (*Solution, error) {
	if err := s.refactor(); err != nil {
		return nil, err
	}
	unflagRounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.it.Number >= s.opts.MaxIterations {
			return nil, fmt.Errorf("%w: %d iterations", ErrIterationLimit, s.it.Number)
		}
		if s.factor.Pivots() >= s.opts.RefactorFrequency {
			if err := s.refactor(); err != nil {
				return nil, err
			}
		}
		s.it.PrimalInfeasibilities = s.primalInfeasibilities()

		q := s.pricer.PivotColumn(s.updates)
		// the pricer has folded in the last pivot
		s.it.PivotRow = -1
		s.metrics.observePricing(s.pricer.Stats())
		if q < 0 {
			if s.it.SequenceOut >= 0 {
				// the last outgoing variable was not looked at
				s.it.SequenceOut = -1
				continue
			}
			if s.numberFlagged > 0 && unflagRounds < maxUnflagRounds {
				unflagRounds++
				s.unflag()
				s.pricer.SaveWeights(s, pricing.RedoInfeasibilities)
				continue
			}
			break
		}

		s.it.Number++
		if err := s.iterate(q); err != nil {
			return nil, err
		}
	}
	if s.numberFlagged > 0 {
		s.logger.Warn("stopped with flagged variables", "flagged", s.numberFlagged)
	}
	if !s.pricer.LooksOptimal() {
		s.logger.Warn("stopped with dual infeasibilities")
	}
	return s.solution()
}

// iterate brings q into the basis or moves it to its other bound.
func (s *Solver) iterate(q int) error {
	column := s.column
	s.matrix.Unpack(column, q)
	s.factor.UpdateColumn(column)
	defer column.Clear()

	direction := 1.0
	if s.dj[q] > 0 {
		direction = -1
	}
	theta, r, toUpper := s.ratioTest(column, direction)
	flip := s.upper[q] - s.lower[q]
	if r < 0 && math.IsInf(flip, 1) {
		return fmt.Errorf("%w: variable %d has no limit", ErrUnbounded, q)
	}

	if flip <= theta {
		s.boundFlip(q, direction, flip, column)
		return nil
	}

	alpha := column.At(r)
	if math.Abs(alpha) < s.opts.PivotTolerance {
		s.logger.Debug("tiny pivot", "sequence", q, "alpha", alpha)
		s.flag(q, false)
		return nil
	}
	out := s.pivot[r]
	s.it.DualIn = s.dj[q]
	s.it.PivotRow = r
	s.it.SequenceIn = q
	s.it.SequenceOut = out
	s.it.Alpha = alpha
	s.pricer.UpdateWeights(column)

	if err := s.factor.Replace(r, q); err != nil {
		s.logger.Debug("pivot rejected", "sequence", q, "row", r, "err", err)
		s.pricer.UnrollWeights()
		s.flag(q, true)
		return s.refactor()
	}

	for _, i := range column.Indices() {
		s.x[s.pivot[i]] -= direction * theta * column.At(i)
	}
	s.x[q] += direction * theta
	s.pivot[r] = q
	s.status[q] = pricing.Basic
	if s.artificial(out) {
		// artificials never come back
		s.lower[out], s.upper[out] = 0, 0
	}
	s.status[out] = boundStatus(s.lower[out], s.upper[out], toUpper)
	if s.status[out] == pricing.AtUpperBound {
		s.x[out] = s.upper[out]
	} else {
		s.x[out] = s.lower[out]
	}
	s.metrics.iteration(false)
	s.logger.Debug("pivot", "iteration", s.it.Number, "in", q, "out", out, "row", r, "theta", theta)
	return nil
}

// ratioTest returns the step length, the limiting row (or -1) and whether
// the leaving variable goes to its upper bound. Ties go to the largest
// pivot.
func (s *Solver) ratioTest(column *sparse.Vector, direction float64) (float64, int, bool) {
	theta := math.Inf(1)
	row := -1
	toUpper := false
	for _, i := range column.Indices() {
		alpha := column.At(i)
		if math.Abs(alpha) < sparse.Tiny {
			continue
		}
		seq := s.pivot[i]
		// rate of change of the basic variable
		rate := -direction * alpha
		var limit float64
		if rate < 0 {
			if math.IsInf(s.lower[seq], -1) {
				continue
			}
			limit = (s.x[seq] - s.lower[seq]) / -rate
		} else {
			if math.IsInf(s.upper[seq], 1) {
				continue
			}
			limit = (s.upper[seq] - s.x[seq]) / rate
		}
		limit = math.Max(limit, 0)
		if limit < theta-s.opts.PrimalTolerance ||
			(row >= 0 && limit <= theta+s.opts.PrimalTolerance && math.Abs(alpha) > math.Abs(column.At(row))) {
			if limit < theta {
				theta = limit
			}
			row = i
			toUpper = rate > 0
		}
	}
	return theta, row, toUpper
}

// boundFlip moves q across to its other bound. Reduced costs do not change.
func (s *Solver) boundFlip(q int, direction, flip float64, column *sparse.Vector) {
	for _, i := range column.Indices() {
		s.x[s.pivot[i]] -= direction * flip * column.At(i)
	}
	if direction > 0 {
		s.x[q] = s.upper[q]
		s.status[q] = pricing.AtUpperBound
	} else {
		s.x[q] = s.lower[q]
		s.status[q] = pricing.AtLowerBound
	}
	s.it.DualIn = s.dj[q]
	s.it.PivotRow = -1
	s.it.SequenceIn = q
	s.it.SequenceOut = q
	s.it.Alpha = 0
	s.pricer.UpdateWeights(column)
	s.flips++
	s.metrics.iteration(true)
	s.logger.Debug("bound flip", "iteration", s.it.Number, "sequence", q)
}

func (s *Solver) flag(seq int, rejected bool) {
	if !s.flagged[seq] {
		s.flagged[seq] = true
		s.numberFlagged++
	}
	s.metrics.flagged(rejected)
}

func (s *Solver) unflag() {
	s.logger.Debug("releasing flagged variables", "flagged", s.numberFlagged)
	clear(s.flagged)
	s.numberFlagged = 0
}

// refactor factorizes the basis and recomputes primal values and reduced
// costs. A singular basis sends the solver back to the last good one.
func (s *Solver) refactor() error {
	s.pricer.SaveWeights(s, pricing.BeforeFactorization)
	mode := pricing.AfterFactorization
	if err := s.factor.Factorize(s.pivot); err != nil {
		if s.good.pivot == nil {
			return err
		}
		s.logger.Warn("singular basis, going back to the last good one", "err", err)
		s.restoreGood()
		if s.it.SequenceIn >= 0 && s.status[s.it.SequenceIn] != pricing.Basic {
			s.flag(s.it.SequenceIn, false)
		}
		if err := s.factor.Factorize(s.pivot); err != nil {
			return err
		}
		mode = pricing.RestoreWeights
	}
	s.computeValues()
	s.computeDuals()
	s.it.PivotRow = -1
	s.it.DualIn = 0
	s.pricer.SaveWeights(s, mode)
	s.saveGood()
	s.refactors++
	s.metrics.refactorization()
	return nil
}

func (s *Solver) saveGood() {
	s.good.pivot = append(s.good.pivot[:0], s.pivot...)
	s.good.status = append(s.good.status[:0], s.status...)
	s.good.x = append(s.good.x[:0], s.x...)
	s.good.lower = append(s.good.lower[:0], s.lower...)
	s.good.upper = append(s.good.upper[:0], s.upper...)
}

func (s *Solver) restoreGood() {
	copy(s.pivot, s.good.pivot)
	copy(s.status, s.good.status)
	copy(s.x, s.good.x)
	copy(s.lower, s.good.lower)
	copy(s.upper, s.good.upper)
}

// computeValues solves B x_B = -N x_N.
func (s *Solver) computeValues() {
	rhs := make([]float64, s.rows)
	for seq := range s.cols + s.rows {
		if s.status[seq] != pricing.Basic {
			s.matrix.activity(rhs, seq, s.x[seq])
		}
	}
	for i := range rhs {
		rhs[i] = -rhs[i]
	}
	values := s.factor.Solve(rhs)
	for r, seq := range s.pivot {
		s.x[seq] = values[r]
	}
}

// computeDuals recomputes every reduced cost from y = B⁻ᵀc_B and records
// how far the basic ones had drifted from zero.
func (s *Solver) computeDuals() {
	pending := -1
	if s.it.PivotRow >= 0 {
		pending = s.it.SequenceIn
	}
	largest := 0.0
	for _, seq := range s.pivot {
		if seq != pending {
			largest = math.Max(largest, math.Abs(s.dj[seq]))
		}
	}
	s.it.LargestDualError = largest
	if largest > badDualError {
		s.logger.Debug("dual error", "iteration", s.it.Number, "error", largest)
		s.it.LastBadIteration = s.it.Number
	}

	y := sparse.NewVector(s.rows)
	for r, seq := range s.pivot {
		y.Set(r, s.cost[seq])
	}
	s.factor.UpdateColumnTranspose(y)
	product := sparse.NewVector(s.cols)
	s.matrix.TransposeTimes(1, y, product)
	for j := range s.cols {
		s.dj[j] = s.cost[j] - product.At(j)
	}
	for i := range s.rows {
		s.dj[s.cols+i] = s.cost[s.cols+i] + y.At(i)
	}
	for _, seq := range s.pivot {
		s.dj[seq] = 0
	}
}

// primalInfeasibilities counts the artificials still carrying a value.
func (s *Solver) primalInfeasibilities() int {
	number := 0
	for seq := s.structurals; seq < s.cols; seq++ {
		if s.x[seq] > s.opts.PrimalTolerance {
			number++
		}
	}
	return number
}

func (s *Solver) solution() (*Solution, error) {
	s.computeValues()
	for seq := s.structurals; seq < s.cols; seq++ {
		if s.x[seq] > s.opts.PrimalTolerance {
			return nil, fmt.Errorf("%w: artificial for row %d at %g", ErrInfeasible, s.artificialRow(seq), s.x[seq])
		}
	}
	sol := &Solution{
		X:                append([]float64(nil), s.x[:s.structurals]...),
		RowActivity:      make([]float64, s.rows),
		ReducedCosts:     make([]float64, s.structurals),
		Duals:            make([]float64, s.rows),
		Iterations:       s.it.Number,
		Flips:            s.flips,
		Refactorizations: s.refactors,
		Pricing:          s.pricer.Stats(),
	}
	for j := range s.structurals {
		sol.ReducedCosts[j] = s.sign * s.dj[j]
	}
	for i := range s.rows {
		sol.RowActivity[i] = s.x[s.cols+i]
		sol.Duals[i] = s.sign * s.dj[s.cols+i]
	}
	sol.Objective = s.model.Objective(sol.X)
	s.metrics.observePricing(sol.Pricing)
	s.metrics.objective(sol.Objective)
	s.logger.Info("optimal", "objective", sol.Objective, "iterations", sol.Iterations,
		"flips", sol.Flips, "strategy", sol.Pricing.Strategy)
	return sol, nil
}

func (s *Solver) artificialRow(seq int) int {
	for i := range s.rows {
		if s.matrix.a.At(i, seq) != 0 {
			return i
		}
	}
	return -1
}
