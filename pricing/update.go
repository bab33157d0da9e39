package pricing

import (
	"math"

	"q.log/steepest/sparse"
)

// weightStep carries what the weight pass needs besides the tableau row.
type weightStep struct {
	exact       bool
	referenceIn float64
}

// update folds the last pivot into the reduced costs and weights. The five
// update procedures are the branches on strategy and availability:
//
//	Dantzig                 reduced costs only
//	Devex, row ready        Devex weights in the reduced-cost pass
//	exact, row ready        exact weights in the reduced-cost pass
//	Devex, deferred/only    Devex weights from a unit-scaled pivot row
//	exact, deferred/only    exact weights from a unit-scaled pivot row
func (e *Engine) update(updates *sparse.Vector, avail availability, strategy Strategy, tolerance float64) {
	it := e.model.Iteration()
	if strategy == Dantzig {
		if avail == availRow || avail == availDeferred {
			e.applyRow(updates, it.DualIn, tolerance, nil)
			if it.PivotRow >= 0 {
				e.zeroInfeasibility(it.SequenceIn)
			}
		}
		return
	}
	exact := strategy.exact()
	switch avail {
	case availRow:
		if e.pivotSequence < 0 {
			panic(ErrNoPendingPivot)
		}
		e.pivotSequence = -1
		step := &weightStep{exact: exact, referenceIn: e.referenceIn(it.SequenceIn)}
		outgoing := e.saveOutgoing(it.SequenceOut)
		e.applyRow(updates, it.DualIn, tolerance, step)
		e.restoreOutgoing(it.SequenceOut, outgoing)
		e.zeroInfeasibility(it.SequenceIn)
		e.alternate.Clear()
	case availDeferred:
		e.applyRow(updates, it.DualIn, tolerance, nil)
		if it.PivotRow >= 0 {
			e.zeroInfeasibility(it.SequenceIn)
		}
		e.pendingWeights(updates, exact, false)
	case availWeights:
		e.pendingWeights(updates, exact, true)
	}
}

// pendingWeights runs the weight pass for the pivot left by UpdateWeights,
// recomputing its tableau row with unit scale.
func (e *Engine) pendingWeights(updates *sparse.Vector, exact, required bool) {
	pivotRow := e.pivotSequence
	if pivotRow < 0 {
		if required {
			panic(ErrNoPendingPivot)
		}
		return
	}
	e.pivotSequence = -1
	it := e.model.Iteration()
	sequenceIn := e.model.PivotVariables()[pivotRow]
	e.zeroInfeasibility(sequenceIn)
	step := &weightStep{exact: exact, referenceIn: e.referenceIn(sequenceIn)}
	outgoing := e.saveOutgoing(it.SequenceOut)

	updates.Clear()
	updates.Insert(pivotRow, -1)
	e.weightsOnly(updates, step)

	e.restoreOutgoing(it.SequenceOut, outgoing)
	e.alternate.Clear()
}

// applyRow computes the tableau row for updates (the pivot row scaled by
// -dj), subtracts it from the reduced costs and re-classifies every touched
// variable. With a step it also updates their weights.
func (e *Engine) applyRow(updates *sparse.Vector, dj, tolerance float64, step *weightStep) {
	factorization := e.model.Factorization()
	factorization.UpdateColumnTranspose(updates)
	if step != nil && step.exact {
		factorization.UpdateColumnTranspose(e.alternate)
	}
	e.model.Matrix().TransposeTimes(-1, updates, e.tableau)
	if step != nil && step.exact {
		e.model.Matrix().SubsetTransposeTimes(e.alternate, e.tableau.Indices(), e.subset)
	}

	reducedCost := e.model.ReducedCosts()
	numberColumns := e.model.NumberColumns()

	// row variables have column -e_i
	scale := -1.0 / dj
	for _, i := range updates.Indices() {
		seq := numberColumns + i
		value2 := updates.At(i)
		reducedCost[seq] -= value2
		if step != nil && e.priced(seq) {
			e.weights[seq] = e.nextWeight(seq, value2*scale, e.alternate.At(i), step)
		}
		e.classify(seq, reducedCost[seq], tolerance)
	}
	scale = -scale
	for k, j := range e.tableau.Indices() {
		value2 := e.tableau.At(j)
		reducedCost[j] -= value2
		if step != nil && e.priced(j) {
			modification := 0.0
			if step.exact {
				modification = e.subset[k]
			}
			e.weights[j] = e.nextWeight(j, value2*scale, modification, step)
		}
		e.classify(j, reducedCost[j], tolerance)
	}
	updates.Clear()
	e.tableau.Clear()
}

// weightsOnly is applyRow without reduced costs, for a row already scaled
// by a unit dj.
func (e *Engine) weightsOnly(updates *sparse.Vector, step *weightStep) {
	factorization := e.model.Factorization()
	factorization.UpdateColumnTranspose(updates)
	e.model.Matrix().TransposeTimes(-1, updates, e.tableau)
	if step.exact {
		factorization.UpdateColumnTranspose(e.alternate)
		e.model.Matrix().SubsetTransposeTimes(e.alternate, e.tableau.Indices(), e.subset)
	}
	numberColumns := e.model.NumberColumns()
	for _, i := range updates.Indices() {
		seq := numberColumns + i
		if e.priced(seq) {
			e.weights[seq] = e.nextWeight(seq, -updates.At(i), e.alternate.At(i), step)
		}
	}
	for k, j := range e.tableau.Indices() {
		if e.priced(j) {
			modification := 0.0
			if step.exact {
				modification = e.subset[k]
			}
			e.weights[j] = e.nextWeight(j, e.tableau.At(j), modification, step)
		}
	}
	updates.Clear()
	e.tableau.Clear()
}

// priced is true for the statuses whose weights are maintained.
func (e *Engine) priced(seq int) bool {
	status := e.model.Status(seq)
	return status != Basic && status != IsFixed
}

// nextWeight applies one step of the weight recurrence to seq, where pivot
// is its entry in the new pivot row and modification its cross term.
func (e *Engine) nextWeight(seq int, pivot, modification float64, step *weightStep) float64 {
	pivotSquared := pivot * pivot
	weight := e.weights[seq]
	if !step.exact {
		value := pivotSquared*e.devex + e.reference.bit(seq)
		return math.Max(weightFloor, math.Max(devexDecay*weight, value))
	}
	weight += pivotSquared*e.devex + pivot*modification
	if weight < weightFloor {
		if e.steepest() {
			weight = addOne + pivotSquared
		} else {
			weight = step.referenceIn*pivotSquared + e.reference.bit(seq)
		}
	}
	return math.Max(weight, weightFloor)
}

func (e *Engine) referenceIn(seq int) float64 {
	if e.steepest() || seq < 0 {
		return 0
	}
	return e.reference.bit(seq)
}

func (e *Engine) saveOutgoing(seq int) float64 {
	if seq < 0 {
		return 0
	}
	return e.weights[seq]
}

func (e *Engine) restoreOutgoing(seq int, weight float64) {
	if seq >= 0 {
		e.weights[seq] = weight
	}
}

func (e *Engine) zeroInfeasibility(seq int) {
	if seq >= 0 {
		e.infeasible.Zero(seq)
	}
}
