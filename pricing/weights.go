package pricing

import (
	"math"

	"q.log/steepest/sparse"
)

// SaveWeights implements Pricer.
//
// BeforeFactorization records the basis order so a pending pivot survives
// the refactorization. AfterFactorization initializes the weights the first
// time and snapshots them afterwards. RestoreWeights copies the snapshot
// back and drops the pending pivot. ForceInitialize recomputes the weights.
// Every mode but BeforeFactorization rebuilds the infeasibility set.
func (e *Engine) SaveWeights(model Simplex, mode SaveMode) {
	e.model = model
	if e.mode == ModeAuto && mode == BeforeFactorization && e.weights == nil {
		e.numberSwitched = 0
	}
	pivotVariables := model.PivotVariables()

	switch mode {
	case BeforeFactorization:
		if e.weights == nil {
			return
		}
		if e.pivotSequence >= 0 && !e.pivotIsSequence {
			e.pivotOrder = append(e.pivotOrder[:0], pivotVariables...)
			e.pivotSequence = pivotVariables[e.pivotSequence]
			e.pivotIsSequence = true
		} else if e.pivotSequence < 0 {
			e.alternate.Clear()
		}
		e.state = stateFactorizing
		return
	case AfterFactorization, RestoreWeights, ForceInitialize:
		switch {
		case e.weights == nil || e.state == stateEmpty || mode == ForceInitialize:
			e.allocate()
			e.initializeWeights()
			copy(e.saved, e.weights)
			e.dropPending()
		case mode == AfterFactorization:
			copy(e.saved, e.weights)
		default:
			copy(e.weights, e.saved)
			e.dropPending()
			model.SetSequenceOut(-1)
		}
		e.state = stateReady
	case RedoInfeasibilities:
		if e.weights == nil {
			panic(ErrNotInitialized)
		}
	}

	if mode != RedoInfeasibilities && e.pivotIsSequence {
		e.remapPivot(pivotVariables)
	}
	e.rebuildInfeasibilities()
}

// allocate sizes the arrays for the current model.
func (e *Engine) allocate() {
	rows := e.model.NumberRows()
	columns := e.model.NumberColumns()
	n := rows + columns
	e.weights = make([]float64, n)
	if len(e.saved) != n {
		e.saved = make([]float64, n)
		e.reference = newFramework(n)
		e.infeasible = sparse.NewVector(n)
		e.byVar = make([]float64, n)
	}
	if e.alternate == nil || e.alternate.Size() != rows {
		e.alternate = sparse.NewVector(rows)
		e.column = sparse.NewVector(rows)
	}
	if e.tableau == nil || e.tableau.Size() != columns {
		e.tableau = sparse.NewVector(columns)
		e.subset = make([]float64, columns)
	}
}

func (e *Engine) dropPending() {
	e.pivotSequence = -1
	e.pivotIsSequence = false
	e.alternate.Clear()
	e.undo = e.undo[:0]
	e.undoAll = nil
}

// remapPivot turns the pending pivot sequence back into a basis row and
// permutes the alternate vector from the recorded order to the new one.
func (e *Engine) remapPivot(pivotVariables []int) {
	for _, row := range e.alternate.Indices() {
		e.byVar[e.pivotOrder[row]] = e.alternate.At(row)
	}
	e.alternate.Clear()
	found := -1
	for row, seq := range pivotVariables {
		if seq == e.pivotSequence {
			found = row
		}
		if value := e.byVar[seq]; value != 0 {
			e.alternate.Set(row, value)
		}
	}
	for _, seq := range e.pivotOrder {
		e.byVar[seq] = 0
	}
	if found < 0 {
		e.logger.Debug("pending pivot left the basis", "sequence", e.pivotSequence)
		e.alternate.Clear()
	}
	e.pivotSequence = found
	e.pivotIsSequence = false
}

// rebuildInfeasibilities recomputes the infeasibility set from scratch.
func (e *Engine) rebuildInfeasibilities() {
	e.infeasible.Clear()
	tolerance := e.model.Iteration().DualTolerance
	reducedCost := e.model.ReducedCosts()
	for seq := range e.model.NumberRows() + e.model.NumberColumns() {
		e.classify(seq, reducedCost[seq], tolerance)
	}
}

// initializeWeights resets the reference framework to the non-basic
// variables with unit weights, or in steepest mode computes 1+‖B⁻¹a_j‖²
// for every non-basic variable that is not fixed.
func (e *Engine) initializeWeights() {
	n := e.model.NumberRows() + e.model.NumberColumns()
	if !e.steepest() {
		for seq := range n {
			e.weights[seq] = 1
			e.reference.set(seq, e.model.Status(seq) != Basic)
		}
	} else {
		matrix := e.model.Matrix()
		factorization := e.model.Factorization()
		for seq := range n {
			e.weights[seq] = 1 + addOne
			if !e.priced(seq) {
				continue
			}
			matrix.Unpack(e.column, seq)
			factorization.UpdateColumn(e.column)
			e.weights[seq] = addOne + e.column.Norm2()
			e.column.Clear()
		}
	}
	e.stats.Initializations++
}

// UpdateWeights implements Pricer. column is B⁻¹a_q for the entering
// variable, computed against the basis before the pivot.
func (e *Engine) UpdateWeights(column *sparse.Vector) {
	strategy := e.Strategy()
	if strategy == Dantzig {
		return
	}
	if e.weights == nil {
		panic(ErrNotInitialized)
	}
	it := e.model.Iteration()
	sequenceIn := it.SequenceIn
	sequenceOut := it.SequenceOut
	pivotRow := it.PivotRow
	pivotVariables := e.model.PivotVariables()

	e.undo = append(e.undo[:0], undoEntry{sequenceIn, e.weights[sequenceIn]})
	if pivotRow >= 0 {
		e.undo = append(e.undo, undoEntry{sequenceOut, e.weights[sequenceOut]})
	}
	e.undoAll = nil
	e.pivotSequence = pivotRow
	e.pivotIsSequence = false
	e.alternate.Clear()

	devex := 0.0
	fill := pivotRow >= 0 && strategy != Devex
	if e.steepest() {
		for _, row := range column.Indices() {
			value := column.At(row)
			devex += value * value
			if fill {
				e.alternate.Set(row, -2*value)
			}
		}
		if fill {
			e.alternate.Set(pivotRow, -2*math.Max(devex, 0))
		}
		devex += addOne
	} else {
		for _, row := range column.Indices() {
			if !e.reference.has(pivotVariables[row]) {
				continue
			}
			value := column.At(row)
			devex += value * value
			if fill {
				e.alternate.Set(row, -2*value)
			}
		}
		if fill {
			e.alternate.Set(pivotRow, -2*math.Max(devex, 0))
		}
		devex += e.reference.bit(sequenceIn)
	}
	e.devex = devex

	oldDevex := e.weights[sequenceIn]
	check := math.Max(devex, oldDevex) + 0.1
	e.weights[sequenceIn] = math.Max(devex, weightFloor)
	testValue := 0.1
	if e.firstDevex() {
		testValue = 0.5
	}
	if difference := math.Abs(devex - oldDevex); difference > testValue*check {
		testValue = 0.99
		if e.steepest() {
			testValue = 10.1
		} else if e.firstDevex() {
			testValue = 0.9
		}
		if difference > testValue*check {
			e.logger.Warn("weights inaccurate, reinitializing",
				"sequence", sequenceIn, "old", oldDevex, "new", devex)
			e.undoAll = append([]float64(nil), e.weights...)
			e.undoAll[sequenceIn] = oldDevex
			e.initializeWeights()
			e.stats.Recoveries++
		}
	}
	if pivotRow >= 0 {
		e.weights[sequenceOut] = outgoingWeight(devex, it.Alpha)
	}
}

// outgoingWeight is devex/alpha², floored. A zero pivot is taken as one.
func outgoingWeight(devex, alpha float64) float64 {
	if alpha == 0 {
		return math.Max(devex, weightFloor)
	}
	return math.Max(devex/(alpha*alpha), weightFloor)
}

// UnrollWeights implements Pricer.
func (e *Engine) UnrollWeights() {
	if e.Strategy() == Dantzig || e.weights == nil {
		return
	}
	if e.undoAll != nil {
		copy(e.weights, e.undoAll)
	} else {
		for i := len(e.undo) - 1; i >= 0; i-- {
			e.weights[e.undo[i].seq] = e.undo[i].weight
		}
	}
	e.dropPending()
}
