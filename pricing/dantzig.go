package pricing

import (
	"math"

	"github.com/charmbracelet/log"

	"q.log/steepest/sparse"
)

// DantzigPricer picks the largest reduced cost over every variable. It keeps
// no weights and no infeasibility set.
type DantzigPricer struct {
	logger  *log.Logger
	model   Simplex
	tableau *sparse.Vector
}

func NewDantzig(opts ...Option) *DantzigPricer {
	o := buildOptions(opts)
	return &DantzigPricer{logger: o.logger}
}

// PivotColumn implements Pricer.
func (d *DantzigPricer) PivotColumn(updates *sparse.Vector) int {
	if d.model == nil {
		panic(ErrNotInitialized)
	}
	it := d.model.Iteration()
	dj := it.DualIn
	apply := false
	if updates.Len() > 0 {
		apply = true
		if it.PivotRow >= 0 {
			updates.Add(it.PivotRow, -dj)
		}
	} else if it.PivotRow >= 0 {
		updates.Insert(it.PivotRow, -dj)
		apply = true
	}
	if apply {
		d.subtractRow(updates)
	}

	tolerance := it.DualTolerance
	reducedCost := d.model.ReducedCosts()
	bestDj := tolerance
	bestSequence := -1
	bestFreeDj := tolerance
	bestFreeSequence := -1
	for seq := range d.model.NumberRows() + d.model.NumberColumns() {
		if d.model.Flagged(seq) {
			continue
		}
		value := reducedCost[seq]
		switch d.model.Status(seq) {
		case IsFree, SuperBasic:
			if math.Abs(value) > bestFreeDj {
				bestFreeDj = math.Abs(value)
				bestFreeSequence = seq
			}
		case AtUpperBound:
			if value > bestDj {
				bestDj = value
				bestSequence = seq
			}
		case AtLowerBound:
			if value < -bestDj {
				bestDj = -value
				bestSequence = seq
			}
		}
	}
	// bias towards free
	if bestFreeSequence >= 0 && bestFreeDj > 0.1*bestDj {
		bestSequence = bestFreeSequence
	}
	return bestSequence
}

func (d *DantzigPricer) subtractRow(updates *sparse.Vector) {
	if d.tableau == nil || d.tableau.Size() != d.model.NumberColumns() {
		d.tableau = sparse.NewVector(d.model.NumberColumns())
	}
	d.model.Factorization().UpdateColumnTranspose(updates)
	d.model.Matrix().TransposeTimes(-1, updates, d.tableau)
	reducedCost := d.model.ReducedCosts()
	numberColumns := d.model.NumberColumns()
	for _, i := range updates.Indices() {
		reducedCost[numberColumns+i] -= updates.At(i)
	}
	for _, j := range d.tableau.Indices() {
		reducedCost[j] -= d.tableau.At(j)
	}
	updates.Clear()
	d.tableau.Clear()
}

func (d *DantzigPricer) UpdateWeights(*sparse.Vector) {}

func (d *DantzigPricer) SaveWeights(model Simplex, _ SaveMode) {
	d.model = model
}

func (d *DantzigPricer) UnrollWeights() {}

func (d *DantzigPricer) LooksOptimal() bool {
	if d.model == nil {
		panic(ErrNotInitialized)
	}
	tolerance := d.model.Iteration().DualTolerance
	reducedCost := d.model.ReducedCosts()
	for seq := range d.model.NumberRows() + d.model.NumberColumns() {
		value := reducedCost[seq]
		switch d.model.Status(seq) {
		case IsFree, SuperBasic:
			if math.Abs(value) > tolerance {
				return false
			}
		case AtUpperBound:
			if value > tolerance {
				return false
			}
		case AtLowerBound:
			if value < -tolerance {
				return false
			}
		}
	}
	return true
}

func (d *DantzigPricer) Stats() Stats {
	return Stats{Strategy: Dantzig}
}
