package pricing

import "q.log/steepest/sparse"

// fillRatio is the off-diagonal nonzero count of the factors per row.
func (e *Engine) fillRatio() float64 {
	rows := max(1, e.model.NumberRows())
	return float64(e.model.Factorization().NumberElements()) / float64(rows)
}

// checkSwitch moves auto mode up a strategy when the factorization has
// filled past the configured ratio. It returns the strategy in force.
func (e *Engine) checkSwitch(updates *sparse.Vector, strategy Strategy) Strategy {
	if strategy == Dantzig {
		e.pivotSequence = -1
	}
	if e.mode != ModeAuto {
		return strategy
	}
	ratio := e.fillRatio()
	if strategy == Dantzig && ratio >= e.cfg.DevexFillRatio {
		e.escalate(updates, ratio)
		strategy = Devex
	}
	if strategy == Devex && ratio >= e.cfg.ExactFillRatio {
		e.escalate(updates, ratio)
		strategy = AutoExact
	}
	return strategy
}

func (e *Engine) escalate(updates *sparse.Vector, ratio float64) {
	updates.Clear()
	e.tableau.Clear()
	e.pivotSequence = -1
	e.numberSwitched++
	e.weights = nil
	e.logger.Info("switching pricing", "to", e.Strategy(),
		"elements", e.model.Factorization().NumberElements(), "ratio", ratio)
	e.SaveWeights(e.model, RestoreWeights)
}

// numberWanted is the scan budget for a set of number infeasibilities.
func numberWanted(strategy Strategy, ratio float64, number, numberColumns int) int {
	switch strategy {
	case Dantzig:
		switch {
		case ratio < 0.1:
			return max(100, number/200)
		case ratio < 0.15:
			return max(500, number/40)
		}
		return max(2000, number/10, numberColumns/30)
	case Devex:
		if ratio < 1.0 {
			return max(2000, number/20)
		}
		return max(2000, number/10, numberColumns/20)
	case FullExact, Steepest:
		return number + 1
	case PartialExact:
		return max(2000, number/8)
	}
	switch {
	case ratio < 1.0:
		return max(2000, number/20)
	case ratio < 5.0:
		return max(2000, number/10, numberColumns/40)
	case ratio < 10.0:
		return max(2000, number/8, numberColumns/20)
	}
	wanted := float64(number) * (ratio / 80.0)
	if wanted > float64(number) {
		return number + 1
	}
	return max(2000, int(wanted), numberColumns/10)
}

// bestCandidate scans the infeasibilities from the stored start and returns
// the best sequence, or -1.
func (e *Engine) bestCandidate(strategy Strategy, it Iteration, sequenceOut int) int {
	pivots := e.model.Factorization().Pivots()
	tolerance := recentTolerance(baseTolerance(it), it, pivots)
	if pivots > 0 && it.PrimalInfeasibilities > 0 {
		tolerance = max(tolerance, 1.0e-10*it.InfeasibilityCost)
	}
	wanted := numberWanted(strategy, e.fillRatio(), e.infeasible.Len(), e.model.NumberColumns())
	return e.scan(wanted, tolerance*tolerance, strategy != Dantzig, sequenceOut)
}

// scan makes two passes over the infeasibility set, from scanStart to the
// end and then from the beginning, stopping when wanted entries have been
// looked at. Flagged candidates are never chosen but use up budget like
// any other entry, as does sequenceOut.
func (e *Engine) scan(wanted int, tolerance float64, weighted bool, sequenceOut int) int {
	index := e.infeasible.Indices()
	number := len(index)
	start := int(float64(number) * e.scanStart)
	passes := [2][2]int{{start, number}, {0, start}}

	bestDj := 1.0e-30
	bestSequence := -1
	for _, pass := range passes {
		for i := pass[0]; i < pass[1]; i++ {
			seq := index[i]
			value := e.infeasible.At(seq)
			if seq != sequenceOut && value > tolerance {
				weight := 1.0
				if weighted {
					weight = e.weights[seq]
				}
				if value > bestDj*weight && !e.model.Flagged(seq) {
					bestDj = value / weight
					bestSequence = seq
				}
			}
			wanted--
			if wanted == 0 {
				return bestSequence
			}
		}
	}
	return bestSequence
}
