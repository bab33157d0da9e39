package simplex

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Options of the primal driver. Start from DefaultOptions.
type Options struct {
	MaxIterations     int     `toml:"max_iterations" yaml:"max_iterations"`
	RefactorFrequency int     `toml:"refactor_frequency" yaml:"refactor_frequency"`
	PrimalTolerance   float64 `toml:"primal_tolerance" yaml:"primal_tolerance"`
	DualTolerance     float64 `toml:"dual_tolerance" yaml:"dual_tolerance"`
	// PivotTolerance is the smallest pivot accepted; smaller ones flag the
	// entering variable.
	PivotTolerance float64 `toml:"pivot_tolerance" yaml:"pivot_tolerance"`
	// InfeasibilityCost is the cost of the artificial columns.
	InfeasibilityCost float64 `toml:"infeasibility_cost" yaml:"infeasibility_cost"`
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:     10000,
		RefactorFrequency: 20,
		PrimalTolerance:   1.0e-7,
		DualTolerance:     1.0e-7,
		PivotTolerance:    1.0e-7,
		InfeasibilityCost: 1.0e5,
	}
}

func (o Options) Validate() error {
	switch {
	case o.MaxIterations <= 0:
		return fmt.Errorf("simplex: max_iterations must be positive, got %d", o.MaxIterations)
	case o.RefactorFrequency <= 0:
		return fmt.Errorf("simplex: refactor_frequency must be positive, got %d", o.RefactorFrequency)
	case o.PrimalTolerance <= 0 || o.DualTolerance <= 0 || o.PivotTolerance <= 0:
		return fmt.Errorf("simplex: tolerances must be positive")
	case o.InfeasibilityCost <= 0:
		return fmt.Errorf("simplex: infeasibility_cost must be positive, got %g", o.InfeasibilityCost)
	}
	return nil
}

type Option func(*Solver)

func WithLogger(logger *log.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// WithMetrics records the solve in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Solver) {
		s.metrics = m
	}
}
