package pricing

import "fmt"

// Algorithm names accepted in Config.Algorithm.
const (
	AlgorithmAuto      = "auto"
	AlgorithmAutoExact = "auto-exact"
	AlgorithmExact     = "exact"
	AlgorithmDantzig   = "dantzig"
	AlgorithmPartial   = "partial"
	AlgorithmSteepest  = "steepest"
)

// Mode is the user choice of weighting scheme for the Engine.
type Mode int

const (
	// ModeExact keeps exact reference-framework weights with a full scan.
	ModeExact Mode = iota
	// ModeSteepest keeps true steepest-edge norms with a full scan.
	ModeSteepest
	// ModePartial keeps exact weights with a partial scan.
	ModePartial
	// ModeAutoExact keeps exact weights, scan size driven by fill.
	ModeAutoExact
	// ModeAuto starts with Dantzig and moves to Devex then exact weights
	// as the factorization fills.
	ModeAuto
)

var modeNames = map[string]Mode{
	AlgorithmAuto:      ModeAuto,
	AlgorithmAutoExact: ModeAutoExact,
	AlgorithmExact:     ModeExact,
	AlgorithmPartial:   ModePartial,
	AlgorithmSteepest:  ModeSteepest,
}

func (m Mode) String() string {
	for name, mode := range modeNames {
		if mode == m {
			return name
		}
	}
	return "unknown"
}

// Strategy is the weighting currently in force. Values are ordered: an
// Engine never moves to a lower Strategy during a solve.
type Strategy int

const (
	Dantzig Strategy = iota
	Devex
	AutoExact
	PartialExact
	FullExact
	Steepest
)

func (s Strategy) String() string {
	switch s {
	case Dantzig:
		return "dantzig"
	case Devex:
		return "devex"
	case AutoExact:
		return "auto-exact"
	case PartialExact:
		return "partial-exact"
	case FullExact:
		return "exact"
	case Steepest:
		return "steepest"
	}
	return "unknown"
}

// exact reports whether the strategy runs the steepest-edge recurrence with
// the alternate vector.
func (s Strategy) exact() bool {
	return s >= AutoExact
}

// Config for the pricers. The zero value is not valid; start from
// DefaultConfig.
type Config struct {
	Algorithm string `toml:"algorithm" yaml:"algorithm"`
	// Seed of the scan start generator.
	Seed uint64 `toml:"seed" yaml:"seed"`
	// DevexFillRatio is the fill ratio at which auto mode leaves Dantzig.
	DevexFillRatio float64 `toml:"devex_fill_ratio" yaml:"devex_fill_ratio"`
	// ExactFillRatio is the fill ratio at which auto mode leaves Devex.
	ExactFillRatio float64 `toml:"exact_fill_ratio" yaml:"exact_fill_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Algorithm:      AlgorithmAuto,
		Seed:           1,
		DevexFillRatio: 0.2,
		ExactFillRatio: 4.0,
	}
}

func (c Config) Validate() error {
	if c.Algorithm != AlgorithmDantzig {
		if _, ok := modeNames[c.Algorithm]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, c.Algorithm)
		}
	}
	if c.DevexFillRatio <= 0 {
		return fmt.Errorf("pricing: devex_fill_ratio must be positive, got %g", c.DevexFillRatio)
	}
	if c.ExactFillRatio < c.DevexFillRatio {
		return fmt.Errorf("pricing: exact_fill_ratio %g below devex_fill_ratio %g",
			c.ExactFillRatio, c.DevexFillRatio)
	}
	return nil
}

// Mode returns the engine mode for the configured algorithm.
func (c Config) Mode() (Mode, error) {
	mode, ok := modeNames[c.Algorithm]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, c.Algorithm)
	}
	return mode, nil
}
