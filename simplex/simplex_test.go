package simplex

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"q.log/steepest/model"
	"q.log/steepest/pricing"
)

var algorithms = []string{
	pricing.AlgorithmDantzig,
	pricing.AlgorithmAuto,
	pricing.AlgorithmAutoExact,
	pricing.AlgorithmExact,
	pricing.AlgorithmPartial,
	pricing.AlgorithmSteepest,
}

func newModel(t *testing.T, sense model.Sense, c []float64, a [][]float64, rowLower, rowUpper []float64) *model.Model {
	t.Helper()
	m := model.NewModel(len(a), len(c))
	m.Sense = sense
	require.NoError(t, m.SetC(c))
	var data []float64
	for _, row := range a {
		data = append(data, row...)
	}
	require.NoError(t, m.SetA(data))
	for i := range a {
		require.NoError(t, m.SetRowBounds(i, rowLower[i], rowUpper[i]))
	}
	return m
}

func newSolver(t *testing.T, m *model.Model, algorithm string, options ...Option) *Solver {
	t.Helper()
	cfg := pricing.DefaultConfig()
	cfg.Algorithm = algorithm
	p, err := pricing.NewPricer(cfg)
	require.NoError(t, err)
	s, err := New(m, p, DefaultOptions(), options...)
	require.NoError(t, err)
	return s
}

var inf = math.Inf(1)

// twoRows: min -x - y, x + 2y <= 4, 3x + y <= 6, x, y >= 0.
func twoRows(t *testing.T) *model.Model {
	return newModel(t, model.Minimize,
		[]float64{-1, -1},
		[][]float64{{1, 2}, {3, 1}},
		[]float64{-inf, -inf}, []float64{4, 6})
}

// boxed: max x + y, x + y <= 10, 0 <= x <= 3, 0 <= y <= 4.
func boxed(t *testing.T) *model.Model {
	m := newModel(t, model.Maximize,
		[]float64{1, 1},
		[][]float64{{1, 1}},
		[]float64{-inf}, []float64{10})
	require.NoError(t, m.SetColBounds(0, 0, 3))
	require.NoError(t, m.SetColBounds(1, 0, 4))
	return m
}

// equality: min 2x + 3y + z, x + y + z = 10, x - y >= 2, x, y, z >= 0.
func equality(t *testing.T) *model.Model {
	return newModel(t, model.Minimize,
		[]float64{2, 3, 1},
		[][]float64{{1, 1, 1}, {1, -1, 0}},
		[]float64{10, 2}, []float64{10, inf})
}

// freeColumn: min x + 2y, x + y >= 1, x - y >= -3, x free, y >= 0.
func freeColumn(t *testing.T) *model.Model {
	m := newModel(t, model.Minimize,
		[]float64{1, 2},
		[][]float64{{1, 1}, {1, -1}},
		[]float64{1, -3}, []float64{inf, inf})
	require.NoError(t, m.SetColBounds(0, -inf, inf))
	return m
}

// production is a small dense maximization.
func production(t *testing.T) *model.Model {
	return newModel(t, model.Maximize,
		[]float64{3, 2, 4, 1},
		[][]float64{
			{1, 1, 2, 1},
			{2, 0, 1, 3},
			{1, 3, 1, 0},
			{0, 1, 1, 1},
		},
		[]float64{-inf, -inf, -inf, -inf}, []float64{10, 12, 15, 8})
}

func assertFeasible(t *testing.T, m *model.Model, sol *Solution) {
	t.Helper()
	const tol = 1e-7
	for j, x := range sol.X {
		assert.GreaterOrEqual(t, x, m.ColLower[j]-tol, "column %d", j)
		assert.LessOrEqual(t, x, m.ColUpper[j]+tol, "column %d", j)
	}
	activity := m.RowActivity(sol.X)
	for i, r := range activity {
		assert.InDelta(t, r, sol.RowActivity[i], 1e-9, "row %d", i)
		assert.GreaterOrEqual(t, r, m.RowLower[i]-tol, "row %d", i)
		assert.LessOrEqual(t, r, m.RowUpper[i]+tol, "row %d", i)
	}
}

func TestSolve_KnownOptima(t *testing.T) {
	tests := []struct {
		name      string
		model     func(t *testing.T) *model.Model
		objective float64
		x         []float64
	}{
		{"two rows", twoRows, -2.8, []float64{1.6, 1.2}},
		{"boxed", boxed, 7, []float64{3, 4}},
		{"equality", equality, 12, []float64{2, 0, 8}},
		{"free column", freeColumn, 1, []float64{1, 0}},
	}
	for _, tt := range tests {
		for _, algorithm := range algorithms {
			t.Run(tt.name+"/"+algorithm, func(t *testing.T) {
				m := tt.model(t)
				sol, err := newSolver(t, m, algorithm).Solve(context.Background())
				require.NoError(t, err)
				assert.InDelta(t, tt.objective, sol.Objective, 1e-7)
				for j := range tt.x {
					assert.InDelta(t, tt.x[j], sol.X[j], 1e-7, "x%d", j)
				}
				assertFeasible(t, m, sol)
			})
		}
	}
}

func TestSolve_AlgorithmsAgree(t *testing.T) {
	m := production(t)
	reference, err := newSolver(t, m, pricing.AlgorithmDantzig).Solve(context.Background())
	require.NoError(t, err)
	assertFeasible(t, m, reference)

	for _, algorithm := range algorithms[1:] {
		t.Run(algorithm, func(t *testing.T) {
			sol, err := newSolver(t, production(t), algorithm).Solve(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, reference.Objective, sol.Objective, 1e-7)
			assertFeasible(t, m, sol)
			// every reduced cost has the optimal sign for a maximization
			for j, d := range sol.ReducedCosts {
				if sol.X[j] > 1e-7 {
					assert.InDelta(t, 0, d, 1e-7, "basic or free column %d", j)
				} else {
					assert.LessOrEqual(t, d, 1e-7, "column %d at lower bound", j)
				}
			}
		})
	}
}

func TestSolve_BoundFlips(t *testing.T) {
	sol, err := newSolver(t, boxed(t), pricing.AlgorithmSteepest).Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sol.Flips)
	assert.Equal(t, 2, sol.Iterations)
}

func TestSolve_ArtificialsOnWorkingCopy(t *testing.T) {
	tests := []struct {
		sense     model.Sense
		objective float64
	}{
		{model.Minimize, 12 + 5},
		// max -(2x + 3y + z) + 5
		{model.Maximize, -12 + 5},
	}
	for _, tt := range tests {
		t.Run(tt.sense.String(), func(t *testing.T) {
			m := equality(t)
			m.Offset = 5
			if tt.sense == model.Maximize {
				m.Sense = model.Maximize
				for j := range m.NumCols {
					m.C.Set(0, j, -m.C.At(0, j))
				}
			}
			s := newSolver(t, m, pricing.AlgorithmSteepest)
			assert.Equal(t, 5, s.NumberColumns(), "one artificial per violated row")

			sol, err := s.Solve(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, tt.objective, sol.Objective, 1e-7)
			assert.Len(t, sol.X, 3)

			assert.Equal(t, 3, m.NumCols)
			_, c := m.A.Dims()
			assert.Equal(t, 3, c)
			assert.Len(t, m.ColUpper, 3)
		})
	}
}

func TestSolve_SteepestWeightsAreNorms(t *testing.T) {
	m := production(t)
	cfg := pricing.DefaultConfig()
	cfg.Algorithm = pricing.AlgorithmSteepest
	engine, err := pricing.New(cfg)
	require.NoError(t, err)
	s, err := New(m, engine, DefaultOptions())
	require.NoError(t, err)

	sol, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Positive(t, sol.Iterations)

	for seq := range s.NumberColumns() + s.NumberRows() {
		status := s.Status(seq)
		if status == pricing.Basic || status == pricing.IsFixed {
			continue
		}
		s.matrix.Unpack(s.column, seq)
		s.factor.UpdateColumn(s.column)
		want := 1 + s.column.Norm2()
		s.column.Clear()
		assert.InEpsilon(t, want, engine.Weight(seq), 1e-8, "weight of %d", seq)
	}
}

func TestSolve_AutoLeavesDantzig(t *testing.T) {
	sol, err := newSolver(t, production(t), pricing.AlgorithmAuto).Solve(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sol.Pricing.Switches, 1)
	assert.GreaterOrEqual(t, sol.Pricing.Strategy, pricing.Devex)
}

func TestSolve_Infeasible(t *testing.T) {
	m := newModel(t, model.Minimize,
		[]float64{0, 0},
		[][]float64{{1, 1}, {1, 1}},
		[]float64{-inf, 3}, []float64{1, inf})
	for _, algorithm := range algorithms {
		t.Run(algorithm, func(t *testing.T) {
			_, err := newSolver(t, m, algorithm).Solve(context.Background())
			assert.ErrorIs(t, err, ErrInfeasible)
		})
	}
}

func TestSolve_Unbounded(t *testing.T) {
	m := newModel(t, model.Minimize,
		[]float64{-1, 0},
		[][]float64{{1, -1}},
		[]float64{-inf}, []float64{1})
	for _, algorithm := range algorithms {
		t.Run(algorithm, func(t *testing.T) {
			_, err := newSolver(t, m, algorithm).Solve(context.Background())
			assert.ErrorIs(t, err, ErrUnbounded)
		})
	}
}

func TestSolve_IterationLimit(t *testing.T) {
	cfg := pricing.DefaultConfig()
	p, err := pricing.NewPricer(cfg)
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.MaxIterations = 1
	s, err := New(production(t), p, opts)
	require.NoError(t, err)

	_, err = s.Solve(context.Background())
	assert.ErrorIs(t, err, ErrIterationLimit)
}

func TestSolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSolver(t, twoRows(t), pricing.AlgorithmAuto).Solve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_FrequentRefactorization(t *testing.T) {
	opts := DefaultOptions()
	opts.RefactorFrequency = 1
	for _, algorithm := range algorithms {
		t.Run(algorithm, func(t *testing.T) {
			cfg := pricing.DefaultConfig()
			cfg.Algorithm = algorithm
			p, err := pricing.NewPricer(cfg)
			require.NoError(t, err)
			s, err := New(production(t), p, opts)
			require.NoError(t, err)
			sol, err := s.Solve(context.Background())
			require.NoError(t, err)

			reference, err := newSolver(t, production(t), pricing.AlgorithmDantzig).Solve(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, reference.Objective, sol.Objective, 1e-7)
			assert.Greater(t, sol.Refactorizations, 1)
		})
	}
}

func TestSolver_SingularBasisGoesBack(t *testing.T) {
	s := newSolver(t, twoRows(t), pricing.AlgorithmSteepest)
	require.NoError(t, s.refactor())
	good := append([]int(nil), s.pivot...)

	s.pivot[0], s.pivot[1] = 0, 0
	s.it.SequenceIn = 0
	require.NoError(t, s.refactor())
	assert.Equal(t, good, s.pivot)
	assert.True(t, s.Flagged(0))

	sol, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -2.8, sol.Objective, 1e-7)
}

func TestSolve_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sol, err := newSolver(t, boxed(t), pricing.AlgorithmAuto, WithMetrics(metrics)).Solve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Iterations))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Flips))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refactorizations))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Strategy.WithLabelValues("dantzig")))
	assert.Equal(t, sol.Objective, testutil.ToFloat64(metrics.Objective))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WeightInitializations))
}

func TestNew_RejectsBadInput(t *testing.T) {
	p, err := pricing.NewPricer(pricing.DefaultConfig())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.RefactorFrequency = 0
	_, err = New(twoRows(t), p, opts)
	assert.Error(t, err)

	m := twoRows(t)
	m.ColLower[0] = 5
	m.ColUpper[0] = 1
	_, err = New(m, p, DefaultOptions())
	assert.ErrorIs(t, err, model.ErrBounds)
}
