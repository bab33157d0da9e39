package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"q.log/steepest/config"
	"q.log/steepest/instance"
	"q.log/steepest/model"
	"q.log/steepest/pricing"
	"q.log/steepest/simplex"
)

type solveOpts struct {
	metricsFile string
	all         bool
}

func newSolveCmd(g *globalFlags) *cobra.Command {
	var opts solveOpts

	cmd := &cobra.Command{
		Use:   "solve <file.mps>",
		Short: "Solve an MPS file with the primal simplex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			return runSolve(cmd.Context(), cmd.OutOrStdout(), args[0], cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write solver metrics in the Prometheus text format")
	cmd.Flags().BoolVar(&opts.all, "all", false, "print zero columns too")

	return cmd
}

func runSolve(ctx context.Context, w io.Writer, path string, cfg config.Config, opts solveOpts) error {
	logger := loggerFromContext(ctx)

	m, err := instance.NewReader(path).Read()
	if err != nil {
		return err
	}
	logger.Debug("model read", "file", path, "rows", m.NumRows, "cols", m.NumCols)

	reg := prometheus.NewRegistry()
	sol, err := solveModel(ctx, logger, m, cfg, simplex.NewMetrics(reg))
	if opts.metricsFile != "" {
		// written for failed solves too
		if werr := prometheus.WriteToTextfile(opts.metricsFile, reg); werr != nil {
			logger.Warn("metrics not written", "file", opts.metricsFile, "err", werr)
		}
	}
	if err != nil {
		return err
	}
	writeSolution(w, m, sol, opts.all)
	return nil
}

// solveModel runs the primal simplex on m with the pricer cfg names.
func solveModel(ctx context.Context, logger *log.Logger, m *model.Model, cfg config.Config, metrics *simplex.Metrics) (*simplex.Solution, error) {
	pricer, err := pricing.NewPricer(cfg.Pricing, pricing.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s, err := simplex.New(m, pricer, cfg.Simplex, simplex.WithLogger(logger), simplex.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	p := newProgress(logger)
	sol, err := s.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("solve %s: %w", m.Name, err)
	}
	p.done("solved", "algorithm", cfg.Pricing.Algorithm, "iterations", sol.Iterations)
	return sol, nil
}

func writeSolution(w io.Writer, m *model.Model, sol *simplex.Solution, all bool) {
	fmt.Fprintf(w, "objective\t%.10g\n", sol.Objective)
	fmt.Fprintf(w, "iterations\t%d (%d flips, %d refactorizations)\n",
		sol.Iterations, sol.Flips, sol.Refactorizations)
	fmt.Fprintf(w, "pricing\t%s (%d weight initializations)\n",
		sol.Pricing.Strategy, sol.Pricing.Initializations)

	fmt.Fprintln(w, solutionTable(m, sol, all).Render())
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// solutionTable lists the columns with a nonzero value, or all of them.
func solutionTable(m *model.Model, sol *simplex.Solution, all bool) *table.Table {
	var rows [][]string
	for c := range m.NumCols {
		if !all && sol.X[c] == 0 {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(c),
			strconv.FormatFloat(sol.X[c], 'g', 6, 64),
			strconv.FormatFloat(sol.ReducedCosts[c], 'g', 6, 64),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("column", "value", "reduced cost").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle().Align(lipgloss.Right)
		})
}
