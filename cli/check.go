package cli

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"q.log/steepest/instance"
)

var ErrMismatch = errors.New("objective differs from GLPK")

func newCheckCmd(g *globalFlags) *cobra.Command {
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "check <file.mps>...",
		Short: "Compare the solve with the GLPK simplex",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			var errs []error
			for _, path := range args {
				r := instance.NewReader(path)
				want, err := r.ReferenceObjective()
				if err != nil {
					errs = append(errs, err)
					continue
				}
				m, err := r.Read()
				if err != nil {
					errs = append(errs, err)
					continue
				}
				sol, err := solveModel(ctx, logger, m, cfg, nil)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if !agrees(sol.Objective, want, tolerance) {
					errs = append(errs, fmt.Errorf("%w: %s: got %.10g, want %.10g", ErrMismatch, path, sol.Objective, want))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\t%.10g\n", path, sol.Objective)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-6, "relative objective tolerance")

	return cmd
}

// agrees compares relative to max(1, |want|).
func agrees(got, want, tolerance float64) bool {
	return math.Abs(got-want) <= tolerance*math.Max(1, math.Abs(want))
}
