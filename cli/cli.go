// Package cli implements the steepest command-line interface.
//
// # Commands
//
//   - solve: run the primal simplex on an MPS file and print the solution
//   - show: print the model read from an MPS file
//   - check: compare the solve against the GLPK simplex on the same file
//
// All commands accept --verbose (-v) for debug logging and --config for a
// TOML or YAML settings file. --algorithm and --seed override the file.
package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"q.log/steepest/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose    bool
	configPath string
	algorithm  string
	seed       uint64
}

// load reads the config file and applies the flags the user set.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Pricing.Algorithm = g.algorithm
	}
	if flags.Changed("seed") {
		cfg.Pricing.Seed = g.seed
	}
	return cfg, cfg.Validate()
}

// Execute runs the CLI until the command returns or ctx is canceled.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "steepest",
		Short:         "Primal simplex with steepest-edge pricing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if g.verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVarP(&g.configPath, "config", "c", "", "TOML or YAML settings file")
	flags.StringVarP(&g.algorithm, "algorithm", "a", "", "pricing: auto, auto-exact, exact, partial, steepest or dantzig")
	flags.Uint64Var(&g.seed, "seed", 0, "seed of the partial scan start")

	root.AddCommand(newSolveCmd(g))
	root.AddCommand(newShowCmd())
	root.AddCommand(newCheckCmd(g))

	return root
}
