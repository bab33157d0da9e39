package cli

import (
	"github.com/spf13/cobra"

	"q.log/steepest/instance"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file.mps>",
		Short: "Print the model read from an MPS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := instance.NewReader(args[0]).Read()
			if err != nil {
				return err
			}
			m.Format(cmd.OutOrStdout())
			return nil
		},
	}
}
