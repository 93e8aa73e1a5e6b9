package main

import (
	"github.com/spf13/cobra"
)

// newChainCmd implements `chainforge chain <prompt>`: the full
// builder -> critics -> refine -> closer pipeline. A trailing "stages"
// argument list is accepted for parity with the HTTP /chain request body
// but is currently unused, since the runtime always runs the complete
// pipeline.
func newChainCmd(a *app) *cobra.Command {
	var overrideModel string

	cmd := &cobra.Command{
		Use:   "chain <prompt> [stages...]",
		Short: "Run the full builder/critics/refine/closer pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID, err := cliSessionID(ctx, a)
			if err != nil {
				return err
			}

			results, err := a.engine.Chain(ctx, args[0], sessionID, overrideModel)
			if err != nil {
				printRunResults(cmd.OutOrStdout(), results)
				return err
			}
			printRunResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().StringVar(&overrideModel, "model", "", "override the builder/closer model (provider/model), suppressing fallback")
	return cmd
}
