package main

import (
	"github.com/spf13/cobra"
)

// newAskCmd implements `chainforge ask <agent> <prompt>`: one direct call
// to a single configured agent, bypassing the critic/refinement pipeline.
func newAskCmd(a *app) *cobra.Command {
	var overrideModel string

	cmd := &cobra.Command{
		Use:   "ask <agent> <prompt>",
		Short: "Call a single configured agent directly",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID, err := cliSessionID(ctx, a)
			if err != nil {
				return err
			}

			result, err := a.engine.Ask(ctx, args[0], args[1], sessionID, overrideModel)
			if err != nil {
				return err
			}
			printRunResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&overrideModel, "model", "", "override the agent's configured model (provider/model), suppressing fallback")
	return cmd
}
