package main

import (
	"github.com/spf13/cobra"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

// newRootCmd wires the app once and hangs every subcommand off it,
// mirroring newRootCmd/wireApp from the accounts-CLI example: a wiring
// failure (almost always a ConfigError) becomes the root command's RunE
// instead of a log.Fatal, so the caller still gets a proper exit code.
func newRootCmd() (*cobra.Command, *app) {
	rootCmd := &cobra.Command{
		Use:           "chainforge",
		Short:         "chainforge: a builder/critics/closer multi-agent LLM orchestration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, nil
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newChainCmd(a),
		newLogsCmd(a),
		newLastCmd(a),
		newLastChainCmd(a),
		newMemoryCmd(a),
	)

	return rootCmd, a
}

// exactArgs wraps cobra.ExactArgs so an arity mismatch is reported as
// chainerr.ErrInvalidInput (exit code 2) rather than cobra's own usage
// error, keeping every invalid-argument path on the same exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return chainerr.InvalidInputf("%s expects exactly %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			return chainerr.InvalidInputf("%s expects between %d and %d arguments, got %d", cmd.Name(), min, max, len(args))
		}
		return nil
	}
}
