package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

const defaultLogsLimit = 20

// lastChainLimit bounds how many of the current CLI session's most recent
// records `last-chain` shows. A chain run persists one record per agent
// call (builder, each critic, each refinement builder and critic call,
// closer; the merged consensus is not persisted), so with the default
// agents.yaml (max_critics 3, max_iterations 2) one chain can persist up
// to 13 records. A chain with more records than this cap is shown only
// by its most recent 8; there is no dedicated chain-grouping column.
const lastChainLimit = 8

func newLogsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logs [limit]",
		Short: "Show the most recently persisted conversation records",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := defaultLogsLimit
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return chainerr.InvalidInputf("logs: limit must be a positive integer, got %q", args[0])
				}
				limit = n
			}
			recs, err := a.conversations.Recent(cmd.Context(), limit, "")
			if err != nil {
				return err
			}
			printConversationRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func newLastCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Show the most recent conversation record for this CLI session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID, err := cliSessionID(ctx, a)
			if err != nil {
				return err
			}
			recs, err := a.conversations.GetRecentBySession(ctx, sessionID, 1)
			if err != nil {
				return err
			}
			printConversationRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func newLastChainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "last-chain",
		Short: "Show the records from this CLI session's most recent chain run",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID, err := cliSessionID(ctx, a)
			if err != nil {
				return err
			}
			recs, err := a.conversations.GetRecentBySession(ctx, sessionID, lastChainLimit)
			if err != nil {
				return err
			}
			printConversationRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}
