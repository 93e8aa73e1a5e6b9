package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

const defaultCleanupAge = 7 * 24 * time.Hour

// exportLimit bounds `memory export`; large enough to dump an entire
// development database without paging, matching the single-shot nature of
// an export run from a terminal.
const exportLimit = 100000

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage the Conversation Store",
	}
	cmd.AddCommand(
		newMemorySearchCmd(a),
		newMemoryRecentCmd(a),
		newMemoryStatsCmd(a),
		newMemoryDeleteCmd(a),
		newMemoryCleanupCmd(a),
		newMemoryExportCmd(a),
	)
	return cmd
}

func newMemorySearchCmd(a *app) *cobra.Command {
	var agent string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Substring-search persisted prompts and responses",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.conversations.Search(cmd.Context(), args[0], agent, limit)
			if err != nil {
				return err
			}
			printConversationRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "restrict to one agent")
	cmd.Flags().IntVar(&limit, "limit", defaultLogsLimit, "maximum records to return")
	return cmd
}

func newMemoryRecentCmd(a *app) *cobra.Command {
	var agent string
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently persisted records",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.conversations.Recent(cmd.Context(), limit, agent)
			if err != nil {
				return err
			}
			printConversationRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "restrict to one agent")
	cmd.Flags().IntVar(&limit, "limit", defaultLogsLimit, "maximum records to return")
	return cmd
}

func newMemoryStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show total and per-agent/per-model accounting breakdowns",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.conversations.StatsSince(cmd.Context(), time.Time{})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "overall: requests=%d tokens=%d cost=$%.4f avg_duration=%.0fms\n",
				stats.Overall.RequestCount, stats.Overall.TotalTokens, stats.Overall.TotalCostUSD, stats.Overall.AvgDurationMS)
			for _, b := range stats.ByAgent {
				fmt.Fprintf(w, "agent=%-12s requests=%d tokens=%d cost=$%.4f avg_duration=%.0fms\n",
					b.Key, b.RequestCount, b.TotalTokens, b.TotalCostUSD, b.AvgDurationMS)
			}
			for _, b := range stats.ByModel {
				fmt.Fprintf(w, "model=%-20s requests=%d tokens=%d cost=$%.4f avg_duration=%.0fms\n",
					b.Key, b.RequestCount, b.TotalTokens, b.TotalCostUSD, b.AvgDurationMS)
			}
			return nil
		},
	}
}

func newMemoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one conversation record by id (idempotent)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return chainerr.InvalidInputf("memory delete: id must be an integer, got %q", args[0])
			}
			if err := a.conversations.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
}

func newMemoryCleanupCmd(a *app) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete conversations whose session was pruned for inactivity",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan := time.Now().Add(-time.Duration(hours) * time.Hour)
			n, err := a.conversations.Cleanup(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d record(s)\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "older-than-hours", int(defaultCleanupAge.Hours()), "age threshold in hours")
	return cmd
}

func newMemoryExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump every persisted conversation record as a JSON array",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.conversations.Recent(cmd.Context(), exportLimit, "")
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		},
	}
}
