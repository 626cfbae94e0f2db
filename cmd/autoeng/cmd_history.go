package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"autoengineer/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded tool executions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old tool executions",
	Long: `Deletes executions older than --older-than, then all but the newest --keep.
Without flags, the store limits from config are applied.`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded tool executions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

func runHistory(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{store: true})
	if err != nil {
		return err
	}
	defer env.Close()
	st, err := env.requireStore()
	if err != nil {
		return err
	}

	toolName, _ := cmd.Flags().GetString("tool")
	session, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	var execs []store.ToolExecution
	switch {
	case session != "":
		execs, err = st.BySession(ctx, session, -1)
		if err == nil && toolName != "" {
			execs = filterTool(execs, toolName)
		}
		if len(execs) > limit && limit > 0 {
			execs = execs[:limit]
		}
	case toolName != "":
		execs, err = st.ByTool(ctx, toolName, limit)
	default:
		execs, err = st.Recent(ctx, limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(execs)
	}
	writeHistory(out, execs, time.Now())
	return nil
}

func filterTool(execs []store.ToolExecution, name string) []store.ToolExecution {
	kept := execs[:0]
	for _, e := range execs {
		if e.ToolName == name {
			kept = append(kept, e)
		}
	}
	return kept
}

func writeHistory(w io.Writer, execs []store.ToolExecution, now time.Time) {
	if len(execs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no recorded executions"))
		return
	}
	for _, e := range execs {
		mark := okMark()
		if !e.Success {
			mark = failMark()
		}
		fmt.Fprintf(w, "%s %-16s %8s %9s  %s",
			mark,
			e.ToolName,
			fmt.Sprintf("%dms", e.DurationMs),
			humanize.Bytes(uint64(e.ResultSize)),
			mutedStyle.Render(humanize.RelTime(e.CreatedAt, now, "ago", "from now")))
		if e.SessionID != "" {
			fmt.Fprintf(w, "  %s", mutedStyle.Render("session="+e.SessionID))
		}
		fmt.Fprintln(w)
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", failStyle.Render(firstLine(e.Error)))
		}
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{store: true})
	if err != nil {
		return err
	}
	defer env.Close()
	st, err := env.requireStore()
	if err != nil {
		return err
	}

	cfg := env.cfg.ToCleanupConfig()
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	keep, _ := cmd.Flags().GetInt("keep")
	if cmd.Flags().Changed("older-than") || cmd.Flags().Changed("keep") {
		cfg = store.CleanupConfig{Retention: olderThan, MaxRows: keep}
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	stats, err := st.Cleanup(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d executions (%d expired, %d over limit)\n",
		stats.ExecutionsDeleted(), stats.ExpiredDeleted, stats.OverflowDeleted)
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{store: true})
	if err != nil {
		return err
	}
	defer env.Close()
	st, err := env.requireStore()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	writeStats(cmd.OutOrStdout(), stats, st.Path(), time.Now())
	return nil
}

func writeStats(w io.Writer, stats *store.ToolStoreStats, path string, now time.Time) {
	fmt.Fprintln(w, headingStyle.Render("Tool history"))
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Store"), path)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Executions"), humanize.Comma(int64(stats.TotalExecutions)))
	fmt.Fprintf(w, "%s%s / %s\n", labelStyle.Render("Succeeded"),
		okStyle.Render(humanize.Comma(int64(stats.SuccessCount))),
		failStyle.Render(humanize.Comma(int64(stats.FailureCount))))
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Output"), humanize.Bytes(uint64(stats.TotalSizeBytes)))
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Time"), (time.Duration(stats.TotalDurationMs) * time.Millisecond).String())
	if stats.TotalExecutions > 0 {
		fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Oldest"), humanize.RelTime(stats.Oldest, now, "ago", "from now"))
		fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Newest"), humanize.RelTime(stats.Newest, now, "ago", "from now"))
	}

	names := make([]string, 0, len(stats.ToolBreakdown))
	for name := range stats.ToolBreakdown {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := stats.ToolBreakdown[names[i]], stats.ToolBreakdown[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, humanize.Comma(int64(stats.ToolBreakdown[name])))
	}
}
