package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/kisanmitra/backend/internal/database"
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Report on and prune recorded operations",
}

var analyticsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Success rate, cache hit rate and latency over a trailing window",
	Long: `Summarizes analytics events for one operation (chat, feed, group_discover,
search, otp_request, otp_verify) or, with no --op, for each operation seen.

Examples:
  kisanctl analytics summary --op chat --window 24h
  kisanctl analytics summary --window 168h --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, _ := cmd.Flags().GetString("op")
		window, _ := cmd.Flags().GetDuration("window")
		if window <= 0 {
			return fmt.Errorf("--window must be positive")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		q := analytics.NewQuery(db)
		to := time.Now().UTC()
		from := to.Add(-window)
		ctx := cmd.Context()

		ops := []string{op}
		if op == "" {
			if ops, err = q.Operations(ctx, from, to); err != nil {
				return err
			}
		}

		summaries := make(map[string]analytics.Summary, len(ops))
		for _, o := range ops {
			s, err := q.Summary(ctx, o, from, to)
			if err != nil {
				return err
			}
			summaries[o] = s
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), summaries)
		}
		printSummaries(cmd.OutOrStdout(), summaries, window)
		return nil
	},
}

var analyticsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired events once (the server does this periodically)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		n, err := analytics.NewRetentionService(db, time.Hour).Purge(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int64{"deleted": n}, "✓ Deleted %d expired events", n)
	},
}

func init() {
	analyticsSummaryCmd.Flags().String("op", "", "Operation type (empty for all)")
	analyticsSummaryCmd.Flags().Duration("window", 24*time.Hour, "Trailing window")

	analyticsCmd.AddCommand(analyticsSummaryCmd)
	analyticsCmd.AddCommand(analyticsPurgeCmd)
}

func printSummaries(w io.Writer, summaries map[string]analytics.Summary, window time.Duration) {
	if len(summaries) == 0 {
		fmt.Fprintf(w, "No events in the last %s\n", window)
		return
	}
	ops := make([]string, 0, len(summaries))
	for op := range summaries {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	fmt.Fprintf(w, "Last %s\n\n", window)
	fmt.Fprintf(w, "%-16s %8s %8s %9s %10s %9s %8s\n", "OPERATION", "TOTAL", "ERRORS", "ERR RATE", "CACHE HIT", "AVG MS", "P95 MS")
	for _, op := range ops {
		s := summaries[op]
		name := op
		if name == "" {
			name = "(all)"
		}
		fmt.Fprintf(w, "%-16s %8d %8d %8.1f%% %9.1f%% %9.1f %8d\n",
			name, s.Total, s.Errors, s.ErrorRate*100, s.CacheHitRate*100, s.AvgMs, s.P95Ms)
	}
}
