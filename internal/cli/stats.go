package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/umlchat/internal/client"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/spf13/cobra"
)

var statsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show timing and token statistics from a running umlchat-server.

Examples:
  umlchat stats
  umlchat stats --server http://build-box:8485`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsServer, "server", "", "server URL (default $UMLCHAT_SERVER_URL or http://localhost:8485)")
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := client.New(statsServer).GetServerStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(cmd.OutOrStdout(), stats)
	return nil
}

// printServerStats displays runtime statistics.
func printServerStats(w io.Writer, stats *client.ServerStats) {
	fmt.Fprintf(w, "Server Stats (uptime: %s)\n", time.Duration(stats.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(w, "═══════════════════════════════════════\n")

	if stats.Completion == nil && stats.Render == nil && stats.Turn == nil {
		fmt.Fprintln(w, "\nNo turns yet.")
		return
	}

	if stats.Turn != nil {
		fmt.Fprintf(w, "\nTurns:\n")
		printOpStats(w, stats.Turn)
	}

	if stats.Completion != nil {
		fmt.Fprintf(w, "\nCompletion:\n")
		printOpStats(w, stats.Completion)
		printTokenStats(w, stats.Completion)
	}

	if stats.Render != nil {
		fmt.Fprintf(w, "\nRender:\n")
		printOpStats(w, stats.Render)
	}
}

// printLocalStats displays the in-process collector in the same layout.
func printLocalStats(w io.Writer, snap metrics.Snapshot) {
	printServerStats(w, &client.ServerStats{
		UptimeSeconds: snap.UptimeSeconds,
		Completion:    toOperationStats(snap.Completion),
		Render:        toOperationStats(snap.Render),
		Turn:          toOperationStats(snap.Turn),
	})
}

func toOperationStats(s *metrics.OperationSnapshot) *client.OperationStats {
	if s == nil {
		return nil
	}
	return &client.OperationStats{
		Count:             s.Count,
		Errors:            s.Errors,
		TotalTimeMs:       s.TotalTimeMs,
		AvgTimeMs:         s.AvgTimeMs,
		MinTimeMs:         s.MinTimeMs,
		MaxTimeMs:         s.MaxTimeMs,
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		AvgInputTokens:    s.AvgInputTokens,
		AvgOutputTokens:   s.AvgOutputTokens,
		MinInputTokens:    s.MinInputTokens,
		MaxInputTokens:    s.MaxInputTokens,
		MinOutputTokens:   s.MinOutputTokens,
		MaxOutputTokens:   s.MaxOutputTokens,
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *client.OperationStats) {
	fmt.Fprintf(w, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	if op.Count > 0 {
		fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
			op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *client.OperationStats) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
