package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server operation statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	uptime := time.Duration(snap.UptimeSeconds * float64(time.Second)).Round(time.Second)
	fmt.Printf("Uptime: %s\n\n", defaultTheme.infoStyle().Render(uptime.String()))
	fmt.Printf("%-12s %8s %8s %10s %10s\n", "OPERATION", "COUNT", "FAILED", "AVG(MS)", "MAX(MS)")
	printOpRow("pull", snap.Pull)
	printOpRow("push", snap.Push)
	printOpRow("webhook", snap.Webhook)
	printOpRow("reindex", snap.ReindexRun)
	printOpRow("embed", snap.Embed)
	return nil
}

func printOpRow(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		fmt.Printf("%-12s %8s %8s %10s %10s\n", name, "-", "-", "-", "-")
		return
	}
	failed := fmt.Sprintf("%d", op.Failures)
	if op.Failures > 0 {
		failed = defaultTheme.errorStyle().Render(failed)
	}
	fmt.Printf("%-12s %8d %8s %10.1f %10d\n", name, op.Count, failed, op.AvgTimeMs, op.MaxTimeMs)
}
