package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/models"
)

var healthCmd = &cobra.Command{
	Use:   "health [site-id]",
	Short: "Show sync health",
	Long: `Show sync health for one site or the whole organization.

Examples:
  pressbridge health --org acme
  pressbridge health site-123 --org acme`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 1 {
		snap, err := apiClient.SiteHealth(ctx, orgID, args[0])
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}
		printHealthDetail(*snap)
		return nil
	}

	snaps, err := apiClient.OrgHealth(ctx, orgID)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Println("No active sites.")
		return nil
	}

	fmt.Printf("%-20s %-10s %8s %8s %8s %10s\n", "SITE", "STATUS", "PULL", "PUSH", "LAG(S)", "CONFLICTS")
	for _, snap := range snaps {
		fmt.Printf("%-20s %-10s %7.0f%% %7.0f%% %8.1f %10d\n",
			snap.SiteID,
			defaultTheme.renderStatus(snap.Status),
			snap.PullSuccessRate*100,
			snap.PushSuccessRate*100,
			snap.LagSeconds,
			snap.OpenConflicts)
	}
	return nil
}

func printHealthDetail(snap models.HealthSnapshot) {
	fmt.Printf("Site: %s\n", snap.SiteID)
	fmt.Printf("  Status: %s\n", defaultTheme.renderStatus(snap.Status))
	fmt.Printf("  Pull success rate: %.1f%%\n", snap.PullSuccessRate*100)
	fmt.Printf("  Push success rate: %.1f%%\n", snap.PushSuccessRate*100)
	fmt.Printf("  Avg sync lag: %.1fs\n", snap.LagSeconds)
	fmt.Printf("  Open conflicts: %d\n", snap.OpenConflicts)
	if snap.LastSuccessAt.IsZero() {
		fmt.Printf("  Last success: %s\n", defaultTheme.errorStyle().Render("never"))
	} else {
		fmt.Printf("  Last success: %s (%s ago)\n",
			snap.LastSuccessAt.Format(time.RFC3339),
			time.Since(snap.LastSuccessAt).Round(time.Second))
	}
}
