package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/sync"
)

var pullLimit int

var pullCmd = &cobra.Command{
	Use:   "pull [site-id]",
	Short: "Trigger an incremental pull",
	Long: `Trigger an incremental pull from WordPress.

With a site id, pulls that one site. Without, pulls every due site of the
organization.

Examples:
  pressbridge pull --org acme
  pressbridge pull site-123 --org acme --limit 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPull,
}

func init() {
	pullCmd.Flags().IntVarP(&pullLimit, "limit", "n", 0, "max items per site (0 = server default)")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 1 {
		result, err := apiClient.PullSite(ctx, orgID, args[0], pullLimit)
		if err != nil {
			return fmt.Errorf("pull: %w", err)
		}
		printPullResult(*result)
		return nil
	}

	results, err := apiClient.PullAll(ctx, orgID, pullLimit)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No sites were due for a pull.")
		return nil
	}
	for _, r := range results {
		printPullResult(r)
	}
	return nil
}

func printPullResult(r sync.PullResult) {
	if r.SkippedThrottled {
		fmt.Printf("%s  %s\n", r.SiteID, defaultTheme.hintStyle().Render("throttled, skipped"))
		return
	}

	fmt.Printf("%s  fetched %d, applied %d", r.SiteID, r.Fetched, r.Applied)
	if r.Conflicts > 0 {
		fmt.Printf(", %s", defaultTheme.warnStyle().Render(fmt.Sprintf("%d conflicts", r.Conflicts)))
	}
	if len(r.Errors) > 0 {
		fmt.Printf(", %s", defaultTheme.errorStyle().Render(fmt.Sprintf("%d errors", len(r.Errors))))
	}
	if !r.NewCursor.IsZero() {
		fmt.Printf("  (cursor %s)", r.NewCursor.Format(time.RFC3339))
	}
	fmt.Println()

	if verbose {
		for _, e := range r.Errors {
			fmt.Printf("  - %s [%s] %s\n", e.ID, e.Code, e.Message)
		}
	}
}
