package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	conflictSite string
	resolveNote  string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List open sync conflicts",
	Long: `List open sync conflicts for the organization.

Examples:
  pressbridge conflicts --org acme
  pressbridge conflicts --org acme --site site-123
  pressbridge conflicts resolve abc12345 --org acme --note "kept local"`,
	RunE: runConflicts,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Mark a conflict as resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	conflictsCmd.Flags().StringVarP(&conflictSite, "site", "s", "", "filter by site id")
	resolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")
	conflictsCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	recs, err := apiClient.Conflicts(context.Background(), orgID, conflictSite)
	if err != nil {
		return fmt.Errorf("list conflicts: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println(defaultTheme.successStyle().Render("No open conflicts."))
		return nil
	}

	fmt.Printf("Open conflicts (%d):\n\n", len(recs))
	for _, rec := range recs {
		fmt.Printf("- %s  content %s  site %s  detected %s\n",
			defaultTheme.warnStyle().Render(rec.ID),
			rec.ContentID,
			rec.SiteID,
			rec.DetectedAt.Format("2006-01-02 15:04"))
		if verbose {
			fmt.Printf("    local:  %s (%q)\n", rec.LocalSnapshot.RevisionMarker, rec.LocalSnapshot.Title)
			fmt.Printf("    remote: %s (%q)\n", rec.RemoteSnapshot.RevisionMarker, rec.RemoteSnapshot.Title)
		}
	}
	fmt.Println(defaultTheme.hintStyle().Render("\nResolve with: pressbridge conflicts resolve <id>"))
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := apiClient.ResolveConflict(context.Background(), args[0], resolveNote); err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	fmt.Println(defaultTheme.successStyle().Render("✓ Resolved ") + args[0])
	return nil
}
