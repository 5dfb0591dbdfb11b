package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/sync"
)

var (
	pushSite   string
	pushAction string
)

var pushCmd = &cobra.Command{
	Use:   "push <content-id>",
	Short: "Push a content item to its WordPress site",
	Long: `Push one content item to its WordPress site.

Actions:
  create   Create the remote post (first push)
  update   Update the existing remote post
  publish  Flip the remote post to published

Examples:
  pressbridge push content-42 --org acme --site site-123 --action create
  pressbridge push content-42 --org acme --site site-123 --action publish`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushSite, "site", "s", "", "target site id (required)")
	pushCmd.Flags().StringVarP(&pushAction, "action", "a", "update", "push action: create, update or publish")
	_ = pushCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	action := sync.PushAction(pushAction)
	switch action {
	case sync.ActionCreate, sync.ActionUpdate, sync.ActionPublish:
	default:
		return fmt.Errorf("unknown action %q (want create, update or publish)", pushAction)
	}

	result, err := apiClient.Push(context.Background(), sync.PushRequest{
		OrgID:         orgID,
		SiteID:        pushSite,
		ContentID:     args[0],
		Action:        action,
		CorrelationID: uuid.New().String()[:8],
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	if result.NoOp {
		fmt.Println(defaultTheme.hintStyle().Render("Nothing to push, revision already synced."))
		return nil
	}

	if result.Conflict {
		fmt.Println(defaultTheme.warnStyle().Render("⚠ Push parked, the remote post was edited independently."))
		fmt.Printf("  Conflict: %s\n", result.ConflictID)
		fmt.Println(defaultTheme.hintStyle().Render("Resolve it with 'pressbridge conflicts resolve' and push again."))
		return nil
	}

	fmt.Println(defaultTheme.successStyle().Render("✓ Pushed"))
	fmt.Printf("  Remote post: %d\n", result.RemotePostID)
	if result.RemoteURL != "" {
		fmt.Printf("  URL: %s\n", result.RemoteURL)
	}
	return nil
}
