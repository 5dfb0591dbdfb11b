// Package cli provides the operator command-line interface for pressbridge.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	apiToken  string
	orgID     string
	verbose   bool

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pressbridge",
	Short: "CMS-WordPress sync engine operator CLI",
	Long: `Pressbridge keeps CMS content and WordPress sites in sync in both
directions and feeds changed content into the embedding reindex queue.

This CLI talks to a running pressbridge server: trigger pulls and pushes,
inspect sync health and conflicts, and run reindex batches.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL, apiToken)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $PRESSBRIDGE_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "bearer token (default $PRESSBRIDGE_API_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&orgID, "org", "o", "", "organization id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// requireOrg errors when the --org flag is missing.
func requireOrg() error {
	if orgID == "" {
		return fmt.Errorf("--org is required (or set it per command)")
	}
	return nil
}
