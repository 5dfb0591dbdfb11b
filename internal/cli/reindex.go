package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	reindexLimit   int
	reindexProcess bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Run an incremental reindex pass",
	Long: `Scan for content whose embeddings drifted from the stored body and
queue embedding jobs for them. With --process, queued jobs are embedded
in the same call.

Examples:
  pressbridge reindex
  pressbridge reindex --limit 50 --process`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().IntVarP(&reindexLimit, "limit", "n", 0, "max admissions this run (0 = server default)")
	reindexCmd.Flags().BoolVar(&reindexProcess, "process", false, "embed queued jobs after admission")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	report, err := apiClient.ReindexRun(context.Background(), reindexLimit, reindexProcess)
	if err != nil {
		return fmt.Errorf("reindex run: %w", err)
	}

	adm := report.Admission
	fmt.Printf("Queued %s jobs", defaultTheme.infoStyle().Render(fmt.Sprintf("%d", adm.Queued)))
	if adm.SkippedThrottled > 0 {
		fmt.Printf(", %d throttled", adm.SkippedThrottled)
	}
	if adm.SkippedBlocked > 0 {
		fmt.Printf(", %d blocked", adm.SkippedBlocked)
	}
	fmt.Println()

	if verbose && len(adm.ByType) > 0 {
		fmt.Println("\nBy source type:")
		for _, k := range sortedKeys(adm.ByType) {
			fmt.Printf("  %-12s %d\n", k, adm.ByType[k])
		}
	}
	if verbose && len(adm.ByTenant) > 0 {
		fmt.Println("By tenant:")
		for _, k := range sortedKeys(adm.ByTenant) {
			fmt.Printf("  %-12s %d\n", k, adm.ByTenant[k])
		}
	}
	for _, e := range adm.Errors {
		fmt.Println(defaultTheme.errorStyle().Render("admission error: ") + e)
	}

	if report.Work != nil {
		w := report.Work
		fmt.Printf("\nProcessed %d jobs", w.Processed)
		if w.Failed > 0 {
			fmt.Printf(" (%s failed)", defaultTheme.errorStyle().Render(fmt.Sprintf("%d", w.Failed)))
		}
		fmt.Println()
		for _, e := range w.Errors {
			fmt.Println(defaultTheme.errorStyle().Render("embed error: ") + e)
		}
	} else if adm.Queued > 0 {
		fmt.Println(defaultTheme.hintStyle().Render("Jobs stay queued; rerun with --process to embed them."))
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
