package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchScope   string
	searchNoDecay bool
	searchPlain   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Long: `Search stored memories with hybrid semantic and keyword
retrieval. Use --plain for the legacy content-only output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (0 uses the configured default)")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "restrict search to a scope key")
	searchCmd.Flags().BoolVar(&searchNoDecay, "no-decay", false, "disable time decay scoring")
	searchCmd.Flags().BoolVar(&searchPlain, "plain", false, "print matching contents only")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	query := strings.Join(args, " ")

	if searchPlain {
		for _, content := range rt.manager.SearchMemory(ctx, query, searchLimit, searchScope) {
			fmt.Println(content)
		}
		return nil
	}

	opts := rt.manager.DefaultSearchOptions()
	opts.Scope = searchScope
	if searchLimit > 0 {
		opts.Limit = searchLimit
	}
	if searchNoDecay {
		opts.UseTimeDecay = false
	}

	results := rt.manager.HybridSearch(ctx, query, opts)
	if len(results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%2d. [%.4f] (%s, id=%d, %.0fd old) %s\n",
			i+1, r.Score, r.Provenance, r.MemoryID, r.AgeDays, r.Content)
	}
	return nil
}
