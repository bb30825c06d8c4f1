package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/compact"
	"github.com/braid-dev/braid/internal/config"
)

var compactFlags struct {
	afterDays int
	limit     int
	dryRun    bool
	model     string
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Summarize old closed issues with Claude to reclaim space",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		afterDays := compactFlags.afterDays
		if afterDays <= 0 {
			afterDays = config.GetInt("compact.after-days")
		}
		model := compactFlags.model
		if model == "" {
			model = config.GetString("compact.model")
		}

		var summarizer compact.Summarizer
		if !compactFlags.dryRun {
			s, err := compact.NewHaikuSummarizer("", model)
			if err != nil {
				return err
			}
			summarizer = s
		}

		result, err := compact.Run(ctx, store, summarizer, afterDays, compactFlags.limit, actor(), compactFlags.dryRun)
		if err != nil {
			return err
		}

		if jsonMode() {
			return outputJSON(result)
		}
		if result.DryRun {
			fmt.Printf("%d candidate(s): %s\n", result.Candidates, strings.Join(result.Compacted, ", "))
			return nil
		}
		fmt.Printf("Compacted %d of %d candidate(s)\n", len(result.Compacted), result.Candidates)
		for _, f := range result.Failed {
			fmt.Printf("  failed: %s\n", f)
		}
		return nil
	},
}

func init() {
	compactCmd.Flags().IntVar(&compactFlags.afterDays, "after-days", 0, "compact issues closed at least this many days ago")
	compactCmd.Flags().IntVarP(&compactFlags.limit, "limit", "n", 0, "max issues to compact")
	compactCmd.Flags().BoolVar(&compactFlags.dryRun, "dry-run", false, "list candidates without calling the API")
	compactCmd.Flags().StringVar(&compactFlags.model, "model", "", "model to summarize with")
	rootCmd.AddCommand(compactCmd)
}
