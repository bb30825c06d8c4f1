package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/storage"
)

var deleteFlags struct {
	reason  string
	cascade bool
	force   bool
	hard    bool
	dryRun  bool
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Soft-delete issues (tombstone), optionally cascading to dependents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		ids := make([]string, 0, len(args))
		for _, arg := range args {
			id, err := resolveID(ctx, arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		result, err := store.DeleteIssues(ctx, ids, storage.DeleteOptions{
			Reason:  deleteFlags.reason,
			Cascade: deleteFlags.cascade,
			Force:   deleteFlags.force,
			Hard:    deleteFlags.hard,
			DryRun:  deleteFlags.dryRun,
		}, actor())
		if err != nil {
			return err
		}
		if !deleteFlags.dryRun && len(result.Deleted) > 0 {
			touched(result.Deleted[0])
		}

		if jsonMode() {
			return outputJSON(result)
		}
		verb := "Deleted"
		if deleteFlags.dryRun {
			verb = "Would delete"
		}
		fmt.Printf("%s %d issue(s): %s\n", verb, len(result.Deleted), strings.Join(result.Deleted, ", "))
		if len(result.Orphaned) > 0 {
			fmt.Printf("Orphaned dependents: %s\n", strings.Join(result.Orphaned, ", "))
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteFlags.reason, "reason", "r", "", "delete reason")
	deleteCmd.Flags().BoolVar(&deleteFlags.cascade, "cascade", false, "also delete all transitive dependents")
	deleteCmd.Flags().BoolVar(&deleteFlags.force, "force", false, "delete even when dependents exist, orphaning them")
	deleteCmd.Flags().BoolVar(&deleteFlags.hard, "hard", false, "remove rows entirely instead of tombstoning")
	deleteCmd.Flags().BoolVar(&deleteFlags.dryRun, "dry-run", false, "compute the deletion set without writing")
	rootCmd.AddCommand(deleteCmd)
}
