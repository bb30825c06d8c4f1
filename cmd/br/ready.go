package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List issues that are ready to work (unblocked, not deferred)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		issues, err := store.ReadyIssues(ctx, filter)
		if err != nil {
			return err
		}
		return printIssues(issues)
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List blocked issues with their blockers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		blocked, err := store.BlockedIssues(ctx, filter)
		if err != nil {
			return err
		}

		if jsonMode() {
			if blocked == nil {
				blocked = []*types.BlockedIssue{}
			}
			return outputJSON(blocked)
		}
		if len(blocked) == 0 {
			fmt.Println("Nothing is blocked.")
			return nil
		}
		for _, b := range blocked {
			fmt.Printf("%s  %s  %s\n", ui.RenderID(b.ID), b.Title,
				ui.RenderMuted("blocked by "+strings.Join(b.BlockedBy, ", ")))
		}
		return nil
	},
}

func init() {
	addFilterFlags(readyCmd)
	addFilterFlags(blockedCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(blockedCmd)
}
