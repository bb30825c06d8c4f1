package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/ui"
)

var closeReason string

var closeCmd = &cobra.Command{
	Use:   "close <id>...",
	Short: "Close one or more issues",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		var closed []string
		for _, arg := range args {
			id, err := resolveID(ctx, arg)
			if err != nil {
				return err
			}
			if _, err := store.CloseIssue(ctx, id, closeReason, actor()); err != nil {
				return err
			}
			touched(id)
			closed = append(closed, id)
		}

		if jsonMode() {
			return outputJSON(map[string][]string{"closed": closed})
		}
		for _, id := range closed {
			fmt.Printf("Closed %s\n", ui.RenderID(id))
		}
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>...",
	Short: "Reopen closed issues",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		var reopened []string
		for _, arg := range args {
			id, err := resolveID(ctx, arg)
			if err != nil {
				return err
			}
			if _, err := store.ReopenIssue(ctx, id, actor()); err != nil {
				return err
			}
			touched(id)
			reopened = append(reopened, id)
		}

		if jsonMode() {
			return outputJSON(map[string][]string{"reopened": reopened})
		}
		for _, id := range reopened {
			fmt.Printf("Reopened %s\n", ui.RenderID(id))
		}
		return nil
	},
}

func init() {
	closeCmd.Flags().StringVarP(&closeReason, "reason", "r", "", "close reason")
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
}
