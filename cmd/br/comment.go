package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage issue comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <id> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}

		comment, err := store.AddComment(ctx, id, actor(), args[1])
		if err != nil {
			return err
		}
		touched(id)

		if jsonMode() {
			return outputJSON(comment)
		}
		fmt.Printf("Commented on %s\n", ui.RenderID(id))
		return nil
	},
}

var commentListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List an issue's comments in chronological order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		comments, err := store.GetComments(ctx, id)
		if err != nil {
			return err
		}
		if jsonMode() {
			if comments == nil {
				comments = []*types.Comment{}
			}
			return outputJSON(comments)
		}
		for _, c := range comments {
			fmt.Printf("%s %s: %s\n", ui.RenderMuted(c.CreatedAt.Format("2006-01-02 15:04")), c.Author, c.Text)
		}
		return nil
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd, commentListCmd)
	rootCmd.AddCommand(commentCmd)
}
