package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/ui"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label>...",
	Short: "Add labels to an issue",
	Args:  cobra.MinimumNArgs(2),
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

		changed := 0
		for _, label := range args[1:] {
			ok, err := store.AddLabel(ctx, id, label, actor())
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		touched(id)

		if jsonMode() {
			return outputJSON(map[string]int{"added": changed})
		}
		fmt.Printf("Added %d label(s) to %s\n", changed, ui.RenderID(id))
		return nil
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <label>...",
	Short: "Remove labels from an issue",
	Args:  cobra.MinimumNArgs(2),
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

		changed := 0
		for _, label := range args[1:] {
			ok, err := store.RemoveLabel(ctx, id, label, actor())
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		touched(id)

		if jsonMode() {
			return outputJSON(map[string]int{"removed": changed})
		}
		fmt.Printf("Removed %d label(s) from %s\n", changed, ui.RenderID(id))
		return nil
	},
}

var labelListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List an issue's labels",
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
		labels, err := store.GetLabels(ctx, id)
		if err != nil {
			return err
		}
		if jsonMode() {
			if labels == nil {
				labels = []string{}
			}
			return outputJSON(labels)
		}
		fmt.Println(strings.Join(labels, "\n"))
		return nil
	},
}

func init() {
	labelCmd.AddCommand(labelAddCmd, labelRemoveCmd, labelListCmd)
	rootCmd.AddCommand(labelCmd)
}
