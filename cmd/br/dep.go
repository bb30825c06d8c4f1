package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between issues",
}

var depAddType string

var depAddCmd = &cobra.Command{
	Use:   "add <id> <depends-on-id>",
	Short: "Add a dependency edge (id depends on depends-on-id)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		issueID, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		dependsOnID, err := resolveID(ctx, args[1])
		if err != nil {
			return err
		}
		depType := types.DependencyType(depAddType)
		if !depType.IsValid() {
			return errs.New(errs.CodeInvalidArgument, "invalid dependency type %q", depAddType)
		}

		dep := &types.Dependency{IssueID: issueID, DependsOnID: dependsOnID, Type: depType}
		if err := store.AddDependency(ctx, dep, actor()); err != nil {
			return err
		}
		touched(issueID)

		if jsonMode() {
			return outputJSON(dep)
		}
		fmt.Printf("%s now depends on %s (%s)\n", ui.RenderID(issueID), ui.RenderID(dependsOnID), depType)
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		issueID, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		dependsOnID, err := resolveID(ctx, args[1])
		if err != nil {
			return err
		}
		if err := store.RemoveDependency(ctx, issueID, dependsOnID, actor()); err != nil {
			return err
		}
		touched(issueID)

		if jsonMode() {
			return outputJSON(map[string]string{"removed": issueID + " -> " + dependsOnID})
		}
		fmt.Printf("Removed dependency %s -> %s\n", ui.RenderID(issueID), ui.RenderID(dependsOnID))
		return nil
	},
}

var depTreeFlags struct {
	maxDepth int
	mermaid  bool
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show the dependency tree of an issue",
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

		nodes, err := store.GetDependencyTree(ctx, id, depTreeFlags.maxDepth)
		if err != nil {
			return err
		}
		if jsonMode() {
			return outputJSON(nodes)
		}
		if depTreeFlags.mermaid {
			fmt.Print(ui.MermaidLines(nodes))
			return nil
		}
		fmt.Print(ui.TreeLines(nodes))
		return nil
	},
}

var depCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Report dependency cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		cycles, err := store.FindCycles(ctx)
		if err != nil {
			return err
		}
		if jsonMode() {
			if cycles == nil {
				cycles = [][]string{}
			}
			return outputJSON(cycles)
		}
		if len(cycles) == 0 {
			fmt.Println("No cycles found.")
			return nil
		}
		for _, cycle := range cycles {
			fmt.Printf("%s cycle: %v\n", ui.RenderWarn("!"), cycle)
		}
		return nil
	},
}

func init() {
	depAddCmd.Flags().StringVarP(&depAddType, "type", "t", string(types.DepBlocks), "edge type: blocks, parent-child, related, discovered-from")
	depTreeCmd.Flags().IntVar(&depTreeFlags.maxDepth, "max-depth", 0, "levels to show below the root (0 = default)")
	depTreeCmd.Flags().BoolVar(&depTreeFlags.mermaid, "mermaid", false, "emit a Mermaid flowchart")
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depTreeCmd, depCyclesCmd)
	rootCmd.AddCommand(depCmd)
}
