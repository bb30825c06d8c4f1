package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var showFlags struct {
	comments bool
	events   bool
	format   string
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an issue in full (defaults to the last touched issue)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}

		input := ""
		if len(args) > 0 {
			input = args[0]
		}
		id, err := resolveID(ctx, input)
		if err != nil {
			return err
		}

		details, err := store.GetIssueDetails(ctx, id, storage.DetailOptions{
			IncludeComments: showFlags.comments,
			IncludeEvents:   showFlags.events,
		})
		if err != nil {
			return err
		}
		if details == nil {
			return errs.NotFound(id)
		}

		switch {
		case jsonMode():
			return outputJSON(details)
		case showFlags.format == "yaml":
			data, err := yaml.Marshal(details)
			if err != nil {
				return errs.Wrap(errs.CodeInternal, err, "failed to encode YAML")
			}
			fmt.Print(string(data))
			return nil
		default:
			return printDetails(details)
		}
	},
}

func printDetails(d *types.IssueDetails) error {
	fmt.Printf("%s  %s  %s  %s\n", ui.RenderID(d.ID), ui.RenderPriority(d.Priority), d.Status, d.Title)
	if d.Assignee != "" {
		fmt.Printf("Assignee: %s\n", d.Assignee)
	}
	if len(d.Labels) > 0 {
		fmt.Printf("Labels: %s\n", strings.Join(d.Labels, ", "))
	}
	if d.Parent != nil {
		fmt.Printf("Parent: %s\n", *d.Parent)
	}
	for _, dep := range d.Dependencies {
		fmt.Printf("Depends on: %s (%s, %s)\n", dep.ID, dep.DependencyType, dep.Status)
	}
	for _, dep := range d.Dependents {
		fmt.Printf("Blocks: %s (%s, %s)\n", dep.ID, dep.DependencyType, dep.Status)
	}

	if d.Description != "" {
		fmt.Println()
		fmt.Println(renderMarkdown(d.Description))
	}
	if d.Design != "" {
		fmt.Println(ui.RenderMuted("## Design"))
		fmt.Println(renderMarkdown(d.Design))
	}
	if d.AcceptanceCriteria != "" {
		fmt.Println(ui.RenderMuted("## Acceptance criteria"))
		fmt.Println(renderMarkdown(d.AcceptanceCriteria))
	}
	if d.Notes != "" {
		fmt.Println(ui.RenderMuted("## Notes"))
		fmt.Println(renderMarkdown(d.Notes))
	}

	for _, c := range d.Comments {
		fmt.Printf("%s %s: %s\n", ui.RenderMuted(c.CreatedAt.Format("2006-01-02 15:04")), c.Author, c.Text)
	}
	for _, e := range d.Events {
		note := ""
		if e.Comment != nil {
			note = *e.Comment
		}
		fmt.Printf("%s %s %s %s\n", ui.RenderMuted(e.CreatedAt.Format("2006-01-02 15:04")), e.EventType, e.Actor, note)
	}
	return nil
}

// renderMarkdown pretty-prints markdown on a tty and passes text through
// otherwise.
func renderMarkdown(body string) string {
	if !ui.IsTTY() {
		return body
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return body
	}
	out, err := r.Render(body)
	if err != nil {
		return body
	}
	return strings.TrimRight(out, "\n")
}

func init() {
	showCmd.Flags().BoolVar(&showFlags.comments, "comments", true, "include comments")
	showCmd.Flags().BoolVar(&showFlags.events, "events", false, "include the event journal")
	showCmd.Flags().StringVar(&showFlags.format, "format", "", "output format: yaml")
	rootCmd.AddCommand(showCmd)
}
