package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/timeparse"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var createFlags struct {
	id          string
	description string
	design      string
	acceptance  string
	notes       string
	issueType   string
	priority    int
	assignee    string
	owner       string
	labels      []string
	deps        []string
	due         string
	deferUntil  string
	estimate    int
	externalRef string
	parent      string
	interactive bool
}

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new issue",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		if err := requireWritable(); err != nil {
			return err
		}

		title := ""
		if len(args) > 0 {
			title = args[0]
		}

		if createFlags.interactive {
			if err := runCreateForm(&title); err != nil {
				return err
			}
		}
		if strings.TrimSpace(title) == "" {
			return errs.New(errs.CodeInvalidArgument, "title is required")
		}

		issueType := types.IssueType(createFlags.issueType).Normalize()
		issue := &types.Issue{
			ID:                 createFlags.id,
			Title:              title,
			Description:        createFlags.description,
			Design:             createFlags.design,
			AcceptanceCriteria: createFlags.acceptance,
			Notes:              createFlags.notes,
			Status:             types.StatusOpen,
			Priority:           createFlags.priority,
			IssueType:          issueType,
			Assignee:           createFlags.assignee,
			Owner:              createFlags.owner,
		}
		if createFlags.estimate > 0 {
			issue.EstimatedMinutes = &createFlags.estimate
		}
		if createFlags.externalRef != "" {
			issue.ExternalRef = &createFlags.externalRef
		}

		now := time.Now()
		if createFlags.due != "" {
			t, err := timeparse.Parse(createFlags.due, now)
			if err != nil {
				return errs.Wrap(errs.CodeInvalidArgument, err, "invalid --due")
			}
			issue.DueAt = &t
		}
		if createFlags.deferUntil != "" {
			t, err := timeparse.Parse(createFlags.deferUntil, now)
			if err != nil {
				return errs.Wrap(errs.CodeInvalidArgument, err, "invalid --defer")
			}
			issue.DeferUntil = &t
		}

		// Children of a parent get hierarchical IDs.
		if createFlags.parent != "" && issue.ID == "" {
			parentID, err := resolveID(ctx, createFlags.parent)
			if err != nil {
				return err
			}
			childID, err := store.NextChildID(ctx, parentID)
			if err != nil {
				return err
			}
			issue.ID = childID
		}

		if err := store.CreateIssue(ctx, issue, actor()); err != nil {
			return err
		}
		touched(issue.ID)

		for _, label := range createFlags.labels {
			if _, err := store.AddLabel(ctx, issue.ID, label, actor()); err != nil {
				return err
			}
		}
		if createFlags.parent != "" {
			parentID, err := resolveID(ctx, createFlags.parent)
			if err != nil {
				return err
			}
			dep := &types.Dependency{IssueID: issue.ID, DependsOnID: parentID, Type: types.DepParentChild}
			if err := store.AddDependency(ctx, dep, actor()); err != nil {
				return err
			}
		}
		for _, spec := range createFlags.deps {
			dep, err := parseDepSpec(ctx, issue.ID, spec)
			if err != nil {
				return err
			}
			if err := store.AddDependency(ctx, dep, actor()); err != nil {
				return err
			}
		}

		created, err := store.GetIssue(ctx, issue.ID)
		if err != nil {
			return err
		}
		if jsonMode() {
			return outputJSON(created)
		}
		fmt.Printf("Created %s: %s\n", ui.RenderID(created.ID), created.Title)
		return nil
	},
}

// parseDepSpec parses "id" or "type:id" into a dependency edge.
func parseDepSpec(ctx context.Context, issueID, spec string) (*types.Dependency, error) {
	depType := types.DepBlocks
	target := spec
	if idx := strings.Index(spec, ":"); idx > 0 {
		depType = types.DependencyType(spec[:idx])
		target = spec[idx+1:]
	}
	if !depType.IsValid() {
		return nil, errs.New(errs.CodeInvalidArgument, "invalid dependency type in %q", spec)
	}
	resolved, err := resolveID(ctx, target)
	if err != nil {
		return nil, err
	}
	return &types.Dependency{IssueID: issueID, DependsOnID: resolved, Type: depType}, nil
}

// runCreateForm collects issue fields interactively.
func runCreateForm(title *string) error {
	priority := strconv.Itoa(createFlags.priority)
	issueType := createFlags.issueType
	labels := strings.Join(createFlags.labels, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(title),
			huh.NewText().Title("Description").Value(&createFlags.description),
			huh.NewSelect[string]().Title("Type").
				Options(
					huh.NewOption("task", "task"),
					huh.NewOption("bug", "bug"),
					huh.NewOption("feature", "feature"),
					huh.NewOption("epic", "epic"),
					huh.NewOption("chore", "chore"),
					huh.NewOption("spike", "spike"),
					huh.NewOption("doc", "doc"),
					huh.NewOption("test", "test"),
					huh.NewOption("other", "other"),
				).Value(&issueType),
			huh.NewSelect[string]().Title("Priority").
				Options(
					huh.NewOption("P0 critical", "0"),
					huh.NewOption("P1 high", "1"),
					huh.NewOption("P2 medium", "2"),
					huh.NewOption("P3 low", "3"),
					huh.NewOption("P4 backlog", "4"),
				).Value(&priority),
			huh.NewInput().Title("Assignee").Value(&createFlags.assignee),
			huh.NewInput().Title("Labels (comma-separated)").Value(&labels),
		),
	)
	if err := form.Run(); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "form aborted")
	}

	createFlags.issueType = issueType
	createFlags.priority = parsePriorityChoice(priority, createFlags.priority)
	createFlags.labels = splitLabels(labels)
	return nil
}

// splitLabels parses a comma-separated label list, dropping empties.
func splitLabels(raw string) []string {
	var labels []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// parsePriorityChoice converts a form priority selection, keeping the
// previous value when the selection does not parse.
func parsePriorityChoice(raw string, fallback int) int {
	p, err := strconv.Atoi(raw)
	if err != nil || p < 0 || p > 4 {
		return fallback
	}
	return p
}

func init() {
	createCmd.Flags().StringVar(&createFlags.id, "id", "", "explicit issue ID (default: generated)")
	createCmd.Flags().StringVarP(&createFlags.description, "description", "d", "", "issue description")
	createCmd.Flags().StringVar(&createFlags.design, "design", "", "design notes")
	createCmd.Flags().StringVar(&createFlags.acceptance, "acceptance", "", "acceptance criteria")
	createCmd.Flags().StringVar(&createFlags.notes, "notes", "", "free-form notes")
	createCmd.Flags().StringVarP(&createFlags.issueType, "type", "t", "task", "issue type")
	createCmd.Flags().IntVarP(&createFlags.priority, "priority", "p", 2, "priority 0 (critical) to 4 (backlog)")
	createCmd.Flags().StringVarP(&createFlags.assignee, "assignee", "a", "", "assignee")
	createCmd.Flags().StringVar(&createFlags.owner, "owner", "", "owner")
	createCmd.Flags().StringSliceVarP(&createFlags.labels, "label", "l", nil, "labels (repeatable)")
	createCmd.Flags().StringSliceVar(&createFlags.deps, "dep", nil, "dependencies: id or type:id (repeatable)")
	createCmd.Flags().StringVar(&createFlags.due, "due", "", "due time (RFC 3339 or natural language)")
	createCmd.Flags().StringVar(&createFlags.deferUntil, "defer", "", "hide from ready until this time")
	createCmd.Flags().IntVar(&createFlags.estimate, "estimate", 0, "estimated minutes")
	createCmd.Flags().StringVar(&createFlags.externalRef, "external-ref", "", "external reference, e.g. gh-42")
	createCmd.Flags().StringVar(&createFlags.parent, "parent", "", "parent issue (assigns a child ID)")
	createCmd.Flags().BoolVarP(&createFlags.interactive, "interactive", "i", false, "fill fields in an interactive form")
	rootCmd.AddCommand(createCmd)
}
