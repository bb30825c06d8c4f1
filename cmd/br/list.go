package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var listFlags struct {
	statuses   []string
	issueTypes []string
	priorities []int
	assignee   string
	unassigned bool
	labels     []string
	labelsAny  []string
	title      string
	overdue    bool
	deferred   bool
	all        bool
	templates  bool
	limit      int
}

// buildFilter converts shared list-style flags into an IssueFilter.
func buildFilter() (types.IssueFilter, error) {
	filter := types.IssueFilter{
		Assignee:         nil,
		Unassigned:       listFlags.unassigned,
		Labels:           listFlags.labels,
		LabelsAny:        listFlags.labelsAny,
		TitleContains:    listFlags.title,
		Overdue:          listFlags.overdue,
		Deferred:         listFlags.deferred,
		IncludeClosed:    listFlags.all,
		IncludeTemplates: listFlags.templates,
		Limit:            listFlags.limit,
	}
	for _, s := range listFlags.statuses {
		status := types.Status(strings.ToLower(s))
		if !status.IsValid() {
			return filter, errs.New(errs.CodeInvalidArgument, "invalid status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, t := range listFlags.issueTypes {
		issueType := types.IssueType(strings.ToLower(t)).Normalize()
		if !issueType.IsValid() {
			return filter, errs.New(errs.CodeInvalidArgument, "invalid type %q", t)
		}
		filter.Types = append(filter.Types, issueType)
	}
	for _, p := range listFlags.priorities {
		if p < 0 || p > 4 {
			return filter, errs.New(errs.CodeInvalidArgument, "invalid priority %d", p)
		}
		filter.Priorities = append(filter.Priorities, p)
	}
	if listFlags.assignee != "" {
		filter.Assignee = &listFlags.assignee
	}
	return filter, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&listFlags.statuses, "status", "s", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceVarP(&listFlags.issueTypes, "type", "t", nil, "filter by type (repeatable)")
	cmd.Flags().IntSliceVarP(&listFlags.priorities, "priority", "p", nil, "filter by priority (repeatable)")
	cmd.Flags().StringVarP(&listFlags.assignee, "assignee", "a", "", "filter by assignee")
	cmd.Flags().BoolVar(&listFlags.unassigned, "unassigned", false, "only unassigned issues")
	cmd.Flags().StringSliceVarP(&listFlags.labels, "label", "l", nil, "require all of these labels")
	cmd.Flags().StringSliceVar(&listFlags.labelsAny, "label-any", nil, "require at least one of these labels")
	cmd.Flags().StringVar(&listFlags.title, "title", "", "title substring filter")
	cmd.Flags().BoolVar(&listFlags.overdue, "overdue", false, "only issues past their due time")
	cmd.Flags().BoolVar(&listFlags.deferred, "deferred", false, "only issues with a defer time")
	cmd.Flags().BoolVar(&listFlags.all, "all", false, "include closed issues")
	cmd.Flags().BoolVar(&listFlags.templates, "templates", false, "include templates")
	cmd.Flags().IntVarP(&listFlags.limit, "limit", "n", 0, "max results (0 = default 50, -1 = unlimited)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		issues, err := store.ListIssues(ctx, filter)
		if err != nil {
			return err
		}
		return printIssues(issues)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search issues by substring over title, description, and ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		issues, err := store.SearchIssues(ctx, args[0], filter)
		if err != nil {
			return err
		}
		return printIssues(issues)
	},
}

func printIssues(issues []*types.Issue) error {
	if jsonMode() {
		if issues == nil {
			issues = []*types.Issue{}
		}
		return outputJSON(issues)
	}
	if len(issues) == 0 {
		fmt.Println("No issues found.")
		return nil
	}
	fmt.Print(ui.IssueTable(issues))
	return nil
}

func init() {
	addFilterFlags(listCmd)
	addFilterFlags(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
}
