package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/timeparse"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var updateFlags struct {
	title       string
	description string
	design      string
	acceptance  string
	notes       string
	status      string
	priority    int
	issueType   string
	assignee    string
	owner       string
	estimate    int
	externalRef string
	due         string
	deferUntil  string
	clearDue    bool
	clearDefer  bool
	pin         bool
	unpin       bool
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on an issue",
	Args:  cobra.ExactArgs(1),
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

		patch := &types.IssuePatch{}
		flags := cmd.Flags()
		if flags.Changed("title") {
			patch.Title = &updateFlags.title
		}
		if flags.Changed("description") {
			patch.Description = &updateFlags.description
		}
		if flags.Changed("design") {
			patch.Design = &updateFlags.design
		}
		if flags.Changed("acceptance") {
			patch.AcceptanceCriteria = &updateFlags.acceptance
		}
		if flags.Changed("notes") {
			patch.Notes = &updateFlags.notes
		}
		if flags.Changed("status") {
			status := types.Status(updateFlags.status)
			if !status.IsValid() || status == types.StatusTombstone {
				return errs.New(errs.CodeInvalidArgument, "invalid status %q", updateFlags.status)
			}
			patch.Status = &status
		}
		if flags.Changed("priority") {
			patch.Priority = &updateFlags.priority
		}
		if flags.Changed("type") {
			issueType := types.IssueType(updateFlags.issueType).Normalize()
			if !issueType.IsValid() {
				return errs.New(errs.CodeInvalidArgument, "invalid type %q", updateFlags.issueType)
			}
			patch.IssueType = &issueType
		}
		if flags.Changed("assignee") {
			patch.Assignee = &updateFlags.assignee
		}
		if flags.Changed("owner") {
			patch.Owner = &updateFlags.owner
		}
		if flags.Changed("estimate") {
			patch.EstimatedMinutes = &updateFlags.estimate
		}
		if flags.Changed("external-ref") {
			patch.ExternalRef = &updateFlags.externalRef
		}
		now := time.Now()
		if updateFlags.due != "" {
			t, err := timeparse.Parse(updateFlags.due, now)
			if err != nil {
				return errs.Wrap(errs.CodeInvalidArgument, err, "invalid --due")
			}
			patch.DueAt = &t
		}
		if updateFlags.deferUntil != "" {
			t, err := timeparse.Parse(updateFlags.deferUntil, now)
			if err != nil {
				return errs.Wrap(errs.CodeInvalidArgument, err, "invalid --defer")
			}
			patch.DeferUntil = &t
		}
		patch.ClearDueAt = updateFlags.clearDue
		patch.ClearDeferUntil = updateFlags.clearDefer
		if updateFlags.pin {
			v := true
			patch.Pinned = &v
		}
		if updateFlags.unpin {
			v := false
			patch.Pinned = &v
		}

		issue, err := store.UpdateIssue(ctx, id, patch, actor())
		if err != nil {
			return err
		}
		touched(id)

		if jsonMode() {
			return outputJSON(issue)
		}
		fmt.Printf("Updated %s\n", ui.RenderID(id))
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateFlags.title, "title", "", "new title")
	updateCmd.Flags().StringVarP(&updateFlags.description, "description", "d", "", "new description")
	updateCmd.Flags().StringVar(&updateFlags.design, "design", "", "new design notes")
	updateCmd.Flags().StringVar(&updateFlags.acceptance, "acceptance", "", "new acceptance criteria")
	updateCmd.Flags().StringVar(&updateFlags.notes, "notes", "", "new notes")
	updateCmd.Flags().StringVarP(&updateFlags.status, "status", "s", "", "new status (open, in_progress, blocked, closed)")
	updateCmd.Flags().IntVarP(&updateFlags.priority, "priority", "p", 2, "new priority")
	updateCmd.Flags().StringVarP(&updateFlags.issueType, "type", "t", "", "new type")
	updateCmd.Flags().StringVarP(&updateFlags.assignee, "assignee", "a", "", "new assignee (empty to unassign)")
	updateCmd.Flags().StringVar(&updateFlags.owner, "owner", "", "new owner")
	updateCmd.Flags().IntVar(&updateFlags.estimate, "estimate", 0, "new estimate in minutes")
	updateCmd.Flags().StringVar(&updateFlags.externalRef, "external-ref", "", "new external reference")
	updateCmd.Flags().StringVar(&updateFlags.due, "due", "", "new due time")
	updateCmd.Flags().StringVar(&updateFlags.deferUntil, "defer", "", "new defer time")
	updateCmd.Flags().BoolVar(&updateFlags.clearDue, "clear-due", false, "clear the due time")
	updateCmd.Flags().BoolVar(&updateFlags.clearDefer, "clear-defer", false, "clear the defer time")
	updateCmd.Flags().BoolVar(&updateFlags.pin, "pin", false, "pin the issue")
	updateCmd.Flags().BoolVar(&updateFlags.unpin, "unpin", false, "unpin the issue")
	rootCmd.AddCommand(updateCmd)
}
