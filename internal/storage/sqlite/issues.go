package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

// dbtx is satisfied by *sql.DB, *sql.Conn, and *sql.Tx so read helpers work
// both inside and outside the mutation pipeline.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateIssue creates a new issue. An empty ID is assigned from the adaptive
// counter; a supplied ID is validated and must not collide.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	issue.SetDefaults()
	if issue.CreatedBy == "" {
		issue.CreatedBy = actor
	}

	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = issue.CreatedAt

	if err := issue.Validate(); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "invalid issue")
	}

	return s.mutate(ctx, "create", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		prefix, err := s.prefixOn(ctx, conn)
		if err != nil {
			return err
		}

		if issue.ID == "" {
			id, err := s.nextID(ctx, conn, prefix)
			if err != nil {
				return err
			}
			issue.ID = id
		} else {
			issue.ID = idgen.Normalize(issue.ID)
			if !idgen.IsValidID(issue.ID) {
				return errs.New(errs.CodeInvalidID, "malformed issue ID %q", issue.ID)
			}
			exists, err := idExists(ctx, conn, issue.ID)
			if err != nil {
				return err
			}
			if exists {
				return errs.New(errs.CodeIDCollision, "issue ID already exists").WithIssue(issue.ID)
			}
			if parent := idgen.ParentID(issue.ID); parent != "" {
				parentExists, err := idExists(ctx, conn, parent)
				if err != nil {
					return err
				}
				if !parentExists {
					return errs.New(errs.CodeIssueNotFound, "parent issue does not exist").WithIssue(parent)
				}
				if err := bumpChildCounter(ctx, conn, issue.ID); err != nil {
					return err
				}
			}
		}

		if issue.ContentHash == "" {
			issue.ContentHash = issue.ComputeContentHash()
		}

		if err := insertIssue(ctx, conn, issue); err != nil {
			return err
		}

		mc.RecordNote(issue.ID, types.EventCreated, fmt.Sprintf("Created issue: %s", issue.Title))
		mc.MarkDirty(issue.ID)
		mc.InvalidateBlockedCache()
		return nil
	})
}

// prefixOn reads the issue prefix inside an open transaction.
func (s *Store) prefixOn(ctx context.Context, q dbtx) (string, error) {
	var prefix string
	err := q.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'issue_prefix'`).Scan(&prefix)
	if err == sql.ErrNoRows || (err == nil && prefix == "") {
		return "", errs.New(errs.CodeSchemaError, "database not initialized: issue_prefix config is missing").
			WithHint("run 'br init --prefix <prefix>' first")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read issue prefix: %w", err)
	}
	return prefix, nil
}

func idExists(ctx context.Context, q dbtx, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check ID existence: %w", err)
	}
	return n > 0, nil
}

// insertIssue writes a full issue row, failing on duplicate IDs.
func insertIssue(ctx context.Context, q dbtx, issue *types.Issue) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO issues (
			id, content_hash, title, description, design, acceptance_criteria, notes,
			status, priority, issue_type, assignee, owner, estimated_minutes,
			created_at, created_by, updated_at, closed_at, close_reason,
			due_at, defer_until, external_ref, source_system, sender,
			deleted_at, deleted_by, delete_reason, original_type,
			compaction_level, compacted_at, compacted_at_commit, original_size,
			ephemeral, pinned, is_template
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		issue.ID, issue.ContentHash, issue.Title, issue.Description, issue.Design,
		issue.AcceptanceCriteria, issue.Notes,
		issue.Status, issue.Priority, issue.IssueType, nullStr(issue.Assignee), issue.Owner, issue.EstimatedMinutes,
		issue.CreatedAt, issue.CreatedBy, issue.UpdatedAt, issue.ClosedAt, issue.CloseReason,
		issue.DueAt, issue.DeferUntil, issue.ExternalRef, issue.SourceSystem, issue.Sender,
		issue.DeletedAt, issue.DeletedBy, issue.DeleteReason, issue.OriginalType,
		issue.CompactionLevel, issue.CompactedAt, issue.CompactedAtCommit, nullInt(issue.OriginalSize),
		boolInt(issue.Ephemeral), boolInt(issue.Pinned), boolInt(issue.IsTemplate),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errs.New(errs.CodeIDCollision, "issue ID already exists").WithIssue(issue.ID)
		}
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetIssue retrieves an issue by primary key. Returns (nil, nil) when absent.
// Relations are not loaded; use GetIssueDetails or LoadIssueForExport.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return getIssueOn(ctx, s.db, id)
}

func getIssueOn(ctx context.Context, q dbtx, id string) (*types.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// mustGetOn loads an issue inside a transaction, translating absence into
// the typed not-found error.
func mustGetOn(ctx context.Context, q dbtx, id string) (*types.Issue, error) {
	issue, err := getIssueOn(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, errs.NotFound(id)
	}
	return issue, nil
}

// UpdateIssue applies a partial patch. Each changed field produces its
// dedicated event; updated_at is refreshed; the blocked cache is invalidated
// iff status changed.
func (s *Store) UpdateIssue(ctx context.Context, id string, patch *types.IssuePatch, actor string) (*types.Issue, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, errs.New(errs.CodeInvalidArgument, "empty update")
	}

	var updated *types.Issue
	err := s.mutate(ctx, "update", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		old, err := mustGetOn(ctx, conn, id)
		if err != nil {
			return err
		}
		if old.IsTombstone() {
			return errs.New(errs.CodeInvalidTransition, "cannot update a deleted issue").WithIssue(id)
		}

		next := *old
		applyPatch(&next, patch)
		next.UpdatedAt = mc.Now

		// closed_at follows status: set on transition to closed, cleared on
		// transition away.
		if patch.Status != nil && *patch.Status != old.Status {
			if *patch.Status == types.StatusClosed {
				t := mc.Now
				next.ClosedAt = &t
			} else if old.Status == types.StatusClosed {
				next.ClosedAt = nil
				next.CloseReason = ""
			}
		}

		if err := next.Validate(); err != nil {
			return errs.Wrap(errs.CodeInvalidArgument, err, "invalid update")
		}

		recordFieldEvents(mc, old, &next, patch)

		labels, err := getLabelsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		deps, err := getDependencyRecordsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		next.Labels = labels
		next.Dependencies = deps
		next.ContentHash = next.ComputeContentHash()

		if err := writeIssueFields(ctx, conn, &next); err != nil {
			return err
		}

		mc.MarkDirty(id)
		if patch.Status != nil && *patch.Status != old.Status {
			mc.InvalidateBlockedCache()
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyPatch(issue *types.Issue, p *types.IssuePatch) {
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Design != nil {
		issue.Design = *p.Design
	}
	if p.AcceptanceCriteria != nil {
		issue.AcceptanceCriteria = *p.AcceptanceCriteria
	}
	if p.Notes != nil {
		issue.Notes = *p.Notes
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
	if p.Priority != nil {
		issue.Priority = *p.Priority
	}
	if p.IssueType != nil {
		issue.IssueType = p.IssueType.Normalize()
	}
	if p.Assignee != nil {
		issue.Assignee = *p.Assignee
	}
	if p.Owner != nil {
		issue.Owner = *p.Owner
	}
	if p.EstimatedMinutes != nil {
		issue.EstimatedMinutes = p.EstimatedMinutes
	}
	if p.ExternalRef != nil {
		issue.ExternalRef = p.ExternalRef
	}
	if p.DueAt != nil {
		issue.DueAt = p.DueAt
	}
	if p.ClearDueAt {
		issue.DueAt = nil
	}
	if p.DeferUntil != nil {
		issue.DeferUntil = p.DeferUntil
	}
	if p.ClearDeferUntil {
		issue.DeferUntil = nil
	}
	if p.Pinned != nil {
		issue.Pinned = *p.Pinned
	}
	if p.IsTemplate != nil {
		issue.IsTemplate = *p.IsTemplate
	}
}

// recordFieldEvents emits one dedicated event per changed field with
// old/new values.
func recordFieldEvents(mc *MutationCtx, old, next *types.Issue, p *types.IssuePatch) {
	strEvent := func(eventType types.EventType, oldVal, newVal string) {
		o, n := oldVal, newVal
		mc.RecordEvent(old.ID, eventType, &o, &n, nil)
	}

	if p.Status != nil && next.Status != old.Status {
		strEvent(types.EventStatusChanged, string(old.Status), string(next.Status))
	}
	if p.Priority != nil && next.Priority != old.Priority {
		strEvent(types.EventPriorityChanged, fmt.Sprintf("%d", old.Priority), fmt.Sprintf("%d", next.Priority))
	}
	if p.Assignee != nil && next.Assignee != old.Assignee {
		strEvent(types.EventAssigned, old.Assignee, next.Assignee)
	}

	// Remaining fields share the generic updated event, one per field.
	generic := func(field, oldVal, newVal string) {
		o := fmt.Sprintf("%s: %s", field, oldVal)
		n := fmt.Sprintf("%s: %s", field, newVal)
		mc.RecordEvent(old.ID, types.EventUpdated, &o, &n, nil)
	}
	if p.Title != nil && next.Title != old.Title {
		generic("title", old.Title, next.Title)
	}
	if p.Description != nil && next.Description != old.Description {
		generic("description", truncate(old.Description), truncate(next.Description))
	}
	if p.Design != nil && next.Design != old.Design {
		generic("design", truncate(old.Design), truncate(next.Design))
	}
	if p.AcceptanceCriteria != nil && next.AcceptanceCriteria != old.AcceptanceCriteria {
		generic("acceptance_criteria", truncate(old.AcceptanceCriteria), truncate(next.AcceptanceCriteria))
	}
	if p.Notes != nil && next.Notes != old.Notes {
		generic("notes", truncate(old.Notes), truncate(next.Notes))
	}
	if p.IssueType != nil && next.IssueType != old.IssueType {
		generic("issue_type", string(old.IssueType), string(next.IssueType))
	}
	if p.Owner != nil && next.Owner != old.Owner {
		generic("owner", old.Owner, next.Owner)
	}
	if p.ExternalRef != nil {
		generic("external_ref", strOrEmpty(old.ExternalRef), strOrEmpty(next.ExternalRef))
	}
	if p.DueAt != nil || p.ClearDueAt {
		generic("due_at", timeOrEmpty(old.DueAt), timeOrEmpty(next.DueAt))
	}
	if p.DeferUntil != nil || p.ClearDeferUntil {
		generic("defer_until", timeOrEmpty(old.DeferUntil), timeOrEmpty(next.DeferUntil))
	}
	if p.EstimatedMinutes != nil {
		generic("estimated_minutes", intOrEmpty(old.EstimatedMinutes), intOrEmpty(next.EstimatedMinutes))
	}
	if p.Pinned != nil && next.Pinned != old.Pinned {
		generic("pinned", fmt.Sprintf("%t", old.Pinned), fmt.Sprintf("%t", next.Pinned))
	}
	if p.IsTemplate != nil && next.IsTemplate != old.IsTemplate {
		generic("is_template", fmt.Sprintf("%t", old.IsTemplate), fmt.Sprintf("%t", next.IsTemplate))
	}
}

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func intOrEmpty(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

// writeIssueFields rewrites every mutable column of an issue row.
func writeIssueFields(ctx context.Context, q dbtx, issue *types.Issue) error {
	res, err := q.ExecContext(ctx, `
		UPDATE issues SET
			content_hash = ?, title = ?, description = ?, design = ?,
			acceptance_criteria = ?, notes = ?, status = ?, priority = ?,
			issue_type = ?, assignee = ?, owner = ?, estimated_minutes = ?,
			updated_at = ?, closed_at = ?, close_reason = ?,
			due_at = ?, defer_until = ?, external_ref = ?, source_system = ?, sender = ?,
			deleted_at = ?, deleted_by = ?, delete_reason = ?, original_type = ?,
			compaction_level = ?, compacted_at = ?, compacted_at_commit = ?, original_size = ?,
			ephemeral = ?, pinned = ?, is_template = ?
		WHERE id = ?
	`,
		issue.ContentHash, issue.Title, issue.Description, issue.Design,
		issue.AcceptanceCriteria, issue.Notes, issue.Status, issue.Priority,
		issue.IssueType, nullStr(issue.Assignee), issue.Owner, issue.EstimatedMinutes,
		issue.UpdatedAt, issue.ClosedAt, issue.CloseReason,
		issue.DueAt, issue.DeferUntil, issue.ExternalRef, issue.SourceSystem, issue.Sender,
		issue.DeletedAt, issue.DeletedBy, issue.DeleteReason, issue.OriginalType,
		issue.CompactionLevel, issue.CompactedAt, issue.CompactedAtCommit, nullInt(issue.OriginalSize),
		boolInt(issue.Ephemeral), boolInt(issue.Pinned), boolInt(issue.IsTemplate),
		issue.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFound(issue.ID)
	}
	return nil
}

// CloseIssue sets status=closed with an optional reason.
func (s *Store) CloseIssue(ctx context.Context, id, reason, actor string) (*types.Issue, error) {
	var closed *types.Issue
	err := s.mutate(ctx, "close", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		issue, err := mustGetOn(ctx, conn, id)
		if err != nil {
			return err
		}
		if issue.Status.IsTerminal() {
			return errs.New(errs.CodeInvalidTransition, "issue is already %s", issue.Status).WithIssue(id)
		}

		t := mc.Now
		issue.Status = types.StatusClosed
		issue.ClosedAt = &t
		issue.CloseReason = reason
		issue.UpdatedAt = mc.Now

		labels, err := getLabelsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		deps, err := getDependencyRecordsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		issue.Labels = labels
		issue.Dependencies = deps
		issue.ContentHash = issue.ComputeContentHash()

		if err := writeIssueFields(ctx, conn, issue); err != nil {
			return err
		}

		note := reason
		if note == "" {
			note = "Closed"
		}
		mc.RecordNote(id, types.EventClosed, note)
		mc.MarkDirty(id)
		mc.InvalidateBlockedCache()
		closed = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// ReopenIssue transitions a closed issue back to open.
func (s *Store) ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	var reopened *types.Issue
	err := s.mutate(ctx, "reopen", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		issue, err := mustGetOn(ctx, conn, id)
		if err != nil {
			return err
		}
		if issue.Status != types.StatusClosed {
			return errs.New(errs.CodeNotClosed, "issue is %s, not closed", issue.Status).WithIssue(id)
		}

		issue.Status = types.StatusOpen
		issue.ClosedAt = nil
		issue.CloseReason = ""
		issue.UpdatedAt = mc.Now

		labels, err := getLabelsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		deps, err := getDependencyRecordsOn(ctx, conn, id)
		if err != nil {
			return err
		}
		issue.Labels = labels
		issue.Dependencies = deps
		issue.ContentHash = issue.ComputeContentHash()

		if err := writeIssueFields(ctx, conn, issue); err != nil {
			return err
		}

		mc.RecordNote(id, types.EventReopened, "Reopened")
		mc.MarkDirty(id)
		mc.InvalidateBlockedCache()
		reopened = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reopened, nil
}

// GetIssueDetails loads an issue with its labels, dependency metadata,
// dependents, parent, and optionally comments and events.
func (s *Store) GetIssueDetails(ctx context.Context, id string, opts storage.DetailOptions) (*types.IssueDetails, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil || issue == nil {
		return nil, err
	}

	details := &types.IssueDetails{Issue: *issue}

	if details.Labels, err = s.GetLabels(ctx, id); err != nil {
		return nil, err
	}
	if details.Dependencies, err = s.getRelatedWithMetadata(ctx, id, false); err != nil {
		return nil, err
	}
	if details.Dependents, err = s.getRelatedWithMetadata(ctx, id, true); err != nil {
		return nil, err
	}

	parent, err := s.GetParentID(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent != "" {
		details.Parent = &parent
	}

	if opts.IncludeComments {
		if details.Comments, err = s.GetComments(ctx, id); err != nil {
			return nil, err
		}
	}
	if opts.IncludeEvents {
		events, err := s.GetEvents(ctx, types.EventFilter{IssueID: id, Limit: opts.EventLimit})
		if err != nil {
			return nil, err
		}
		details.Events = events
	}

	return details, nil
}
