package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

// DeleteIssues soft-deletes issues by turning them into tombstones. Cascade
// expands the set with all transitive dependents inside the same
// transaction; force tombstones despite surviving dependents, orphaning
// them; hard removes the rows entirely; dry-run computes the closure without
// writing. One deleted event is recorded per node.
func (s *Store) DeleteIssues(ctx context.Context, ids []string, opts storage.DeleteOptions, actor string) (*storage.DeleteResult, error) {
	if len(ids) == 0 {
		return &storage.DeleteResult{}, nil
	}
	reason := opts.Reason
	if reason == "" {
		reason = "deleted"
	}

	result := &storage.DeleteResult{}
	err := s.mutate(ctx, "delete", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		for _, id := range ids {
			issue, err := mustGetOn(ctx, conn, id)
			if err != nil {
				return err
			}
			if issue.IsTombstone() && !opts.Hard {
				return errs.New(errs.CodeInvalidTransition, "issue is already deleted").WithIssue(id)
			}
		}

		targets := make(map[string]bool, len(ids))
		for _, id := range ids {
			targets[id] = true
		}

		if opts.Cascade {
			if err := expandDependents(ctx, conn, targets); err != nil {
				return err
			}
		} else {
			orphans, err := dependentsOutside(ctx, conn, targets)
			if err != nil {
				return err
			}
			if len(orphans) > 0 && !opts.Force {
				return errs.New(errs.CodeHasDependents,
					"%d issue(s) depend on the deletion set", len(orphans)).
					WithHint("use --cascade to delete dependents or --force to orphan them")
			}
			result.Orphaned = orphans
		}

		deleted := make([]string, 0, len(targets))
		for id := range targets {
			deleted = append(deleted, id)
		}
		sort.Strings(deleted)
		result.Deleted = deleted

		if opts.DryRun {
			return nil
		}

		if opts.Hard {
			return hardDelete(ctx, conn, deleted)
		}

		for _, id := range deleted {
			issue, err := mustGetOn(ctx, conn, id)
			if err != nil {
				return err
			}
			if issue.IsTombstone() {
				continue
			}

			t := mc.Now
			issue.DeletedAt = &t
			issue.DeletedBy = mc.Actor
			issue.DeleteReason = reason
			issue.OriginalType = string(issue.IssueType)
			issue.Status = types.StatusTombstone
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

			mc.RecordNote(id, types.EventDeleted, fmt.Sprintf("Deleted issue: %s", reason))
			mc.MarkDirty(id)
		}

		mc.InvalidateBlockedCache()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// expandDependents grows the target set with every transitive dependent,
// following incoming edges breadth-first.
func expandDependents(ctx context.Context, conn *sql.Conn, targets map[string]bool) error {
	queue := make([]string, 0, len(targets))
	for id := range targets {
		queue = append(queue, id)
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		rows, err := conn.QueryContext(ctx, `
			SELECT d.issue_id
			FROM dependencies d
			JOIN issues i ON i.id = d.issue_id
			WHERE d.depends_on_id = ? AND i.status != 'tombstone'
		`, current)
		if err != nil {
			return fmt.Errorf("failed to find dependents: %w", err)
		}
		for rows.Next() {
			var depID string
			if err := rows.Scan(&depID); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan dependent: %w", err)
			}
			if !targets[depID] {
				targets[depID] = true
				queue = append(queue, depID)
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()
	}
	return nil
}

// dependentsOutside returns non-tombstone dependents of the target set that
// are not themselves targeted.
func dependentsOutside(ctx context.Context, conn *sql.Conn, targets map[string]bool) ([]string, error) {
	orphanSet := make(map[string]bool)
	for id := range targets {
		rows, err := conn.QueryContext(ctx, `
			SELECT d.issue_id
			FROM dependencies d
			JOIN issues i ON i.id = d.issue_id
			WHERE d.depends_on_id = ? AND i.status != 'tombstone'
		`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to find dependents: %w", err)
		}
		for rows.Next() {
			var depID string
			if err := rows.Scan(&depID); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan dependent: %w", err)
			}
			if !targets[depID] {
				orphanSet[depID] = true
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}

	orphans := make([]string, 0, len(orphanSet))
	for id := range orphanSet {
		orphans = append(orphans, id)
	}
	sort.Strings(orphans)
	return orphans, nil
}

// hardDelete removes the rows and their relations outright. Used to prune
// tombstones; foreign keys cascade the child tables that reference issues.
func hardDelete(ctx context.Context, conn *sql.Conn, ids []string) error {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	// Dependencies reference issues on both ends; remove edges pointing at
	// the deleted set too.
	// #nosec G201 - placeholders are ? literals
	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM dependencies WHERE issue_id IN (%s) OR depends_on_id IN (%s)`, in, in),
		append(append([]interface{}{}, args...), args...)...); err != nil {
		return fmt.Errorf("failed to delete dependencies: %w", err)
	}
	// #nosec G201 - placeholders are ? literals
	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM issues WHERE id IN (%s)`, in), args...); err != nil {
		return fmt.Errorf("failed to delete issues: %w", err)
	}
	return nil
}
