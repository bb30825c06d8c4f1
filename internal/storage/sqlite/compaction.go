package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

// CompactionCandidates returns closed, not-yet-compacted issues whose
// closed_at is older than the given number of days.
func (s *Store) CompactionCandidates(ctx context.Context, olderThanDays, limit int) ([]*types.Issue, error) {
	query := `
		SELECT ` + issueColumns + `
		FROM issues
		WHERE status = 'closed'
		  AND (compaction_level = 0 OR compaction_level IS NULL)
		  AND closed_at IS NOT NULL
		  AND datetime(closed_at) < datetime('now', '-' || ? || ' days')
		ORDER BY closed_at ASC
	`
	args := []interface{}{olderThanDays}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query compaction candidates: %w", err)
	}
	return scanIssues(rows)
}

// ApplyCompaction replaces an issue's long-form text with a summary,
// snapshotting the original content first. The snapshot makes compaction
// reversible; the summary keeps the issue searchable.
func (s *Store) ApplyCompaction(ctx context.Context, id, summary, actor string) error {
	if summary == "" {
		return errs.New(errs.CodeInvalidArgument, "compaction summary cannot be empty")
	}

	return s.mutate(ctx, "compact", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		issue, err := mustGetOn(ctx, conn, id)
		if err != nil {
			return err
		}
		if issue.Status != types.StatusClosed {
			return errs.New(errs.CodeInvalidTransition, "only closed issues can be compacted").WithIssue(id)
		}
		if issue.CompactionLevel > 0 {
			return errs.New(errs.CodeInvalidTransition, "issue is already compacted").WithIssue(id)
		}

		original, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("failed to snapshot issue: %w", err)
		}
		originalSize := len(issue.Description) + len(issue.Design) +
			len(issue.AcceptanceCriteria) + len(issue.Notes)

		if _, err := conn.ExecContext(ctx, `
			INSERT INTO issue_snapshots (issue_id, snapshot_time, compaction_level, original_size, original_content)
			VALUES (?, ?, ?, ?, ?)
		`, id, mc.Now, issue.CompactionLevel+1, originalSize, string(original)); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}

		t := mc.Now
		issue.Description = summary
		issue.Design = ""
		issue.AcceptanceCriteria = ""
		issue.Notes = ""
		issue.CompactionLevel = 1
		issue.CompactedAt = &t
		issue.OriginalSize = originalSize
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

		mc.RecordNote(id, types.EventCompacted,
			fmt.Sprintf("Compacted %d bytes to %d", originalSize, len(summary)))
		mc.MarkDirty(id)
		return nil
	})
}
