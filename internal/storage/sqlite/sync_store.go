package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

// Store implements the full engine surface.
var _ storage.Storage = (*Store)(nil)

// LoadIssueForExport loads an issue with labels, dependencies, and comments
// attached, ready to render as one JSONL line.
func (s *Store) LoadIssueForExport(ctx context.Context, id string) (*types.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil || issue == nil {
		return issue, err
	}
	if issue.Labels, err = s.GetLabels(ctx, id); err != nil {
		return nil, err
	}
	if issue.Dependencies, err = s.GetDependencyRecords(ctx, id); err != nil {
		return nil, err
	}
	if issue.Comments, err = s.GetComments(ctx, id); err != nil {
		return nil, err
	}
	if issue.ContentHash == "" {
		issue.ContentHash = issue.ComputeContentHash()
	}
	return issue, nil
}

// ImportIssues replays parsed JSONL records into the database in a single
// transaction. Per record:
//
//   - absent locally: insert, with a created event from the import actor
//   - present with an equal content hash: skip (deduplicated)
//   - present and different: overwrite fields, one updated event
//   - tombstone locally, record live: resurrect
//   - live locally, record tombstone: apply the tombstone
//
// Labels, comments, and dependencies are replaced wholesale in a second pass
// so forward references between records resolve. Dirty flags for touched IDs
// are cleared afterwards by the importer: DB and JSONL agree by definition.
func (s *Store) ImportIssues(ctx context.Context, issues []*types.Issue, actor string) (*storage.ImportStats, error) {
	stats := &storage.ImportStats{}

	err := s.mutate(ctx, "import", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		touched := false
		skipped := make(map[string]bool)

		for _, incoming := range issues {
			incoming.SetDefaults()
			// The hash is recomputed from the parsed fields, never trusted
			// from the file: a hand-edited line carries a stale hash and must
			// still be detected as changed.
			incoming.ContentHash = incoming.ComputeContentHash()

			existing, err := getIssueOn(ctx, conn, incoming.ID)
			if err != nil {
				return err
			}

			switch {
			case existing == nil:
				row := *incoming
				row.Dependencies = nil // second pass
				if err := insertIssue(ctx, conn, &row); err != nil {
					return err
				}
				mc.RecordNote(incoming.ID, types.EventCreated,
					fmt.Sprintf("Created issue: %s", incoming.Title))
				stats.Inserted++
				touched = true

			case existing.IsTombstone() && !incoming.IsTombstone():
				// Resurrect: clear tombstone fields, restore the original type.
				row := *incoming
				if row.IssueType == "" || !row.IssueType.IsValid() {
					row.IssueType = types.IssueType(existing.OriginalType)
				}
				row.DeletedAt = nil
				row.DeletedBy = ""
				row.DeleteReason = ""
				row.OriginalType = ""
				row.Dependencies = nil
				row.UpdatedAt = mc.Now
				if err := writeIssueFields(ctx, conn, &row); err != nil {
					return err
				}
				mc.RecordNote(incoming.ID, types.EventReopened, "Resurrected from JSONL import")
				stats.Resurrected++
				touched = true

			case !existing.IsTombstone() && incoming.IsTombstone():
				row := *incoming
				row.Dependencies = nil
				row.UpdatedAt = mc.Now
				if err := writeIssueFields(ctx, conn, &row); err != nil {
					return err
				}
				mc.RecordNote(incoming.ID, types.EventDeleted, "Tombstone applied from JSONL import")
				stats.Tombstoned++
				touched = true

			case existing.ContentHash == incoming.ContentHash && existing.ContentHash != "":
				stats.Skipped++
				skipped[incoming.ID] = true
				continue

			default:
				row := *incoming
				row.Dependencies = nil
				if err := writeIssueFields(ctx, conn, &row); err != nil {
					return err
				}
				old := summarizeIssue(existing)
				updated := summarizeIssue(incoming)
				mc.RecordEvent(incoming.ID, types.EventUpdated, &old, &updated, nil)
				stats.Updated++
				touched = true
			}

			if err := replaceLabels(ctx, conn, incoming.ID, incoming.Labels); err != nil {
				return err
			}
			if err := replaceComments(ctx, conn, incoming.ID, incoming.Comments); err != nil {
				return err
			}
		}

		// Second pass: dependencies, after every referenced issue exists.
		// Deduplicated records keep their existing edges untouched.
		for _, incoming := range issues {
			if skipped[incoming.ID] {
				continue
			}
			if err := replaceDependencies(ctx, conn, incoming.ID, incoming.Dependencies, actor, mc.Now); err != nil {
				return err
			}
		}

		if touched {
			mc.InvalidateBlockedCache()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// summarizeIssue renders the stable fields compared by import diffs.
func summarizeIssue(i *types.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "title=%q status=%s priority=%d type=%s assignee=%q",
		i.Title, i.Status, i.Priority, i.IssueType, i.Assignee)
	return b.String()
}

func replaceLabels(ctx context.Context, conn *sql.Conn, issueID string, labels []string) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}
	for _, label := range labels {
		if _, err := conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, issueID, label); err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
	}
	return nil
}

func replaceComments(ctx context.Context, conn *sql.Conn, issueID string, comments []*types.Comment) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM comments WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to clear comments: %w", err)
	}
	for _, c := range comments {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO comments (issue_id, author, text, created_at)
			VALUES (?, ?, ?, ?)
		`, issueID, c.Author, c.Text, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
	}
	return nil
}

func replaceDependencies(ctx context.Context, conn *sql.Conn, issueID string, deps []*types.Dependency, actor string, now interface{}) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	for _, dep := range deps {
		createdBy := dep.CreatedBy
		if createdBy == "" {
			createdBy = actor
		}
		createdAt := interface{}(dep.CreatedAt)
		if dep.CreatedAt.IsZero() {
			createdAt = now
		}
		depType := dep.Type
		if depType == "" {
			depType = types.DepBlocks
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)
		`, issueID, dep.DependsOnID, depType, createdAt, createdBy); err != nil {
			return fmt.Errorf("failed to insert dependency: %w", err)
		}
	}
	return nil
}
