package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

// AddLabel attaches a label to an issue. Idempotent: returns false (and
// records no event) when the label was already present.
func (s *Store) AddLabel(ctx context.Context, issueID, label, actor string) (bool, error) {
	if label == "" {
		return false, errs.New(errs.CodeInvalidArgument, "label cannot be empty")
	}

	var changed bool
	err := s.mutate(ctx, "label.add", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		if _, err := mustGetOn(ctx, conn, issueID); err != nil {
			return err
		}

		res, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
		`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to add label: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		changed = true
		if err := refreshContentHash(ctx, conn, issueID, mc); err != nil {
			return err
		}
		mc.RecordNote(issueID, types.EventLabelAdded, fmt.Sprintf("Added label %s", label))
		mc.MarkDirty(issueID)
		return nil
	})
	return changed, err
}

// RemoveLabel detaches a label. Idempotent: returns false when absent.
func (s *Store) RemoveLabel(ctx context.Context, issueID, label, actor string) (bool, error) {
	var changed bool
	err := s.mutate(ctx, "label.remove", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		if _, err := mustGetOn(ctx, conn, issueID); err != nil {
			return err
		}

		res, err := conn.ExecContext(ctx, `
			DELETE FROM labels WHERE issue_id = ? AND label = ?
		`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to remove label: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		changed = true
		if err := refreshContentHash(ctx, conn, issueID, mc); err != nil {
			return err
		}
		mc.RecordNote(issueID, types.EventLabelRemoved, fmt.Sprintf("Removed label %s", label))
		mc.MarkDirty(issueID)
		return nil
	})
	return changed, err
}

// refreshContentHash recomputes an issue's content hash and updated_at after
// a relational change (labels, dependencies) inside a mutation.
func refreshContentHash(ctx context.Context, conn *sql.Conn, issueID string, mc *MutationCtx) error {
	issue, err := mustGetOn(ctx, conn, issueID)
	if err != nil {
		return err
	}
	labels, err := getLabelsOn(ctx, conn, issueID)
	if err != nil {
		return err
	}
	deps, err := getDependencyRecordsOn(ctx, conn, issueID)
	if err != nil {
		return err
	}
	issue.Labels = labels
	issue.Dependencies = deps
	hash := issue.ComputeContentHash()

	_, err = conn.ExecContext(ctx, `
		UPDATE issues SET content_hash = ?, updated_at = ? WHERE id = ?
	`, hash, mc.Now, issueID)
	if err != nil {
		return fmt.Errorf("failed to refresh content hash: %w", err)
	}
	return nil
}

// GetLabels returns an issue's labels sorted ascending.
func (s *Store) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	return getLabelsOn(ctx, s.db, issueID)
}

func getLabelsOn(ctx context.Context, q dbtx, issueID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT label FROM labels WHERE issue_id = ? ORDER BY label
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// AllLabels returns every issue's labels in one query, for bulk export.
func (s *Store) AllLabels(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT issue_id, label FROM labels ORDER BY issue_id, label`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	labels := make(map[string][]string)
	for rows.Next() {
		var issueID, label string
		if err := rows.Scan(&issueID, &label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels[issueID] = append(labels[issueID], label)
	}
	return labels, rows.Err()
}
