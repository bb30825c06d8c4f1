package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// DirtyIssueIDs returns the issues whose JSONL representation is stale,
// oldest mark first.
func (s *Store) DirtyIssueIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id FROM dirty_issues ORDER BY marked_at ASC, issue_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read dirty issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dirty issue: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearDirtyIssues removes dirty marks after a successful flush.
func (s *Store) ClearDirtyIssues(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	// #nosec G201 - placeholders are ? literals
	query := fmt.Sprintf(`DELETE FROM dirty_issues WHERE issue_id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear dirty issues: %w", err)
	}
	return nil
}
