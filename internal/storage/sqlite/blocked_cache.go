package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/braid-dev/braid/internal/types"
)

// The blocked_issues_cache materializes, per blocked issue, the JSON-encoded
// list of IDs currently blocking it. Mutations that can affect readiness
// clear the whole table in their own transaction (see mutate.go), so a
// populated cache always reflects the committed world. Readers that find it
// empty recompute the map here and insert it; readers that find it populated
// trust it. The cache is advisory: losing it only costs the rebuild.

// blockedMap returns issue_id -> blocking IDs, rebuilding the cache if it is
// empty. An issue is blocked iff it is non-terminal, not a template, and has
// an outgoing blocks edge to a non-terminal target.
func (s *Store) blockedMap(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT issue_id, blocked_by_json FROM blocked_issues_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocked cache: %w", err)
	}
	blocked := make(map[string][]string)
	for rows.Next() {
		var id, blockedByJSON string
		if err := rows.Scan(&id, &blockedByJSON); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan blocked cache: %w", err)
		}
		var blockers []string
		if err := json.Unmarshal([]byte(blockedByJSON), &blockers); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("corrupt blocked cache entry for %s: %w", id, err)
		}
		blocked[id] = blockers
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(blocked) > 0 {
		return blocked, nil
	}
	return s.rebuildBlockedCache(ctx)
}

// rebuildBlockedCache recomputes the blocked map from the primary tables and
// populates the cache inside a short write transaction.
func (s *Store) rebuildBlockedCache(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.issue_id, d.depends_on_id
		FROM dependencies d
		JOIN issues i ON i.id = d.issue_id
		JOIN issues b ON b.id = d.depends_on_id
		WHERE d.type = 'blocks'
		  AND i.status NOT IN ('closed', 'tombstone')
		  AND (i.is_template = 0 OR i.is_template IS NULL)
		  AND b.status NOT IN ('closed', 'tombstone')
		ORDER BY d.issue_id, d.depends_on_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute blocked set: %w", err)
	}
	blocked := make(map[string][]string)
	for rows.Next() {
		var id, blocker string
		if err := rows.Scan(&id, &blocker); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan blocked edge: %w", err)
		}
		blocked[id] = append(blocked[id], blocker)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(blocked) == 0 {
		return blocked, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, wrapBusy(err, "populate blocked cache")
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, wrapBusy(err, "populate blocked cache")
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	stmt, err := conn.PrepareContext(ctx, `
		INSERT INTO blocked_issues_cache (issue_id, blocked_by_json)
		VALUES (?, ?)
		ON CONFLICT (issue_id) DO UPDATE SET blocked_by_json = excluded.blocked_by_json
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for id, blockers := range blocked {
		data, err := json.Marshal(blockers)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, id, string(data)); err != nil {
			return nil, fmt.Errorf("failed to populate blocked cache: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, wrapBusy(err, "populate blocked cache")
	}
	committed = true
	return blocked, nil
}

// ReadyIssues returns issues that are ready to work: status open or
// in_progress, not a template, defer_until unset or past, and no outgoing
// blocks edge to a non-terminal target.
func (s *Store) ReadyIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	// Populate the cache before the NOT EXISTS below consults it.
	if _, err := s.blockedMap(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clauses, args := filterSQL(&filter, now)
	if len(filter.Statuses) == 0 {
		clauses = append(clauses, "i.status IN ('open', 'in_progress')")
	}
	clauses = append(clauses, "(i.defer_until IS NULL OR i.defer_until <= ?)")
	args = append(args, now)
	clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM blocked_issues_cache c WHERE c.issue_id = i.id)")

	limitSQL := ""
	if limit := filter.EffectiveLimit(); limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}

	// #nosec G201 - clauses contain only ? placeholders
	query := fmt.Sprintf(`
		SELECT %s FROM issues i
		WHERE %s
		ORDER BY i.priority ASC, i.created_at DESC
		%s
	`, prefixedIssueColumns("i"), strings.Join(clauses, " AND "), limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready issues: %w", err)
	}
	return scanIssues(rows)
}

// BlockedIssues returns the blocked complement: non-terminal non-template
// issues with at least one outgoing blocks edge to a non-terminal target,
// each with the list of blocker IDs.
func (s *Store) BlockedIssues(ctx context.Context, filter types.IssueFilter) ([]*types.BlockedIssue, error) {
	blocked, err := s.blockedMap(ctx)
	if err != nil {
		return nil, err
	}
	if len(blocked) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(blocked))
	for id := range blocked {
		ids = append(ids, id)
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	clauses, filterArgs := filterSQL(&filter, time.Now().UTC())
	clauses = append(clauses, fmt.Sprintf("i.id IN (%s)", strings.Join(placeholders, ",")))
	args = append(filterArgs, args...)

	// #nosec G201 - clauses contain only ? placeholders
	query := fmt.Sprintf(`
		SELECT %s FROM issues i
		WHERE %s
		ORDER BY i.priority ASC, i.created_at DESC
	`, prefixedIssueColumns("i"), strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked issues: %w", err)
	}
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}

	out := make([]*types.BlockedIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, &types.BlockedIssue{
			Issue:     *issue,
			BlockedBy: blocked[issue.ID],
		})
	}
	return out, nil
}
