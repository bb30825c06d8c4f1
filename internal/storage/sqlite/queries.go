package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

// filterSQL renders an IssueFilter into WHERE clauses over alias i.
func filterSQL(filter *types.IssueFilter, now time.Time) (clauses []string, args []interface{}) {
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for idx, s := range filter.Statuses {
			placeholders[idx] = "?"
			args = append(args, s)
		}
		clauses = append(clauses, fmt.Sprintf("i.status IN (%s)", strings.Join(placeholders, ",")))
	} else {
		// Closed and tombstone are excluded by default.
		if !filter.IncludeClosed {
			clauses = append(clauses, "i.status != 'closed'")
		}
		if !filter.IncludeTombstones {
			clauses = append(clauses, "i.status != 'tombstone'")
		}
	}

	if !filter.IncludeTemplates {
		clauses = append(clauses, "(i.is_template = 0 OR i.is_template IS NULL)")
	}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for idx, t := range filter.Types {
			placeholders[idx] = "?"
			args = append(args, t)
		}
		clauses = append(clauses, fmt.Sprintf("i.issue_type IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for idx, p := range filter.Priorities {
			placeholders[idx] = "?"
			args = append(args, p)
		}
		clauses = append(clauses, fmt.Sprintf("i.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.PriorityMin != nil {
		clauses = append(clauses, "i.priority >= ?")
		args = append(args, *filter.PriorityMin)
	}
	if filter.PriorityMax != nil {
		clauses = append(clauses, "i.priority <= ?")
		args = append(args, *filter.PriorityMax)
	}

	if filter.Unassigned {
		clauses = append(clauses, "(i.assignee IS NULL OR i.assignee = '')")
	} else if filter.Assignee != nil {
		clauses = append(clauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	for _, label := range filter.Labels {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM labels WHERE issue_id = i.id AND label = ?)")
		args = append(args, label)
	}
	if len(filter.LabelsAny) > 0 {
		placeholders := make([]string, len(filter.LabelsAny))
		for idx, label := range filter.LabelsAny {
			placeholders[idx] = "?"
			args = append(args, label)
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM labels WHERE issue_id = i.id AND label IN (%s))",
			strings.Join(placeholders, ",")))
	}

	if filter.TitleContains != "" {
		clauses = append(clauses, "i.title LIKE ?")
		args = append(args, "%"+filter.TitleContains+"%")
	}
	if filter.DescriptionContains != "" {
		clauses = append(clauses, "i.description LIKE ?")
		args = append(args, "%"+filter.DescriptionContains+"%")
	}
	if filter.NotesContains != "" {
		clauses = append(clauses, "i.notes LIKE ?")
		args = append(args, "%"+filter.NotesContains+"%")
	}

	if filter.Overdue {
		clauses = append(clauses, "i.due_at IS NOT NULL AND i.due_at < ? AND i.status NOT IN ('closed', 'tombstone')")
		args = append(args, now)
	}
	if filter.Deferred {
		clauses = append(clauses, "i.defer_until IS NOT NULL")
	}

	return clauses, args
}

// ListIssues returns issues matching the filter, sorted by priority
// ascending then created_at descending.
func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	clauses, args := filterSQL(&filter, time.Now().UTC())
	whereSQL := "1=1"
	if len(clauses) > 0 {
		whereSQL = strings.Join(clauses, " AND ")
	}

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
	`, prefixedIssueColumns("i"), whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return scanIssues(rows)
}

// SearchIssues adds a case-insensitive substring match over title,
// description, and id to the list filters. An empty query matches nothing.
func (s *Store) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	clauses, args := filterSQL(&filter, time.Now().UTC())
	pattern := "%" + trimmed + "%"
	clauses = append([]string{"(i.title LIKE ? OR i.description LIKE ? OR i.id LIKE ?)"}, clauses...)
	args = append([]interface{}{pattern, pattern, pattern}, args...)

	limitSQL := ""
	if limit := filter.EffectiveLimit(); limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, limit)
	}

	// #nosec G201 - clauses contain only ? placeholders
	querySQL := fmt.Sprintf(`
		SELECT %s FROM issues i
		WHERE %s
		ORDER BY i.priority ASC, i.created_at DESC
		%s
	`, prefixedIssueColumns("i"), strings.Join(clauses, " AND "), limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	return scanIssues(rows)
}

// CountIssues returns either a scalar total (GroupByNone, under key "total")
// or a map of group key to count.
func (s *Store) CountIssues(ctx context.Context, groupBy types.GroupBy, filter types.IssueFilter) (map[string]int, error) {
	if !groupBy.IsValid() {
		return nil, errs.New(errs.CodeInvalidArgument, "invalid group-by dimension: %q", groupBy)
	}

	clauses, args := filterSQL(&filter, time.Now().UTC())
	whereSQL := "1=1"
	if len(clauses) > 0 {
		whereSQL = strings.Join(clauses, " AND ")
	}

	var query string
	switch groupBy {
	case types.GroupByNone:
		query = fmt.Sprintf(`SELECT 'total', COUNT(*) FROM issues i WHERE %s`, whereSQL)
	case types.GroupByStatus:
		query = fmt.Sprintf(`SELECT i.status, COUNT(*) FROM issues i WHERE %s GROUP BY i.status`, whereSQL)
	case types.GroupByPriority:
		query = fmt.Sprintf(`SELECT CAST(i.priority AS TEXT), COUNT(*) FROM issues i WHERE %s GROUP BY i.priority`, whereSQL)
	case types.GroupByType:
		query = fmt.Sprintf(`SELECT i.issue_type, COUNT(*) FROM issues i WHERE %s GROUP BY i.issue_type`, whereSQL)
	case types.GroupByAssignee:
		query = fmt.Sprintf(`SELECT COALESCE(i.assignee, ''), COUNT(*) FROM issues i WHERE %s GROUP BY COALESCE(i.assignee, '')`, whereSQL)
	case types.GroupByLabel:
		query = fmt.Sprintf(`
			SELECT l.label, COUNT(*)
			FROM labels l JOIN issues i ON i.id = l.issue_id
			WHERE %s GROUP BY l.label`, whereSQL)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// GetStatistics returns the full cross-tabulation for br stats.
func (s *Store) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, issue_type, CAST(priority AS TEXT), COUNT(*)
		FROM issues
		GROUP BY status, issue_type, priority
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status, issueType, priority string
		var n int
		if err := rows.Scan(&status, &issueType, &priority, &n); err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}
		if status == string(types.StatusTombstone) {
			stats.TombstoneIssues += n
			continue
		}
		stats.TotalIssues += n
		stats.ByStatus[status] += n
		stats.ByType[issueType] += n
		stats.ByPriority[priority] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blocked, err := s.blockedMap(ctx)
	if err != nil {
		return nil, err
	}
	stats.BlockedIssues = len(blocked)

	ready, err := s.ReadyIssues(ctx, types.IssueFilter{Limit: -1})
	if err != nil {
		return nil, err
	}
	stats.ReadyIssues = len(ready)

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues
		WHERE due_at IS NOT NULL AND due_at < ? AND status NOT IN ('closed', 'tombstone')
	`, now).Scan(&stats.OverdueIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue issues: %w", err)
	}

	var avgAge sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday('now') - julianday(created_at)) * 24)
		FROM issues WHERE status NOT IN ('closed', 'tombstone')
	`).Scan(&avgAge)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average age: %w", err)
	}
	if avgAge.Valid {
		stats.AverageAgeHours = avgAge.Float64
	}

	return stats, nil
}

// GetStaleIssues returns non-terminal issues not updated in the given number
// of days, oldest first.
func (s *Store) GetStaleIssues(ctx context.Context, days, limit int) ([]*types.Issue, error) {
	query := `
		SELECT ` + issueColumns + `
		FROM issues
		WHERE status NOT IN ('closed', 'tombstone')
		  AND datetime(updated_at) < datetime('now', '-' || ? || ' days')
		ORDER BY updated_at ASC
	`
	args := []interface{}{days}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale issues: %w", err)
	}
	return scanIssues(rows)
}
