package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/braid-dev/braid/internal/types"
)

// issueColumns is the canonical SELECT column list; scanIssue mirrors it.
const issueColumns = `id, content_hash, title, description, design, acceptance_criteria, notes,
	status, priority, issue_type, assignee, owner, estimated_minutes,
	created_at, created_by, updated_at, closed_at, close_reason,
	due_at, defer_until, external_ref, source_system, sender,
	deleted_at, deleted_by, delete_reason, original_type,
	compaction_level, compacted_at, compacted_at_commit, original_size,
	ephemeral, pinned, is_template`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanIssue reads one row in issueColumns order.
func scanIssue(row rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var (
		contentHash       sql.NullString
		assignee          sql.NullString
		owner             sql.NullString
		estimatedMinutes  sql.NullInt64
		createdBy         sql.NullString
		closedAt          sql.NullTime
		closeReason       sql.NullString
		dueAt             sql.NullTime
		deferUntil        sql.NullTime
		externalRef       sql.NullString
		sourceSystem      sql.NullString
		sender            sql.NullString
		deletedAt         sql.NullTime
		deletedBy         sql.NullString
		deleteReason      sql.NullString
		originalType      sql.NullString
		compactionLevel   sql.NullInt64
		compactedAt       sql.NullTime
		compactedAtCommit sql.NullString
		originalSize      sql.NullInt64
		ephemeral         sql.NullInt64
		pinned            sql.NullInt64
		isTemplate        sql.NullInt64
	)

	err := row.Scan(
		&issue.ID, &contentHash, &issue.Title, &issue.Description, &issue.Design,
		&issue.AcceptanceCriteria, &issue.Notes,
		&issue.Status, &issue.Priority, &issue.IssueType, &assignee, &owner, &estimatedMinutes,
		&issue.CreatedAt, &createdBy, &issue.UpdatedAt, &closedAt, &closeReason,
		&dueAt, &deferUntil, &externalRef, &sourceSystem, &sender,
		&deletedAt, &deletedBy, &deleteReason, &originalType,
		&compactionLevel, &compactedAt, &compactedAtCommit, &originalSize,
		&ephemeral, &pinned, &isTemplate,
	)
	if err != nil {
		return nil, err
	}

	if contentHash.Valid {
		issue.ContentHash = contentHash.String
	}
	if assignee.Valid {
		issue.Assignee = assignee.String
	}
	if owner.Valid {
		issue.Owner = owner.String
	}
	if estimatedMinutes.Valid {
		mins := int(estimatedMinutes.Int64)
		issue.EstimatedMinutes = &mins
	}
	if createdBy.Valid {
		issue.CreatedBy = createdBy.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		issue.ClosedAt = &t
	}
	if closeReason.Valid {
		issue.CloseReason = closeReason.String
	}
	if dueAt.Valid {
		t := dueAt.Time
		issue.DueAt = &t
	}
	if deferUntil.Valid {
		t := deferUntil.Time
		issue.DeferUntil = &t
	}
	if externalRef.Valid {
		issue.ExternalRef = &externalRef.String
	}
	if sourceSystem.Valid {
		issue.SourceSystem = sourceSystem.String
	}
	if sender.Valid {
		issue.Sender = sender.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		issue.DeletedAt = &t
	}
	if deletedBy.Valid {
		issue.DeletedBy = deletedBy.String
	}
	if deleteReason.Valid {
		issue.DeleteReason = deleteReason.String
	}
	if originalType.Valid {
		issue.OriginalType = originalType.String
	}
	if compactionLevel.Valid {
		issue.CompactionLevel = int(compactionLevel.Int64)
	}
	if compactedAt.Valid {
		t := compactedAt.Time
		issue.CompactedAt = &t
	}
	if compactedAtCommit.Valid {
		issue.CompactedAtCommit = &compactedAtCommit.String
	}
	if originalSize.Valid {
		issue.OriginalSize = int(originalSize.Int64)
	}
	issue.Ephemeral = ephemeral.Valid && ephemeral.Int64 != 0
	issue.Pinned = pinned.Valid && pinned.Int64 != 0
	issue.IsTemplate = isTemplate.Valid && isTemplate.Int64 != 0

	return &issue, nil
}

// scanIssues drains a result set through scanIssue.
func scanIssues(rows *sql.Rows) ([]*types.Issue, error) {
	defer func() { _ = rows.Close() }()
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// prefixedIssueColumns qualifies every column in issueColumns with a table
// alias, for queries that join issues against other tables.
func prefixedIssueColumns(alias string) string {
	parts := strings.Split(issueColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// depTypeScanner appends a trailing dependency-type column to an issue scan.
type depTypeScanner struct {
	rows    *sql.Rows
	depType *types.DependencyType
}

func (d depTypeScanner) Scan(dest ...interface{}) error {
	return d.rows.Scan(append(dest, d.depType)...)
}

// scanIssueWithDepType reads an issueColumns row followed by an edge type.
func scanIssueWithDepType(rows *sql.Rows) (*types.IssueWithDependencyMetadata, error) {
	var item types.IssueWithDependencyMetadata
	issue, err := scanIssue(depTypeScanner{rows: rows, depType: &item.DependencyType})
	if err != nil {
		return nil, fmt.Errorf("failed to scan related issue: %w", err)
	}
	item.Issue = *issue
	return &item, nil
}
