package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

// AddComment appends a comment to an issue. Comments are append-only; the
// core has no edit or delete path.
func (s *Store) AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	if text == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "comment text cannot be empty")
	}

	var comment *types.Comment
	err := s.mutate(ctx, "comment.add", author, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		if _, err := mustGetOn(ctx, conn, issueID); err != nil {
			return err
		}

		res, err := conn.ExecContext(ctx, `
			INSERT INTO comments (issue_id, author, text, created_at)
			VALUES (?, ?, ?, ?)
		`, issueID, author, text, mc.Now)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		commentID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get comment ID: %w", err)
		}

		if _, err := conn.ExecContext(ctx, `
			UPDATE issues SET updated_at = ? WHERE id = ?
		`, mc.Now, issueID); err != nil {
			return fmt.Errorf("failed to touch issue: %w", err)
		}

		mc.RecordNote(issueID, types.EventCommentAdded, text)
		mc.MarkDirty(issueID)

		comment = &types.Comment{
			ID:        commentID,
			IssueID:   issueID,
			Author:    author,
			Text:      text,
			CreatedAt: mc.Now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetComments returns an issue's comments in chronological order.
func (s *Store) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	return getCommentsOn(ctx, s.db, issueID)
}

func getCommentsOn(ctx context.Context, q dbtx, issueID string) ([]*types.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at
		FROM comments
		WHERE issue_id = ?
		ORDER BY created_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// AllComments returns every issue's comments in one query, for bulk export.
func (s *Store) AllComments(ctx context.Context) (map[string][]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at
		FROM comments
		ORDER BY issue_id, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	comments := make(map[string][]*types.Comment)
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments[c.IssueID] = append(comments[c.IssueID], &c)
	}
	return comments, rows.Err()
}
