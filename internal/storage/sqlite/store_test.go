package sqlite

import (
	"context"
	"testing"

	"github.com/braid-dev/braid/internal/types"
)

// newTestStore opens an initialized in-memory store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.SetConfig(context.Background(), "issue_prefix", "bd"); err != nil {
		t.Fatalf("failed to set prefix: %v", err)
	}
	return store
}

// mustCreate creates an issue with sensible defaults and returns it.
func mustCreate(t *testing.T, store *Store, title string, mutate ...func(*types.Issue)) *types.Issue {
	t.Helper()
	issue := &types.Issue{
		Title:     title,
		Status:    types.StatusOpen,
		Priority:  2,
		IssueType: types.TypeTask,
	}
	for _, m := range mutate {
		m(issue)
	}
	if err := store.CreateIssue(context.Background(), issue, "tester"); err != nil {
		t.Fatalf("failed to create issue %q: %v", title, err)
	}
	return issue
}

// countRows counts rows in a table, optionally filtered by issue_id.
func countRows(t *testing.T, store *Store, table, issueID string) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	args := []interface{}{}
	if issueID != "" {
		query += " WHERE issue_id = ?"
		args = append(args, issueID)
	}
	var n int
	if err := store.UnderlyingDB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// addDep wires src to depend on dst.
func addDep(t *testing.T, store *Store, src, dst string, depType types.DependencyType) {
	t.Helper()
	err := store.AddDependency(context.Background(), &types.Dependency{
		IssueID:     src,
		DependsOnID: dst,
		Type:        depType,
	}, "tester")
	if err != nil {
		t.Fatalf("failed to add dependency %s -> %s: %v", src, dst, err)
	}
}
