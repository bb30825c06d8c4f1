package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/braid-dev/braid/internal/types"
)

func TestListDefaultsAndOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := mustCreate(t, store, "Backlog", func(i *types.Issue) { i.Priority = 4 })
	high := mustCreate(t, store, "Urgent", func(i *types.Issue) { i.Priority = 0 })
	closed := mustCreate(t, store, "Done")
	if _, err := store.CloseIssue(ctx, closed.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	// Priority ascending; closed excluded by default.
	want := []string{high.ID, low.ID}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}

	all, err := store.ListIssues(ctx, types.IssueFilter{IncludeClosed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("include_closed should show 3, got %d", len(all))
	}
}

func TestListLabelFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	both := mustCreate(t, store, "Both labels")
	one := mustCreate(t, store, "One label")
	mustCreate(t, store, "No labels")

	for _, label := range []string{"urgent", "backend"} {
		if _, err := store.AddLabel(ctx, both.ID, label, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.AddLabel(ctx, one.ID, "urgent", "tester"); err != nil {
		t.Fatal(err)
	}

	andMatch, err := store.ListIssues(ctx, types.IssueFilter{Labels: []string{"urgent", "backend"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(andMatch) != 1 || andMatch[0].ID != both.ID {
		t.Errorf("AND labels: got %+v", andMatch)
	}

	anyMatch, err := store.ListIssues(ctx, types.IssueFilter{LabelsAny: []string{"urgent", "backend"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(anyMatch) != 2 {
		t.Errorf("ANY labels: expected 2, got %d", len(anyMatch))
	}
}

func TestSearchMatchesTitleDescriptionAndID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inTitle := mustCreate(t, store, "Fix the parser")
	inDesc := mustCreate(t, store, "Other", func(i *types.Issue) { i.Description = "parser rewrite" })
	mustCreate(t, store, "Unrelated")

	found, err := store.SearchIssues(ctx, "parser", types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	seen := map[string]bool{}
	for _, issue := range found {
		seen[issue.ID] = true
	}
	if !seen[inTitle.ID] || !seen[inDesc.ID] {
		t.Errorf("matches missing: %v", seen)
	}

	// ID substring.
	byID, err := store.SearchIssues(ctx, inTitle.ID, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 1 || byID[0].ID != inTitle.ID {
		t.Errorf("ID search: got %+v", byID)
	}

	// Empty query returns the empty set.
	empty, err := store.SearchIssues(ctx, "   ", types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty query should match nothing, got %d", len(empty))
	}
}

func TestCountGroupBy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store, "Bug one", func(i *types.Issue) { i.IssueType = types.TypeBug })
	mustCreate(t, store, "Bug two", func(i *types.Issue) { i.IssueType = types.TypeBug })
	mustCreate(t, store, "Task")

	total, err := store.CountIssues(ctx, types.GroupByNone, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total["total"] != 3 {
		t.Errorf("total = %d, want 3", total["total"])
	}

	byType, err := store.CountIssues(ctx, types.GroupByType, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"bug": 2, "task": 1}
	if diff := cmp.Diff(want, byType); diff != "" {
		t.Errorf("count by type (-want +got):\n%s", diff)
	}
}

func TestStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, store, "Open one")
	b := mustCreate(t, store, "Open two")
	addDep(t, store, b.ID, a.ID, types.DepBlocks)

	overdue := time.Now().Add(-48 * time.Hour)
	mustCreate(t, store, "Late", func(i *types.Issue) { i.DueAt = &overdue })

	closed := mustCreate(t, store, "Done")
	if _, err := store.CloseIssue(ctx, closed.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalIssues != 4 {
		t.Errorf("total = %d, want 4", stats.TotalIssues)
	}
	if stats.ByStatus["open"] != 3 || stats.ByStatus["closed"] != 1 {
		t.Errorf("by status = %v", stats.ByStatus)
	}
	if stats.BlockedIssues != 1 {
		t.Errorf("blocked = %d, want 1", stats.BlockedIssues)
	}
	if stats.ReadyIssues != 2 {
		t.Errorf("ready = %d, want 2", stats.ReadyIssues)
	}
	if stats.OverdueIssues != 1 {
		t.Errorf("overdue = %d, want 1", stats.OverdueIssues)
	}
}

func TestGetStaleIssues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := mustCreate(t, store, "Ancient")
	mustCreate(t, store, "Fresh")

	// Backdate the first issue's updated_at.
	if _, err := store.UnderlyingDB().Exec(`
		UPDATE issues SET updated_at = datetime('now', '-60 days') WHERE id = ?
	`, old.ID); err != nil {
		t.Fatal(err)
	}

	stale, err := store.GetStaleIssues(ctx, 30, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("stale = %+v, want just %s", stale, old.ID)
	}
}
