package sqlite

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

// chain builds A <- B <- C (B depends on A, C depends on B).
func chain(t *testing.T, store *Store) (a, b, c *types.Issue) {
	t.Helper()
	a = mustCreate(t, store, "A")
	b = mustCreate(t, store, "B")
	c = mustCreate(t, store, "C")
	addDep(t, store, b.ID, a.ID, types.DepBlocks)
	addDep(t, store, c.ID, b.ID, types.DepBlocks)
	return a, b, c
}

func TestDeleteCascadeTombstonesSubtree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, b, c := chain(t, store)

	result, err := store.DeleteIssues(ctx, []string{a.ID}, storage.DeleteOptions{
		Cascade: true, Reason: "cleanup",
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{a.ID, b.ID, c.ID}
	sort.Strings(want)
	if diff := cmp.Diff(want, result.Deleted); diff != "" {
		t.Errorf("deleted set (-want +got):\n%s", diff)
	}

	for _, id := range want {
		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !issue.IsTombstone() {
			t.Errorf("%s should be a tombstone, status = %s", id, issue.Status)
		}
		if issue.DeletedAt == nil || issue.DeletedBy != "tester" ||
			issue.DeleteReason != "cleanup" || issue.OriginalType != "task" {
			t.Errorf("%s tombstone fields incomplete: %+v", id, issue)
		}
	}

	// One deleted event per node.
	events, err := store.GetEvents(ctx, types.EventFilter{EventType: types.EventDeleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 deleted events, got %d", len(events))
	}

	// Edges stay in the table as history; the blocked cache is empty.
	var edges int
	if err := store.UnderlyingDB().QueryRow(`SELECT COUNT(*) FROM dependencies`).Scan(&edges); err != nil {
		t.Fatal(err)
	}
	if edges != 2 {
		t.Errorf("dependencies should survive as history, found %d", edges)
	}
	if n := countRows(t, store, "blocked_issues_cache", ""); n != 0 {
		t.Errorf("blocked cache should be empty, found %d rows", n)
	}
}

func TestDeleteWithoutCascadeFailsOnDependents(t *testing.T) {
	store := newTestStore(t)
	a, _, _ := chain(t, store)

	_, err := store.DeleteIssues(context.Background(), []string{a.ID}, storage.DeleteOptions{}, "tester")
	if errs.CodeOf(err) != errs.CodeHasDependents {
		t.Fatalf("expected HasDependents, got %v", err)
	}

	// Nothing was written.
	issue, err := store.GetIssue(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if issue.IsTombstone() {
		t.Error("failed delete must not tombstone")
	}
}

func TestDeleteForceOrphansDependents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, b, _ := chain(t, store)

	result, err := store.DeleteIssues(ctx, []string{a.ID}, storage.DeleteOptions{Force: true}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{a.ID}, result.Deleted); diff != "" {
		t.Errorf("deleted (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{b.ID}, result.Orphaned); diff != "" {
		t.Errorf("orphaned (-want +got):\n%s", diff)
	}

	// The orphan survives: a tombstoned blocker is terminal, so b is ready
	// again, while c stays blocked behind the live b.
	ready := readyIDs(t, store)
	if diff := cmp.Diff([]string{b.ID}, ready); diff != "" {
		t.Errorf("ready after force delete (-want +got):\n%s", diff)
	}
}

func TestDeleteDryRunWritesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, _, _ := chain(t, store)

	result, err := store.DeleteIssues(ctx, []string{a.ID}, storage.DeleteOptions{
		Cascade: true, DryRun: true,
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Deleted) != 3 {
		t.Errorf("dry run should report the full closure, got %v", result.Deleted)
	}

	for _, id := range result.Deleted {
		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if issue.IsTombstone() {
			t.Errorf("dry run tombstoned %s", id)
		}
	}
	events, err := store.GetEvents(ctx, types.EventFilter{EventType: types.EventDeleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("dry run must not record events, got %d", len(events))
	}
}

func TestHardDeleteRemovesRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Ephemeral")

	if _, err := store.DeleteIssues(ctx, []string{issue.ID}, storage.DeleteOptions{Hard: true}, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("hard delete should remove the row")
	}
}

func TestDeleteMissingIssue(t *testing.T) {
	store := newTestStore(t)
	_, err := store.DeleteIssues(context.Background(), []string{"bd-404"}, storage.DeleteOptions{}, "tester")
	if errs.CodeOf(err) != errs.CodeIssueNotFound {
		t.Fatalf("expected IssueNotFound, got %v", err)
	}
}

func TestListHidesTombstonesByDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Doomed")
	keep := mustCreate(t, store, "Kept")

	if _, err := store.DeleteIssues(ctx, []string{issue.ID}, storage.DeleteOptions{}, "tester"); err != nil {
		t.Fatal(err)
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 || issues[0].ID != keep.ID {
		t.Errorf("list should hide tombstones: %+v", issues)
	}

	withTombstones, err := store.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true, IncludeClosed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(withTombstones) != 2 {
		t.Errorf("explicit request should include tombstones, got %d", len(withTombstones))
	}
}
