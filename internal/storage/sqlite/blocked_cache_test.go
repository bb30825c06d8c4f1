package sqlite

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/braid-dev/braid/internal/types"
)

func readyIDs(t *testing.T, store *Store) []string {
	t.Helper()
	issues, err := store.ReadyIssues(context.Background(), types.IssueFilter{Limit: -1})
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	return ids
}

func TestReadinessFollowsDependencies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	design := mustCreate(t, store, "Design")
	implement := mustCreate(t, store, "Implement")
	addDep(t, store, implement.ID, design.ID, types.DepBlocks)

	if diff := cmp.Diff([]string{design.ID}, readyIDs(t, store)); diff != "" {
		t.Errorf("ready before close (-want +got):\n%s", diff)
	}

	blocked, err := store.BlockedIssues(ctx, types.IssueFilter{Limit: -1})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked) != 1 || blocked[0].ID != implement.ID {
		t.Fatalf("blocked = %+v, want just %s", blocked, implement.ID)
	}
	if diff := cmp.Diff([]string{design.ID}, blocked[0].BlockedBy); diff != "" {
		t.Errorf("blocked_by (-want +got):\n%s", diff)
	}

	// Closing the blocker flips readiness.
	if _, err := store.CloseIssue(ctx, design.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{implement.ID}, readyIDs(t, store)); diff != "" {
		t.Errorf("ready after close (-want +got):\n%s", diff)
	}
	blocked, err = store.BlockedIssues(ctx, types.IssueFilter{Limit: -1})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked) != 0 {
		t.Errorf("nothing should be blocked, got %+v", blocked)
	}
}

func TestCacheEmptyAtCommitAfterInvalidatingMutations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, store, "A")
	b := mustCreate(t, store, "B")
	addDep(t, store, b.ID, a.ID, types.DepBlocks)

	// Populate the cache via a read.
	if _, err := store.ReadyIssues(ctx, types.IssueFilter{}); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, store, "blocked_issues_cache", ""); n != 1 {
		t.Fatalf("cache should hold the blocked issue, got %d rows", n)
	}

	// Every readiness-affecting mutation leaves the cache empty at commit.
	status := types.StatusInProgress
	if _, err := store.UpdateIssue(ctx, a.ID, &types.IssuePatch{Status: &status}, "tester"); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, store, "blocked_issues_cache", ""); n != 0 {
		t.Errorf("cache should be empty after a status change, got %d rows", n)
	}
}

func TestCacheLazyRebuildMatchesPrimaryTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, store, "Blocker")
	b := mustCreate(t, store, "Blocked one")
	c := mustCreate(t, store, "Blocked two")
	addDep(t, store, b.ID, a.ID, types.DepBlocks)
	addDep(t, store, c.ID, a.ID, types.DepBlocks)

	blocked, err := store.blockedMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		b.ID: {a.ID},
		c.ID: {a.ID},
	}
	if diff := cmp.Diff(want, blocked); diff != "" {
		t.Errorf("blocked map (-want +got):\n%s", diff)
	}
	if n := countRows(t, store, "blocked_issues_cache", ""); n != 2 {
		t.Errorf("rebuild should persist 2 cache rows, got %d", n)
	}

	// A populated cache is trusted verbatim on the next read.
	again, err := store.blockedMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(blocked, again); diff != "" {
		t.Errorf("cached read diverged (-first +second):\n%s", diff)
	}
}

func TestReadyExcludesDeferredAndTemplates(t *testing.T) {
	store := newTestStore(t)

	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)
	mustCreate(t, store, "Deferred", func(i *types.Issue) { i.DeferUntil = &future })
	wasDeferred := mustCreate(t, store, "Formerly deferred", func(i *types.Issue) { i.DeferUntil = &past })
	mustCreate(t, store, "Template", func(i *types.Issue) { i.IsTemplate = true })
	open := mustCreate(t, store, "Plain")

	got := readyIDs(t, store)
	sort.Strings(got)
	want := []string{wasDeferred.ID, open.ID}
	sort.Strings(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ready set (-want +got):\n%s", diff)
	}
}

func TestRelatedEdgesDoNotBlock(t *testing.T) {
	store := newTestStore(t)
	a := mustCreate(t, store, "A")
	b := mustCreate(t, store, "B")
	addDep(t, store, b.ID, a.ID, types.DepRelated)

	got := readyIDs(t, store)
	if len(got) != 2 {
		t.Errorf("related edges must not block: ready = %v", got)
	}
}
