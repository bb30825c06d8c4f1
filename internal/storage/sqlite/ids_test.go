package sqlite

import (
	"context"
	"testing"

	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/types"
)

func TestIDGenerationSkipsImportedIDs(t *testing.T) {
	store := newTestStore(t)

	// An imported issue already occupies the counter's next slot.
	mustCreate(t, store, "Imported", func(i *types.Issue) { i.ID = "bd-001" })

	issue := mustCreate(t, store, "Generated")
	if issue.ID != "bd-002" {
		t.Errorf("generator should skip bd-001, got %s", issue.ID)
	}
}

func TestIDGenerationNeverCollides(t *testing.T) {
	store := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		issue := mustCreate(t, store, "Issue")
		if seen[issue.ID] {
			t.Fatalf("duplicate generated ID %s", issue.ID)
		}
		seen[issue.ID] = true
	}
}

func TestChildIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := mustCreate(t, store, "Parent")

	first, err := store.NextChildID(ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first != parent.ID+".1" {
		t.Errorf("first child = %s, want %s.1", first, parent.ID)
	}
	mustCreate(t, store, "Child", func(i *types.Issue) { i.ID = first })

	second, err := store.NextChildID(ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second != parent.ID+".2" {
		t.Errorf("second child = %s, want %s.2", second, parent.ID)
	}

	if _, err := store.NextChildID(ctx, "bd-404"); err == nil {
		t.Error("child of a missing parent should fail")
	}
}

func TestExplicitChildBumpsCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := mustCreate(t, store, "Parent")

	// An explicitly supplied child number must push the counter past it.
	mustCreate(t, store, "Imported child", func(i *types.Issue) { i.ID = parent.ID + ".7" })

	next, err := store.NextChildID(ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next != parent.ID+".8" {
		t.Errorf("counter should continue after the imported child, got %s", next)
	}
}

func TestChildRequiresExistingParent(t *testing.T) {
	store := newTestStore(t)
	issue := &types.Issue{
		ID: "bd-zzz.1", Title: "Orphan", Status: types.StatusOpen,
		IssueType: types.TypeTask, Priority: 2,
	}
	if err := store.CreateIssue(context.Background(), issue, "tester"); err == nil {
		t.Fatal("creating a child under a missing parent should fail")
	}
}

func TestResolveIDAgainstStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Resolvable")

	res, err := store.ResolveID(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != idgen.MatchExact || res.ID != issue.ID {
		t.Errorf("full ID resolution: %+v", res)
	}

	// Bare suffix applies the workspace prefix.
	res, err = store.ResolveID(ctx, "001")
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != idgen.MatchExact || res.ID != issue.ID {
		t.Errorf("suffix resolution: %+v", res)
	}
}
