package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

func TestCreateAssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)

	first := mustCreate(t, store, "Write spec", func(i *types.Issue) { i.Priority = 1 })
	if first.ID != "bd-001" {
		t.Errorf("first ID = %s, want bd-001", first.ID)
	}
	second := mustCreate(t, store, "Implement")
	if second.ID != "bd-002" {
		t.Errorf("second ID = %s, want bd-002", second.ID)
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "First", func(i *types.Issue) { i.ID = "bd-dup" })

	dup := &types.Issue{ID: "bd-dup", Title: "Second", Status: types.StatusOpen, IssueType: types.TypeTask, Priority: 2}
	err := store.CreateIssue(context.Background(), dup, "tester")
	if errs.CodeOf(err) != errs.CodeIDCollision {
		t.Fatalf("expected IdCollision, got %v", err)
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	store := newTestStore(t)
	issue := &types.Issue{Status: types.StatusOpen, IssueType: types.TypeTask, Priority: 2}
	err := store.CreateIssue(context.Background(), issue, "tester")
	if errs.CodeOf(err) != errs.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCreateComputesContentHash(t *testing.T) {
	store := newTestStore(t)
	issue := mustCreate(t, store, "Hashed")

	got, err := store.GetIssue(context.Background(), issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash == "" {
		t.Fatal("content hash should be set on create")
	}
	if got.ContentHash != got.ComputeContentHash() {
		t.Fatal("stored hash should be reproducible from the stable fields")
	}
}

func TestGetIssueAbsentReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetIssue(context.Background(), "bd-zzz")
	if err != nil || got != nil {
		t.Fatalf("absent issue: got (%v, %v), want (nil, nil)", got, err)
	}
}

func TestUpdateRecordsDedicatedEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Eventful")

	status := types.StatusInProgress
	priority := 0
	assignee := "alice"
	if _, err := store.UpdateIssue(ctx, issue.ID, &types.IssuePatch{
		Status:   &status,
		Priority: &priority,
		Assignee: &assignee,
	}, "tester"); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetEvents(ctx, types.EventFilter{IssueID: issue.ID})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[types.EventType]bool{}
	for _, e := range events {
		seen[e.EventType] = true
	}
	for _, want := range []types.EventType{types.EventStatusChanged, types.EventPriorityChanged, types.EventAssigned} {
		if !seen[want] {
			t.Errorf("missing %s event", want)
		}
	}

	got, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusInProgress || got.Priority != 0 || got.Assignee != "alice" {
		t.Errorf("patch not applied: %+v", got)
	}
	if !got.UpdatedAt.After(issue.UpdatedAt) && !got.UpdatedAt.Equal(issue.UpdatedAt) {
		t.Error("updated_at must be non-decreasing")
	}
}

func TestUpdateStatusChangeEventHasOldAndNew(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Transitions")

	status := types.StatusBlocked
	if _, err := store.UpdateIssue(ctx, issue.ID, &types.IssuePatch{Status: &status}, "tester"); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetEvents(ctx, types.EventFilter{IssueID: issue.ID, EventType: types.EventStatusChanged})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 status_changed event, got %d", len(events))
	}
	e := events[0]
	if e.OldValue == nil || *e.OldValue != "open" || e.NewValue == nil || *e.NewValue != "blocked" {
		t.Errorf("status event old/new = %v/%v", e.OldValue, e.NewValue)
	}
}

func TestUpdateEmptyPatchFails(t *testing.T) {
	store := newTestStore(t)
	issue := mustCreate(t, store, "Empty patch")
	_, err := store.UpdateIssue(context.Background(), issue.ID, &types.IssuePatch{}, "tester")
	if errs.CodeOf(err) != errs.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUpdateMissingIssue(t *testing.T) {
	store := newTestStore(t)
	title := "nope"
	_, err := store.UpdateIssue(context.Background(), "bd-404", &types.IssuePatch{Title: &title}, "tester")
	if errs.CodeOf(err) != errs.CodeIssueNotFound {
		t.Fatalf("expected IssueNotFound, got %v", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	issue := mustCreate(t, store, "Lifecycle")

	closed, err := store.CloseIssue(ctx, issue.ID, "done", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != types.StatusClosed || closed.ClosedAt == nil || closed.CloseReason != "done" {
		t.Errorf("close result %+v", closed)
	}

	// Closing again is an invalid transition.
	if _, err := store.CloseIssue(ctx, issue.ID, "", "tester"); errs.CodeOf(err) != errs.CodeInvalidTransition {
		t.Fatalf("double close: expected InvalidTransition, got %v", err)
	}

	reopened, err := store.ReopenIssue(ctx, issue.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Status != types.StatusOpen || reopened.ClosedAt != nil || reopened.CloseReason != "" {
		t.Errorf("reopen result %+v", reopened)
	}

	// Reopening an open issue fails with NotClosed.
	if _, err := store.ReopenIssue(ctx, issue.ID, "tester"); errs.CodeOf(err) != errs.CodeNotClosed {
		t.Fatalf("reopen open: expected NotClosed, got %v", err)
	}

	events, err := store.GetEvents(ctx, types.EventFilter{IssueID: issue.ID})
	if err != nil {
		t.Fatal(err)
	}
	var kinds []types.EventType
	for _, e := range events {
		kinds = append(kinds, e.EventType)
	}
	want := []types.EventType{types.EventCreated, types.EventClosed, types.EventReopened}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestGetIssueDetails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := mustCreate(t, store, "Epic", func(i *types.Issue) { i.IssueType = types.TypeEpic })
	child := mustCreate(t, store, "Child task")
	blocker := mustCreate(t, store, "Blocker")

	addDep(t, store, child.ID, parent.ID, types.DepParentChild)
	addDep(t, store, child.ID, blocker.ID, types.DepBlocks)
	if _, err := store.AddLabel(ctx, child.ID, "backend", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, child.ID, "alice", "on it"); err != nil {
		t.Fatal(err)
	}

	details, err := store.GetIssueDetails(ctx, child.ID, storage.DetailOptions{
		IncludeComments: true,
		IncludeEvents:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if details == nil {
		t.Fatal("details should not be nil")
	}
	if diff := cmp.Diff([]string{"backend"}, details.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if details.Parent == nil || *details.Parent != parent.ID {
		t.Errorf("parent = %v, want %s", details.Parent, parent.ID)
	}
	if len(details.Dependencies) != 2 {
		t.Errorf("expected 2 dependencies, got %d", len(details.Dependencies))
	}
	if len(details.Comments) != 1 || details.Comments[0].Text != "on it" {
		t.Errorf("comments %+v", details.Comments)
	}
	if len(details.Events) == 0 {
		t.Error("events requested but missing")
	}
}

func TestTimestampsRoundTripUTC(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issue := mustCreate(t, store, "Scheduled", func(i *types.Issue) { i.DueAt = &due })

	got, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DueAt == nil {
		t.Fatal("due_at lost")
	}
	if diff := cmp.Diff(due, got.DueAt.UTC(), cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("due_at mismatch (-want +got):\n%s", diff)
	}
}
