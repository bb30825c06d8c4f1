package compact

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/braid-dev/braid/internal/storage/sqlite"
	"github.com/braid-dev/braid/internal/types"
)

type fakeSummarizer struct {
	calls int
	fail  map[string]bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, issue *types.Issue) (string, error) {
	f.calls++
	if f.fail[issue.ID] {
		return "", fmt.Errorf("api unavailable")
	}
	return "summary of " + issue.Title, nil
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.SetConfig(context.Background(), "issue_prefix", "bd"); err != nil {
		t.Fatal(err)
	}
	return store
}

// closedIssue creates and closes an issue, backdating closed_at.
func closedIssue(t *testing.T, store *sqlite.Store, title string, closedDaysAgo int) *types.Issue {
	t.Helper()
	ctx := context.Background()
	issue := &types.Issue{
		Title: title, Status: types.StatusOpen, Priority: 2, IssueType: types.TypeTask,
		Description: "a very long description that compaction will squash",
	}
	if err := store.CreateIssue(ctx, issue, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CloseIssue(ctx, issue.ID, "done", "tester"); err != nil {
		t.Fatal(err)
	}
	closedAt := time.Now().UTC().AddDate(0, 0, -closedDaysAgo)
	if _, err := store.UnderlyingDB().Exec(
		`UPDATE issues SET closed_at = ? WHERE id = ?`, closedAt, issue.ID); err != nil {
		t.Fatal(err)
	}
	return issue
}

func TestRunCompactsOldClosedIssues(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	old := closedIssue(t, store, "Ancient work", 120)
	closedIssue(t, store, "Recent work", 5)

	summarizer := &fakeSummarizer{}
	result, err := Run(ctx, store, summarizer, 90, 0, "tester", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Candidates != 1 || len(result.Compacted) != 1 || result.Compacted[0] != old.ID {
		t.Fatalf("result %+v, want just %s", result, old.ID)
	}

	got, err := store.GetIssue(ctx, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompactionLevel != 1 || got.CompactedAt == nil || got.OriginalSize == 0 {
		t.Errorf("compaction metadata missing: %+v", got)
	}
	if got.Description != "summary of Ancient work" {
		t.Errorf("description = %q", got.Description)
	}

	// The original content is snapshotted for reversibility.
	var snapshots int
	if err := store.UnderlyingDB().QueryRow(
		`SELECT COUNT(*) FROM issue_snapshots WHERE issue_id = ?`, old.ID).Scan(&snapshots); err != nil {
		t.Fatal(err)
	}
	if snapshots != 1 {
		t.Errorf("snapshots = %d, want 1", snapshots)
	}

	// Already-compacted issues are no longer candidates.
	result, err = Run(ctx, store, summarizer, 90, 0, "tester", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Candidates != 0 {
		t.Errorf("second run candidates = %d, want 0", result.Candidates)
	}
}

func TestRunDryRunCallsNoAPI(t *testing.T) {
	store := newStore(t)
	closedIssue(t, store, "Old", 120)

	result, err := Run(context.Background(), store, nil, 90, 0, "tester", true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.DryRun || result.Candidates != 1 || len(result.Compacted) != 1 {
		t.Errorf("dry run result %+v", result)
	}
}

func TestRunCollectsPerIssueFailures(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	bad := closedIssue(t, store, "Flaky", 120)
	good := closedIssue(t, store, "Fine", 120)

	summarizer := &fakeSummarizer{fail: map[string]bool{bad.ID: true}}
	result, err := Run(ctx, store, summarizer, 90, 0, "tester", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Compacted) != 1 || result.Compacted[0] != good.ID {
		t.Errorf("compacted %v, want just %s", result.Compacted, good.ID)
	}
	if len(result.Failed) != 1 {
		t.Errorf("failed %v, want one entry", result.Failed)
	}
}
