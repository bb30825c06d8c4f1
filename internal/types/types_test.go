package types

import (
	"testing"
	"time"
)

func validIssue() *Issue {
	return &Issue{
		ID:        "br-001",
		Title:     "Test issue",
		Status:    StatusOpen,
		Priority:  2,
		IssueType: TypeTask,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := validIssue()
	b := validIssue()
	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Fatal("identical issues should hash identically")
	}
}

func TestContentHashIgnoresLabelOrder(t *testing.T) {
	a := validIssue()
	a.Labels = []string{"backend", "urgent"}
	b := validIssue()
	b.Labels = []string{"urgent", "backend"}
	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Fatal("label order should not affect the hash")
	}
}

func TestContentHashIgnoresTimestamps(t *testing.T) {
	a := validIssue()
	b := validIssue()
	b.CreatedAt = b.CreatedAt.Add(24 * time.Hour)
	b.UpdatedAt = b.UpdatedAt.Add(48 * time.Hour)
	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Fatal("timestamps should not affect the hash")
	}
}

func TestContentHashCoversStableFields(t *testing.T) {
	base := validIssue().ComputeContentHash()

	mutations := []func(*Issue){
		func(i *Issue) { i.Title = "Other" },
		func(i *Issue) { i.Description = "body" },
		func(i *Issue) { i.IssueType = TypeBug },
		func(i *Issue) { i.Priority = 0 },
		func(i *Issue) { i.Status = StatusInProgress },
		func(i *Issue) { i.Assignee = "alice" },
		func(i *Issue) { i.Labels = []string{"x"} },
		func(i *Issue) {
			i.Dependencies = []*Dependency{{IssueID: i.ID, DependsOnID: "br-002", Type: DepBlocks}}
		},
	}
	for n, mutate := range mutations {
		issue := validIssue()
		mutate(issue)
		if issue.ComputeContentHash() == base {
			t.Errorf("mutation %d should change the hash", n)
		}
	}
}

func TestContentHashFieldSeparation(t *testing.T) {
	a := validIssue()
	a.Title = "ab"
	a.Description = "c"
	b := validIssue()
	b.Title = "a"
	b.Description = "bc"
	if a.ComputeContentHash() == b.ComputeContentHash() {
		t.Fatal("adjacent fields must not collide")
	}
}

func TestValidateTombstoneInvariants(t *testing.T) {
	now := time.Now()

	issue := validIssue()
	issue.Status = StatusTombstone
	if err := issue.Validate(); err == nil {
		t.Fatal("tombstone without deletion metadata should fail validation")
	}

	issue.DeletedAt = &now
	issue.DeletedBy = "alice"
	issue.DeleteReason = "obsolete"
	issue.OriginalType = "task"
	if err := issue.Validate(); err != nil {
		t.Fatalf("complete tombstone should validate: %v", err)
	}

	live := validIssue()
	live.DeletedAt = &now
	if err := live.Validate(); err == nil {
		t.Fatal("non-tombstone with deleted_at should fail validation")
	}
}

func TestValidateClosedAt(t *testing.T) {
	now := time.Now()

	issue := validIssue()
	issue.Status = StatusClosed
	if err := issue.Validate(); err == nil {
		t.Fatal("closed issue without closed_at should fail")
	}
	issue.ClosedAt = &now
	if err := issue.Validate(); err != nil {
		t.Fatalf("closed issue with closed_at should validate: %v", err)
	}

	open := validIssue()
	open.ClosedAt = &now
	if err := open.Validate(); err == nil {
		t.Fatal("open issue with closed_at should fail")
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := map[string]func(*Issue){
		"empty title":    func(i *Issue) { i.Title = "" },
		"priority high":  func(i *Issue) { i.Priority = 5 },
		"priority low":   func(i *Issue) { i.Priority = -1 },
		"bad status":     func(i *Issue) { i.Status = "paused" },
		"bad type":       func(i *Issue) { i.IssueType = "story" },
		"negative estim": func(i *Issue) { n := -5; i.EstimatedMinutes = &n },
	}
	for name, mutate := range cases {
		issue := validIssue()
		mutate(issue)
		if err := issue.Validate(); err == nil {
			t.Errorf("%s: expected validation failure", name)
		}
	}
}

func TestSetDefaults(t *testing.T) {
	issue := &Issue{Title: "x"}
	issue.SetDefaults()
	if issue.Status != StatusOpen {
		t.Errorf("default status = %s, want open", issue.Status)
	}
	if issue.IssueType != TypeTask {
		t.Errorf("default type = %s, want task", issue.IssueType)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if !StatusClosed.IsTerminal() || !StatusTombstone.IsTerminal() {
		t.Fatal("closed and tombstone are terminal")
	}
	if StatusOpen.IsTerminal() || StatusInProgress.IsTerminal() || StatusBlocked.IsTerminal() {
		t.Fatal("open, in_progress, blocked are not terminal")
	}
}

func TestNormalizeType(t *testing.T) {
	if IssueType("enhancement").Normalize() != TypeFeature {
		t.Fatal("enhancement should normalize to feature")
	}
	if TypeBug.Normalize() != TypeBug {
		t.Fatal("bug should stay bug")
	}
}

func TestAffectsReadiness(t *testing.T) {
	if !DepBlocks.AffectsReadiness() || !DepParentChild.AffectsReadiness() {
		t.Fatal("blocks and parent-child affect readiness")
	}
	if DepRelated.AffectsReadiness() || DepDiscoveredFrom.AffectsReadiness() {
		t.Fatal("association edges do not affect readiness")
	}
}
