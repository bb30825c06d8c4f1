package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

func TestCreateAndJSONShape(t *testing.T) {
	setupWorkspace(t)

	var created types.Issue
	runJSON(t, &created, "create", "Write spec", "--priority", "1", "--type", "task")

	if created.ID != "bd-001" {
		t.Errorf("first ID = %s, want bd-001", created.ID)
	}
	if created.Title != "Write spec" || created.Priority != 1 || created.IssueType != types.TypeTask {
		t.Errorf("created issue %+v", created)
	}
	if created.Status != types.StatusOpen {
		t.Errorf("status = %s, want open", created.Status)
	}
}

func TestCreateWithLabelsAndDeps(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "Blocker"); err != nil {
		t.Fatal(err)
	}
	if _, err := runBR(t, "create", "Blocked", "--label", "urgent", "--label", "backend", "--dep", "bd-001"); err != nil {
		t.Fatal(err)
	}

	var details types.IssueDetails
	runJSON(t, &details, "show", "bd-002")
	if diff := cmp.Diff([]string{"backend", "urgent"}, details.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if len(details.Dependencies) != 1 || details.Dependencies[0].ID != "bd-001" {
		t.Errorf("dependencies %+v", details.Dependencies)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	setupWorkspace(t)

	_, err := runBR(t, "create")
	if errs.CodeOf(err) != errs.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if exitCode(err) != 1 {
		t.Errorf("missing title should exit 1, got %d", exitCode(err))
	}
}

func TestCreateExplicitIDCollision(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "First", "--id", "bd-dup"); err != nil {
		t.Fatal(err)
	}
	_, err := runBR(t, "create", "Second", "--id", "bd-dup")
	if errs.CodeOf(err) != errs.CodeIDCollision {
		t.Fatalf("expected IdCollision, got %v", err)
	}
}

func TestCreateWithParentAssignsChildID(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "Epic", "--type", "epic"); err != nil {
		t.Fatal(err)
	}
	var child types.Issue
	runJSON(t, &child, "create", "Step one", "--parent", "bd-001")
	if child.ID != "bd-001.1" {
		t.Errorf("child ID = %s, want bd-001.1", child.ID)
	}

	var details types.IssueDetails
	runJSON(t, &details, "show", "bd-001.1")
	if details.Parent == nil || *details.Parent != "bd-001" {
		t.Errorf("parent = %v, want bd-001", details.Parent)
	}
}

func TestSplitLabels(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"urgent", []string{"urgent"}},
		{"urgent, backend", []string{"urgent", "backend"}},
		{" a ,, b , ", []string{"a", "b"}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, splitLabels(tc.raw)); diff != "" {
			t.Errorf("splitLabels(%q) (-want +got):\n%s", tc.raw, diff)
		}
	}
}

func TestParsePriorityChoice(t *testing.T) {
	if parsePriorityChoice("0", 2) != 0 {
		t.Error("explicit 0 should parse")
	}
	if parsePriorityChoice("4", 2) != 4 {
		t.Error("explicit 4 should parse")
	}
	for _, bad := range []string{"", "x", "-1", "5"} {
		if parsePriorityChoice(bad, 2) != 2 {
			t.Errorf("parsePriorityChoice(%q) should fall back", bad)
		}
	}
}

func TestParseDepSpec(t *testing.T) {
	setupWorkspace(t)
	if _, err := runBR(t, "create", "Target"); err != nil {
		t.Fatal(err)
	}
	ctx := openStore(t)

	dep, err := parseDepSpec(ctx, "bd-999", "bd-001")
	if err != nil {
		t.Fatal(err)
	}
	if dep.Type != types.DepBlocks || dep.DependsOnID != "bd-001" {
		t.Errorf("bare spec: %+v", dep)
	}

	dep, err = parseDepSpec(ctx, "bd-999", "related:bd-001")
	if err != nil {
		t.Fatal(err)
	}
	if dep.Type != types.DepRelated {
		t.Errorf("typed spec: %+v", dep)
	}

	if _, err := parseDepSpec(ctx, "bd-999", "bogus:bd-001"); errs.CodeOf(err) != errs.CodeInvalidArgument {
		t.Errorf("invalid type should fail, got %v", err)
	}
}

func TestCreateNonJSONOutput(t *testing.T) {
	setupWorkspace(t)

	out, err := runBR(t, "create", "Readable")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Created") || !strings.Contains(out, "bd-001") {
		t.Errorf("unexpected output %q", out)
	}
}
