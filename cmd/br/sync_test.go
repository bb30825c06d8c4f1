package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

func TestSyncFlushWritesJSONL(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "Durable", "--label", "backend"); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Flush *storage.FlushStats `json:"flush"`
	}
	runJSON(t, &out, "sync", "--flush-only")
	if out.Flush == nil || out.Flush.Exported != 1 {
		t.Fatalf("flush stats %+v", out.Flush)
	}

	jsonlPath := filepath.Join(".beads", "bd.jsonl")
	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, `{"id":"bd-001"`) {
		t.Errorf("jsonl line %q", line)
	}
	if !strings.Contains(line, `"labels":["backend"]`) {
		t.Errorf("labels missing from line %q", line)
	}

	// A second flush has nothing dirty.
	runJSON(t, &out, "sync", "--flush-only")
	if out.Flush.Exported != 0 {
		t.Errorf("no-op flush exported %d", out.Flush.Exported)
	}
}

func TestSyncImportRoundTrip(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "Shared work"); err != nil {
		t.Fatal(err)
	}
	if _, err := runBR(t, "sync", "--flush-only"); err != nil {
		t.Fatal(err)
	}

	// Simulate an externally authored change landing in the JSONL.
	jsonlPath := filepath.Join(".beads", "bd.jsonl")
	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(string(data), "Shared work", "Shared work, renamed", 1)
	if err := os.WriteFile(jsonlPath, []byte(edited), 0o600); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Import *storage.ImportStats `json:"import"`
	}
	runJSON(t, &out, "sync", "--import-only")
	if out.Import == nil || out.Import.Updated != 1 {
		t.Fatalf("import stats %+v", out.Import)
	}

	var issue types.Issue
	runJSON(t, &issue, "show", "bd-001")
	if issue.Title != "Shared work, renamed" {
		t.Errorf("title = %q", issue.Title)
	}

	// Re-importing the same file is a no-op.
	runJSON(t, &out, "sync", "--import-only")
	if out.Import.Skipped != 1 || out.Import.Updated != 0 {
		t.Errorf("second import %+v", out.Import)
	}
}

func TestSyncMalformedLineFailsWithoutLenient(t *testing.T) {
	setupWorkspace(t)

	jsonlPath := filepath.Join(".beads", "bd.jsonl")
	if err := os.WriteFile(jsonlPath, []byte("not json\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := runBR(t, "sync", "--import-only")
	if err == nil {
		t.Fatal("malformed line should abort the import")
	}
	if exitCode(err) != 1 {
		t.Errorf("parse error should exit 1, got %d", exitCode(err))
	}

	out, err := runBR(t, "sync", "--import-only", "--lenient")
	if err != nil {
		t.Fatalf("lenient import failed: %v", err)
	}
	if !strings.Contains(out, "malformed") {
		t.Errorf("lenient output should report skips: %q", out)
	}
}

func TestSyncWritesBackups(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "First"); err != nil {
		t.Fatal(err)
	}
	if _, err := runBR(t, "sync", "--flush-only"); err != nil {
		t.Fatal(err)
	}
	if _, err := runBR(t, "create", "Second"); err != nil {
		t.Fatal(err)
	}
	if _, err := runBR(t, "sync", "--flush-only"); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(".beads", ".br_history"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		// The first flush has no prior file to snapshot; the second backs up
		// the first flush's content.
		t.Errorf("expected 1 backup, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "bd.") || !strings.HasSuffix(entries[0].Name(), ".jsonl") {
		t.Errorf("backup name %q", entries[0].Name())
	}
}
