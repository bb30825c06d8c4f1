package main

import (
	"strings"
	"testing"
)

func TestDoctorReportCLI(t *testing.T) {
	setupWorkspace(t)

	if _, err := runBR(t, "create", "Patient"); err != nil {
		t.Fatal(err)
	}

	var report doctorReport
	runJSON(t, &report, "doctor")
	if report.Prefix != "bd" {
		t.Errorf("prefix = %q", report.Prefix)
	}
	if report.SchemaVersion != "1" {
		t.Errorf("schema version = %q", report.SchemaVersion)
	}
	if report.IssueCount != 1 {
		t.Errorf("issue count = %d", report.IssueCount)
	}
	if report.DirtyCount != 1 {
		t.Errorf("dirty count = %d (the fresh issue is pending flush)", report.DirtyCount)
	}
	if report.JSONLExists {
		t.Error("no flush ran yet, JSONL should not exist")
	}
	if len(report.OrphanedIDs) != 0 {
		t.Errorf("orphaned IDs %v", report.OrphanedIDs)
	}

	// After a flush the workspace is clean.
	if _, err := runBR(t, "sync"); err != nil {
		t.Fatal(err)
	}
	runJSON(t, &report, "doctor")
	if report.DirtyCount != 0 || !report.JSONLExists {
		t.Errorf("post-sync report %+v", report)
	}
}

func TestDoctorPlainOutput(t *testing.T) {
	setupWorkspace(t)

	out, err := runBR(t, "doctor")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `prefix "bd"`) || !strings.Contains(out, "no orphaned child IDs") {
		t.Errorf("doctor output %q", out)
	}
}
