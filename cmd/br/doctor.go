package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/importer"
	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

// appVersion is stamped by the release build.
var appVersion = "v0.1.0"

// doctorReport is the machine-readable diagnostic.
type doctorReport struct {
	Workspace     string `json:"workspace"`
	Prefix        string `json:"prefix"`
	SchemaVersion string `json:"schema_version"`
	AppVersion    string `json:"app_version"`
	VersionDrift  string `json:"version_drift,omitempty"`
	JSONLExists   bool     `json:"jsonl_exists"`
	Freshness     string   `json:"freshness"`
	DirtyCount    int      `json:"dirty_count"`
	BlockedCount  int      `json:"blocked_count"`
	IssueCount    int      `json:"issue_count"`
	OrphanedIDs   []string `json:"orphaned_ids,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose workspace health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}

		report := doctorReport{
			Workspace:  ws.BeadsDir,
			Prefix:     wsCfg.Prefix,
			AppVersion: appVersion,
		}

		report.SchemaVersion, _ = store.GetConfig(ctx, "schema_version")

		// Compare the binary against the version last recorded in the
		// workspace; a newer recorded version means another machine already
		// upgraded.
		if wsCfg.AppVersion != "" && semver.IsValid(wsCfg.AppVersion) && semver.IsValid(appVersion) {
			switch semver.Compare(appVersion, wsCfg.AppVersion) {
			case -1:
				report.VersionDrift = fmt.Sprintf("workspace was last written by newer %s", wsCfg.AppVersion)
			case 1:
				report.VersionDrift = fmt.Sprintf("workspace recorded older %s", wsCfg.AppVersion)
			}
		}

		if _, err := os.Stat(ws.JSONLPath(wsCfg.Prefix)); err == nil {
			report.JSONLExists = true
		}

		switch dbFresh {
		case importer.FreshInSync:
			report.Freshness = "in-sync"
		case importer.FreshJSONLNewer:
			report.Freshness = "jsonl-newer"
		case importer.FreshDBDirty:
			report.Freshness = "flush-pending"
		case importer.FreshConflict:
			report.Freshness = "stale-database"
		}

		dirty, err := store.DirtyIssueIDs(ctx)
		if err != nil {
			return err
		}
		report.DirtyCount = len(dirty)

		ids, err := store.AllIssueIDs(ctx, true)
		if err != nil {
			return err
		}
		report.IssueCount = len(ids)

		// Children whose parent row is gone.
		known := make(map[string]bool, len(ids))
		for _, id := range ids {
			known[id] = true
		}
		for _, id := range ids {
			if parent := idgen.ParentID(id); parent != "" && !known[parent] {
				report.OrphanedIDs = append(report.OrphanedIDs, id)
			}
		}

		blocked, err := store.BlockedIssues(ctx, types.IssueFilter{Limit: -1})
		if err != nil {
			return err
		}
		report.BlockedCount = len(blocked)

		if jsonMode() {
			return outputJSON(report)
		}

		fmt.Printf("Workspace: %s (prefix %q)\n", report.Workspace, report.Prefix)
		fmt.Printf("Schema: v%s  Binary: %s\n", report.SchemaVersion, report.AppVersion)
		if report.VersionDrift != "" {
			fmt.Printf("%s %s\n", ui.RenderWarn("!"), report.VersionDrift)
		}
		fmt.Printf("Issues: %d  Dirty: %d  Freshness: %s\n", report.IssueCount, report.DirtyCount, report.Freshness)
		if len(report.OrphanedIDs) > 0 {
			fmt.Printf("%s orphaned child IDs: %v\n", ui.RenderWarn("!"), report.OrphanedIDs)
		} else {
			fmt.Printf("%s no orphaned child IDs\n", ui.RenderGood("ok"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
