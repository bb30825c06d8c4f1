// Package importer replays a JSONL file into the database.
//
// Each line parses into an issue record; the store then inserts, updates,
// skips, resurrects, or tombstones it based on the content-hash comparison.
// By default one malformed line aborts the import with no partial effect;
// lenient mode skips malformed lines and reports a count.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/export"
	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

const maxLineBytes = 4 * 1024 * 1024

// Options control an import.
type Options struct {
	Lenient     bool // Skip malformed lines instead of aborting
	LockTimeout time.Duration
}

// Actor is the identity recorded on events produced by imports.
const Actor = "import"

// Import reads the workspace JSONL and replays it into the store. Running
// it twice on the same file is a no-op after the first run.
func Import(ctx context.Context, store storage.Storage, ws *configfile.Workspace, cfg *configfile.Config, opts Options) (*storage.ImportStats, error) {
	jsonlPath := ws.JSONLPath(cfg.Prefix)

	unlock, err := acquireLock(ws.LockPath(), opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	issues, malformed, err := ParseFile(jsonlPath, opts.Lenient)
	if err != nil {
		return nil, err
	}
	sortByDepth(issues)

	stats, err := store.ImportIssues(ctx, issues, Actor)
	if err != nil {
		return nil, err
	}
	stats.Malformed = malformed

	// The JSONL and DB now agree for every imported row.
	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	if err := store.ClearDirtyIssues(ctx, ids); err != nil {
		return nil, err
	}

	if hash, err := export.FileHash(jsonlPath); err == nil {
		_ = store.SetMetadata(ctx, "jsonl_content_hash", hash)
	}
	_ = store.SetMetadata(ctx, "last_import_time", time.Now().UTC().Format(time.RFC3339Nano))

	return stats, nil
}

// ParseFile reads a JSONL file into issue records. Duplicate IDs within one
// file are an error naming both line numbers; lenient mode skips the
// duplicate line instead.
func ParseFile(path string, lenient bool) ([]*types.Issue, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errs.Wrap(errs.CodeIOError, err, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	var issues []*types.Issue
	seen := make(map[string]int)
	malformed := 0
	lineNo := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		issue, err := ParseLine(line)
		if err != nil {
			if lenient {
				malformed++
				continue
			}
			return nil, 0, errs.Wrap(errs.CodeParseError, err, "malformed JSONL line").WithLine(lineNo)
		}

		if prev, dup := seen[issue.ID]; dup {
			if lenient {
				malformed++
				continue
			}
			return nil, 0, errs.New(errs.CodeParseError,
				"duplicate issue ID %s (lines %d and %d)", issue.ID, prev, lineNo).WithLine(lineNo)
		}
		seen[issue.ID] = lineNo
		issues = append(issues, issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errs.Wrap(errs.CodeIOError, err, "failed to read %s", path)
	}

	return issues, malformed, nil
}

// ParseLine decodes one JSONL line into an issue.
func ParseLine(line string) (*types.Issue, error) {
	var rec export.Record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("missing id field")
	}
	if !idgen.IsValidID(idgen.Normalize(rec.ID)) {
		return nil, fmt.Errorf("malformed issue ID %q", rec.ID)
	}
	if rec.Title == "" {
		return nil, fmt.Errorf("missing title field")
	}
	return toIssue(&rec)
}

func toIssue(rec *export.Record) (*types.Issue, error) {
	issue := &types.Issue{
		ID:                 idgen.Normalize(rec.ID),
		Title:              rec.Title,
		Description:        rec.Description,
		Design:             rec.Design,
		AcceptanceCriteria: rec.AcceptanceCriteria,
		Notes:              rec.Notes,
		Status:             rec.Status,
		Priority:           rec.Priority,
		IssueType:          rec.Type,
		Assignee:           rec.Assignee,
		Owner:              rec.Owner,
		EstimatedMinutes:   rec.EstimatedMinutes,
		CreatedBy:          rec.CreatedBy,
		CloseReason:        rec.CloseReason,
		SourceSystem:       rec.SourceSystem,
		DeletedBy:          rec.DeletedBy,
		DeleteReason:       rec.DeleteReason,
		OriginalType:       rec.OriginalType,
		CompactionLevel:    rec.CompactionLevel,
		OriginalSize:       rec.OriginalSize,
		Pinned:             rec.Pinned,
		IsTemplate:         rec.IsTemplate,
		ContentHash:        rec.ContentHash,
		Labels:             rec.Labels,
	}
	if rec.ExternalRef != "" {
		issue.ExternalRef = &rec.ExternalRef
	}
	if rec.CompactedAtCommit != "" {
		issue.CompactedAtCommit = &rec.CompactedAtCommit
	}

	var err error
	if issue.CreatedAt, err = parseTime(rec.CreatedAt, "created_at"); err != nil {
		return nil, err
	}
	if issue.UpdatedAt, err = parseTime(rec.UpdatedAt, "updated_at"); err != nil {
		return nil, err
	}
	if issue.ClosedAt, err = parseTimePtr(rec.ClosedAt, "closed_at"); err != nil {
		return nil, err
	}
	if issue.DueAt, err = parseTimePtr(rec.DueAt, "due_at"); err != nil {
		return nil, err
	}
	if issue.DeferUntil, err = parseTimePtr(rec.DeferUntil, "defer_until"); err != nil {
		return nil, err
	}
	if issue.DeletedAt, err = parseTimePtr(rec.DeletedAt, "deleted_at"); err != nil {
		return nil, err
	}
	if issue.CompactedAt, err = parseTimePtr(rec.CompactedAt, "compacted_at"); err != nil {
		return nil, err
	}

	for _, ref := range rec.Dependencies {
		depType := ref.Type
		if depType == "" {
			depType = types.DepBlocks
		}
		issue.Dependencies = append(issue.Dependencies, &types.Dependency{
			IssueID:     issue.ID,
			DependsOnID: idgen.Normalize(ref.ID),
			Type:        depType,
		})
	}
	for _, ref := range rec.Comments {
		createdAt, err := parseTime(ref.CreatedAt, "comment created_at")
		if err != nil {
			return nil, err
		}
		issue.Comments = append(issue.Comments, &types.Comment{
			IssueID:   issue.ID,
			Author:    ref.Author,
			Text:      ref.Text,
			CreatedAt: createdAt,
		})
	}

	return issue, nil
}

// sortByDepth orders issues shallow-to-deep so parents are processed before
// their hierarchical children, with ID order as the tie-break.
func sortByDepth(issues []*types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		di, dj := idgen.Depth(issues[i].ID), idgen.Depth(issues[j].ID)
		if di != dj {
			return di < dj
		}
		return issues[i].ID < issues[j].ID
	})
}

func parseTime(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing %s", field)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Freshness classifies the workspace sync state at open time.
type Freshness int

// Freshness states.
const (
	FreshInSync     Freshness = iota
	FreshJSONLNewer           // JSONL newer, no local dirt: safe to auto-import
	FreshDBDirty              // local dirt only: flush pending
	FreshConflict             // JSONL newer AND local dirt: stale database
)

// CheckFreshness compares the JSONL mtime against the DB mtime and the dirty
// set. FreshConflict means writes require --allow-stale until an import
// reconciles the two.
func CheckFreshness(ctx context.Context, store storage.Storage, ws *configfile.Workspace, cfg *configfile.Config, dbPath string) (Freshness, error) {
	jsonlInfo, err := os.Stat(ws.JSONLPath(cfg.Prefix))
	if os.IsNotExist(err) {
		return FreshInSync, nil
	}
	if err != nil {
		return FreshInSync, errs.Wrap(errs.CodeIOError, err, "failed to stat JSONL")
	}

	dirty, err := store.DirtyIssueIDs(ctx)
	if err != nil {
		return FreshInSync, err
	}

	dbInfo, err := os.Stat(dbPath)
	if err != nil {
		// No database file yet (in-memory or first open): JSONL is the truth.
		return FreshJSONLNewer, nil
	}

	jsonlNewer := jsonlInfo.ModTime().After(dbInfo.ModTime())
	switch {
	case jsonlNewer && len(dirty) == 0:
		return FreshJSONLNewer, nil
	case jsonlNewer && len(dirty) > 0:
		return FreshConflict, nil
	case len(dirty) > 0:
		return FreshDBDirty, nil
	default:
		return FreshInSync, nil
	}
}

func acquireLock(path string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lock := flock.New(path)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !ok {
		return nil, errs.New(errs.CodeLockContention, "could not acquire sync lock %s", path).
			WithHint("another br process is syncing; retry")
	}
	return func() { _ = lock.Unlock() }, nil
}
