// Package export renders the database to the durable JSONL file.
//
// One compact JSON object per line, one line per non-ephemeral issue, keys
// in a schema-defined order so textual diffs stay meaningful. The new file
// is assembled at a sibling temp path and atomically renamed over the
// target; the previous file is snapshotted into .br_history first.
package export

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/history"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/types"
)

// maxLineBytes bounds one JSONL line during scanning.
const maxLineBytes = 4 * 1024 * 1024

// Record is the JSONL line shape. Field order here is the wire order.
type Record struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	Design             string           `json:"design,omitempty"`
	AcceptanceCriteria string           `json:"acceptance_criteria,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Status             types.Status     `json:"status"`
	Priority           int              `json:"priority"`
	Type               types.IssueType  `json:"type"`
	Assignee           string           `json:"assignee,omitempty"`
	Owner              string           `json:"owner,omitempty"`
	EstimatedMinutes   *int             `json:"estimated_minutes,omitempty"`
	Labels             []string         `json:"labels,omitempty"`
	Dependencies       []*DependencyRef `json:"dependencies,omitempty"`
	Comments           []*CommentRef    `json:"comments,omitempty"`
	CreatedAt          string           `json:"created_at"`
	CreatedBy          string           `json:"created_by,omitempty"`
	UpdatedAt          string           `json:"updated_at"`
	ClosedAt           string           `json:"closed_at,omitempty"`
	CloseReason        string           `json:"close_reason,omitempty"`
	DueAt              string           `json:"due_at,omitempty"`
	DeferUntil         string           `json:"defer_until,omitempty"`
	ExternalRef        string           `json:"external_ref,omitempty"`
	SourceSystem       string           `json:"source_system,omitempty"`
	DeletedAt          string           `json:"deleted_at,omitempty"`
	DeletedBy          string           `json:"deleted_by,omitempty"`
	DeleteReason       string           `json:"delete_reason,omitempty"`
	OriginalType       string           `json:"original_type,omitempty"`
	CompactionLevel    int              `json:"compaction_level,omitempty"`
	CompactedAt        string           `json:"compacted_at,omitempty"`
	CompactedAtCommit  string           `json:"compacted_at_commit,omitempty"`
	OriginalSize       int              `json:"original_size,omitempty"`
	Pinned             bool             `json:"pinned,omitempty"`
	IsTemplate         bool             `json:"is_template,omitempty"`
	ContentHash        string           `json:"content_hash,omitempty"`
}

// DependencyRef is the compact edge shape inside a JSONL line.
type DependencyRef struct {
	ID   string               `json:"id"`
	Type types.DependencyType `json:"type"`
}

// CommentRef is the comment shape inside a JSONL line. Database comment IDs
// are machine-local and omitted.
type CommentRef struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtTime(*t)
}

// FromIssue converts a fully loaded issue into its wire record. Labels are
// sorted; dependencies keep their stored order.
func FromIssue(issue *types.Issue) *Record {
	rec := &Record{
		ID:                 issue.ID,
		Title:              issue.Title,
		Description:        issue.Description,
		Design:             issue.Design,
		AcceptanceCriteria: issue.AcceptanceCriteria,
		Notes:              issue.Notes,
		Status:             issue.Status,
		Priority:           issue.Priority,
		Type:               issue.IssueType,
		Assignee:           issue.Assignee,
		Owner:              issue.Owner,
		EstimatedMinutes:   issue.EstimatedMinutes,
		CreatedAt:          fmtTime(issue.CreatedAt),
		CreatedBy:          issue.CreatedBy,
		UpdatedAt:          fmtTime(issue.UpdatedAt),
		ClosedAt:           fmtTimePtr(issue.ClosedAt),
		CloseReason:        issue.CloseReason,
		DueAt:              fmtTimePtr(issue.DueAt),
		DeferUntil:         fmtTimePtr(issue.DeferUntil),
		SourceSystem:       issue.SourceSystem,
		DeletedAt:          fmtTimePtr(issue.DeletedAt),
		DeletedBy:          issue.DeletedBy,
		DeleteReason:       issue.DeleteReason,
		OriginalType:       issue.OriginalType,
		CompactionLevel:    issue.CompactionLevel,
		CompactedAt:        fmtTimePtr(issue.CompactedAt),
		OriginalSize:       issue.OriginalSize,
		Pinned:             issue.Pinned,
		IsTemplate:         issue.IsTemplate,
		ContentHash:        issue.ContentHash,
	}
	if issue.ExternalRef != nil {
		rec.ExternalRef = *issue.ExternalRef
	}
	if issue.CompactedAtCommit != nil {
		rec.CompactedAtCommit = *issue.CompactedAtCommit
	}

	labels := append([]string(nil), issue.Labels...)
	sort.Strings(labels)
	rec.Labels = labels

	for _, dep := range issue.Dependencies {
		rec.Dependencies = append(rec.Dependencies, &DependencyRef{ID: dep.DependsOnID, Type: dep.Type})
	}
	for _, c := range issue.Comments {
		rec.Comments = append(rec.Comments, &CommentRef{
			Author:    c.Author,
			Text:      c.Text,
			CreatedAt: fmtTime(c.CreatedAt),
		})
	}
	return rec
}

// Options control a flush.
type Options struct {
	Full        bool // Re-render every issue instead of just the dirty set
	LockTimeout time.Duration
}

// Flush writes the JSONL file. Incremental flushes re-render only the dirty
// issues, carrying unchanged lines over from the existing file byte-for-byte;
// a full flush rebuilds every line from the database. On success the dirty
// marks for exported IDs are cleared.
func Flush(ctx context.Context, store storage.Storage, ws *configfile.Workspace, cfg *configfile.Config, opts Options) (*storage.FlushStats, error) {
	jsonlPath := ws.JSONLPath(cfg.Prefix)

	unlock, err := acquireLock(ws.LockPath(), opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Without an existing file there is nothing to carry over; an
	// incremental flush must render everything.
	if !opts.Full {
		if _, statErr := os.Stat(jsonlPath); os.IsNotExist(statErr) {
			opts.Full = true
		}
	}

	var dirtyIDs []string
	if opts.Full {
		if dirtyIDs, err = store.AllIssueIDs(ctx, true); err != nil {
			return nil, err
		}
	} else {
		if dirtyIDs, err = store.DirtyIssueIDs(ctx); err != nil {
			return nil, err
		}
		if len(dirtyIDs) == 0 {
			return &storage.FlushStats{}, nil
		}
	}

	// Start from the existing file so clean lines survive byte-identical.
	lines := make(map[string]string)
	if !opts.Full {
		if lines, err = readExistingLines(jsonlPath); err != nil {
			return nil, err
		}
	}

	exported := 0
	for _, id := range dirtyIDs {
		issue, err := store.LoadIssueForExport(ctx, id)
		if err != nil {
			return nil, err
		}
		if issue == nil || issue.Ephemeral {
			delete(lines, id)
			continue
		}
		data, err := json.Marshal(FromIssue(issue))
		if err != nil {
			return nil, errs.Wrap(errs.CodeInternal, err, "failed to encode issue %s", id)
		}
		lines[id] = string(data)
		exported++
	}

	ids := make([]string, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	backedUp := false
	if cfg.HistoryOn() {
		ok, err := history.Snapshot(ws.HistoryDir(), jsonlPath, history.Options{
			MaxCount:   cfg.MaxCount(),
			MaxAgeDays: cfg.MaxAgeDays(),
		}, time.Now())
		if err != nil {
			// Backups are best-effort; a failed snapshot never blocks a flush.
			fmt.Fprintf(os.Stderr, "Warning: backup failed: %v\n", err)
		}
		backedUp = ok
	}

	if err := writeAtomic(jsonlPath, ids, lines); err != nil {
		return nil, err
	}

	if err := store.ClearDirtyIssues(ctx, dirtyIDs); err != nil {
		return nil, err
	}

	if hash, err := FileHash(jsonlPath); err == nil {
		_ = store.SetMetadata(ctx, "jsonl_content_hash", hash)
	}
	_ = store.SetMetadata(ctx, "last_export_time", time.Now().UTC().Format(time.RFC3339Nano))

	return &storage.FlushStats{Exported: exported, Full: opts.Full, BackedUp: backedUp}, nil
}

// readExistingLines indexes the current JSONL file by issue ID, keeping raw
// line bytes.
func readExistingLines(path string) (map[string]string, error) {
	lines := make(map[string]string)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return lines, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeIOError, err, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil || probe.ID == "" {
			// Unparseable lines are dropped at the next flush; import is the
			// path that surfaces them as errors.
			continue
		}
		lines[probe.ID] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeIOError, err, "failed to read %s", path)
	}
	return lines, nil
}

func writeAtomic(path string, ids []string, lines map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	w := bufio.NewWriter(tmp)
	for _, id := range ids {
		if _, err := w.WriteString(lines[id]); err != nil {
			return errs.Wrap(errs.CodeIOError, err, "failed to write JSONL")
		}
		if err := w.WriteByte('\n'); err != nil {
			return errs.Wrap(errs.CodeIOError, err, "failed to write JSONL")
		}
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to flush JSONL")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to replace JSONL file")
	}
	_ = os.Chmod(path, 0o600)
	return nil
}

// FileHash returns the hex SHA-256 of a file's content.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// acquireLock takes the cross-process sync lock with a timeout.
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
