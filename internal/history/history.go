// Package history implements the pre-export backup subsystem: before the
// sync engine renames a fresh JSONL over the old one, the current file is
// copied into .br_history with a timestamped name, deduplicated by content
// and pruned by age and count.
package history

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// timestampLayout names backups <stem>.<YYYYMMDD_HHMMSS><ext>.
const timestampLayout = "20060102_150405"

// Entry describes one rotated backup.
type Entry struct {
	Path      string
	Stem      string
	Timestamp time.Time
}

// Options control retention.
type Options struct {
	MaxCount   int // Keep at most this many backups per stem
	MaxAgeDays int // Delete backups older than this many days
}

// Snapshot copies target into dir before it gets overwritten. Returns false
// without error when there is nothing to back up or when the most recent
// backup already has byte-identical content.
func Snapshot(dir, target string, opts Options, now time.Time) (bool, error) {
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", target, err)
	}

	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	entries, err := List(dir, stem)
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		latest := entries[len(entries)-1]
		prev, err := os.ReadFile(latest.Path)
		if err == nil && bytes.Equal(prev, data) {
			return false, nil
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("failed to create history dir: %w", err)
	}

	// Second-resolution timestamps collide under rapid flushes; bump until
	// the name is free so every backup keeps a distinct stamp.
	name := fmt.Sprintf("%s.%s%s", stem, now.Format(timestampLayout), ext)
	path := filepath.Join(dir, name)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		now = now.Add(time.Second)
		name = fmt.Sprintf("%s.%s%s", stem, now.Format(timestampLayout), ext)
		path = filepath.Join(dir, name)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write backup: %w", err)
	}

	if err := rotate(dir, stem, opts, now); err != nil {
		return true, err
	}
	return true, nil
}

// rotate applies the two retention rules: age first, then count.
func rotate(dir, stem string, opts Options, now time.Time) error {
	entries, err := List(dir, stem)
	if err != nil {
		return err
	}

	if opts.MaxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -opts.MaxAgeDays)
		var kept []Entry
		for _, e := range entries {
			if e.Timestamp.Before(cutoff) {
				_ = os.Remove(e.Path)
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}

	if opts.MaxCount > 0 && len(entries) > opts.MaxCount {
		for _, e := range entries[:len(entries)-opts.MaxCount] {
			_ = os.Remove(e.Path)
		}
	}
	return nil
}

// List returns the backups for a stem, oldest first. Filenames whose
// timestamp segment does not parse are ignored and never deleted.
func List(dir, stem string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history dir: %w", err)
	}

	var entries []Entry
	prefix := stem + "."
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		name := item.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		stamp := strings.TrimSuffix(rest, filepath.Ext(rest))
		ts, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:      filepath.Join(dir, name),
			Stem:      stem,
			Timestamp: ts,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
