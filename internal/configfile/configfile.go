// Package configfile manages the on-disk workspace layout: the .beads
// directory, its config.json, the cache-dir override, and the last-touched
// marker.
package configfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// BeadsDirName is the workspace subdirectory holding all tracker state.
	BeadsDirName = ".beads"

	// CacheDirEnv relocates transient files (database, WAL, last-touched)
	// away from the .beads directory, e.g. off a slow network mount.
	CacheDirEnv = "BEADS_CACHE_DIR"

	// HistoryDirName holds rotated JSONL backups inside .beads.
	HistoryDirName = ".br_history"

	configFileName   = "config.json"
	lastTouchedFile  = "last-touched"
	lockFileName     = "br.lock"
	debugLogFileName = "br.log"
)

// Config is the workspace configuration persisted in .beads/config.json.
type Config struct {
	Prefix            string `json:"prefix"`
	HistoryEnabled    *bool  `json:"history_enabled,omitempty"`
	HistoryMaxCount   int    `json:"history_max_count,omitempty"`
	HistoryMaxAgeDays int    `json:"history_max_age_days,omitempty"`
	AppVersion        string `json:"app_version,omitempty"`
}

// Default retention settings for the backup subsystem.
const (
	DefaultHistoryMaxCount   = 100
	DefaultHistoryMaxAgeDays = 30
)

// HistoryOn reports whether pre-export backups are enabled (default true).
func (c *Config) HistoryOn() bool {
	return c.HistoryEnabled == nil || *c.HistoryEnabled
}

// MaxCount returns the backup count retention limit.
func (c *Config) MaxCount() int {
	if c.HistoryMaxCount > 0 {
		return c.HistoryMaxCount
	}
	return DefaultHistoryMaxCount
}

// MaxAgeDays returns the backup age retention limit.
func (c *Config) MaxAgeDays() int {
	if c.HistoryMaxAgeDays > 0 {
		return c.HistoryMaxAgeDays
	}
	return DefaultHistoryMaxAgeDays
}

// Workspace locates a project's .beads directory and derives the paths the
// engine needs.
type Workspace struct {
	Root     string // Project root containing .beads
	BeadsDir string // <root>/.beads
}

// ErrNoWorkspace is returned when no .beads directory exists in the current
// directory or any parent.
var ErrNoWorkspace = errors.New("no .beads directory found (run 'br init' first)")

// Find walks up from dir looking for a .beads directory.
func Find(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for d := abs; ; d = filepath.Dir(d) {
		beads := filepath.Join(d, BeadsDirName)
		if fi, err := os.Stat(beads); err == nil && fi.IsDir() {
			return &Workspace{Root: d, BeadsDir: beads}, nil
		}
		if d == filepath.Dir(d) {
			return nil, ErrNoWorkspace
		}
	}
}

// Create initializes a fresh workspace at root with the given prefix.
// Returns an error if the workspace already holds a config.
func Create(root, prefix string) (*Workspace, error) {
	ws := &Workspace{Root: root, BeadsDir: filepath.Join(root, BeadsDirName)}
	if _, err := os.Stat(ws.ConfigPath()); err == nil {
		return nil, fmt.Errorf("workspace already initialized at %s", ws.BeadsDir)
	}
	if err := os.MkdirAll(ws.BeadsDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", ws.BeadsDir, err)
	}
	if err := ws.SaveConfig(&Config{Prefix: prefix}); err != nil {
		return nil, err
	}
	return ws, nil
}

// ConfigPath returns the path to config.json.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.BeadsDir, configFileName)
}

// LoadConfig reads and parses config.json.
func (w *Workspace) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(w.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", w.ConfigPath(), err)
	}
	return &cfg, nil
}

// SaveConfig writes config.json atomically.
func (w *Workspace) SaveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := w.ConfigPath() + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write workspace config: %w", err)
	}
	return os.Rename(tmp, w.ConfigPath())
}

// CacheDir resolves the directory for transient files: the BEADS_CACHE_DIR
// environment variable when set, otherwise the .beads directory itself.
func (w *Workspace) CacheDir() string {
	if dir := strings.TrimSpace(os.Getenv(CacheDirEnv)); dir != "" {
		return dir
	}
	return w.BeadsDir
}

// DBPath returns the SQLite database path for the given prefix.
func (w *Workspace) DBPath(prefix string) string {
	return filepath.Join(w.CacheDir(), prefix+".db")
}

// JSONLPath returns the durable text export path. The JSONL always lives in
// .beads (never the cache dir): it is the source of truth across machines.
func (w *Workspace) JSONLPath(prefix string) string {
	return filepath.Join(w.BeadsDir, prefix+".jsonl")
}

// HistoryDir returns the rotated-backup directory.
func (w *Workspace) HistoryDir() string {
	return filepath.Join(w.BeadsDir, HistoryDirName)
}

// LockPath returns the cross-process sync lock file path.
func (w *Workspace) LockPath() string {
	return filepath.Join(w.CacheDir(), lockFileName)
}

// DebugLogPath returns the rotating debug log path.
func (w *Workspace) DebugLogPath() string {
	return filepath.Join(w.CacheDir(), debugLogFileName)
}

func (w *Workspace) lastTouchedPath() string {
	return filepath.Join(w.CacheDir(), lastTouchedFile)
}

// SetLastTouched records the most recently mutated issue ID. Best-effort:
// errors are ignored. The file is written with owner-only permissions.
func (w *Workspace) SetLastTouched(id string) {
	path := w.lastTouchedPath()
	if parent := filepath.Dir(path); parent != "" {
		_ = os.MkdirAll(parent, 0o750)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(f, id)
	_ = f.Close()
}

// LastTouched reads the last mutated issue ID, or "" if unavailable.
func (w *Workspace) LastTouched() string {
	data, err := os.ReadFile(w.lastTouchedPath())
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line)
}

// ClearLastTouched removes the marker. Best-effort.
func (w *Workspace) ClearLastTouched() {
	_ = os.Remove(w.lastTouchedPath())
}
