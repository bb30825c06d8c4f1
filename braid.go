// Package braid provides a minimal public API for embedding the br issue
// tracker in other Go programs.
//
// Most integrations should shell out to the br binary and parse its --json
// output. This package exports only the essentials for programs that want
// to drive the storage engine directly.
package braid

import (
	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/storage"
	"github.com/braid-dev/braid/internal/storage/sqlite"
	"github.com/braid-dev/braid/internal/types"
)

// Storage is the capability set of the issue engine.
type Storage = storage.Storage

// Issue is the primary record.
type Issue = types.Issue

// Workspace locates a project's .beads directory and its files.
type Workspace = configfile.Workspace

// Open opens (or creates) the database at path. Pass ":memory:" for an
// in-memory store.
func Open(path string) (Storage, error) {
	return sqlite.Open(path)
}

// FindWorkspace walks up from dir looking for a .beads directory.
func FindWorkspace(dir string) (*Workspace, error) {
	return configfile.Find(dir)
}
