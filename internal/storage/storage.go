// Package storage defines the interface of the issue storage engine.
package storage

import (
	"context"

	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/types"
)

// DeleteOptions control tombstone deletion.
type DeleteOptions struct {
	Reason  string
	Cascade bool // Transitively tombstone dependents in the same transaction
	Force   bool // Tombstone even when dependents exist, orphaning them
	Hard    bool // Remove rows entirely instead of tombstoning
	DryRun  bool // Compute the transitive closure without writing
}

// DeleteResult reports what a delete did (or would do, for dry runs).
type DeleteResult struct {
	Deleted  []string `json:"deleted"`
	Orphaned []string `json:"orphaned,omitempty"`
}

// DetailOptions select which relations GetIssueDetails loads.
type DetailOptions struct {
	IncludeComments bool
	IncludeEvents   bool
	EventLimit      int
}

// FlushStats summarizes a JSONL export.
type FlushStats struct {
	Exported int  `json:"exported"`
	Full     bool `json:"full"`
	BackedUp bool `json:"backed_up"`
}

// ImportStats summarizes a JSONL import.
type ImportStats struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Tombstoned  int `json:"tombstoned"`
	Resurrected int `json:"resurrected"`
	Malformed   int `json:"malformed,omitempty"` // Lenient mode only
}

// Storage is the capability set of the issue engine. Only the SQLite backend
// implements it, but the CRUD, dependency, and query surfaces are kept behind
// one interface so callers never depend on the concrete store.
type Storage interface {
	// Issue CRUD
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	GetIssueDetails(ctx context.Context, id string, opts DetailOptions) (*types.IssueDetails, error)
	UpdateIssue(ctx context.Context, id string, patch *types.IssuePatch, actor string) (*types.Issue, error)
	CloseIssue(ctx context.Context, id, reason, actor string) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id, actor string) (*types.Issue, error)
	DeleteIssues(ctx context.Context, ids []string, opts DeleteOptions, actor string) (*DeleteResult, error)

	// Dependency engine
	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) error
	GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error)
	GetDependencyTree(ctx context.Context, issueID string, maxDepth int) ([]*types.TreeNode, error)
	FindCycles(ctx context.Context) ([][]string, error)
	GetParentID(ctx context.Context, issueID string) (string, error)

	// Labels and comments
	AddLabel(ctx context.Context, issueID, label, actor string) (bool, error)
	RemoveLabel(ctx context.Context, issueID, label, actor string) (bool, error)
	GetLabels(ctx context.Context, issueID string) ([]string, error)
	AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error)
	GetComments(ctx context.Context, issueID string) ([]*types.Comment, error)

	// Events journal
	GetEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error)

	// Query layer
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error)
	ReadyIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	BlockedIssues(ctx context.Context, filter types.IssueFilter) ([]*types.BlockedIssue, error)
	CountIssues(ctx context.Context, groupBy types.GroupBy, filter types.IssueFilter) (map[string]int, error)
	GetStatistics(ctx context.Context) (*types.Statistics, error)
	GetStaleIssues(ctx context.Context, days, limit int) ([]*types.Issue, error)

	// ID layer
	ResolveID(ctx context.Context, input string) (idgen.Resolution, error)

	// Sync support
	DirtyIssueIDs(ctx context.Context) ([]string, error)
	ClearDirtyIssues(ctx context.Context, ids []string) error
	LoadIssueForExport(ctx context.Context, id string) (*types.Issue, error)
	AllIssueIDs(ctx context.Context, includeTombstones bool) ([]string, error)
	ImportIssues(ctx context.Context, issues []*types.Issue, actor string) (*ImportStats, error)

	// Config and metadata key/value tables
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error

	Close() error
}
