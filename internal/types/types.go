// Package types defines the core data structures for the br issue tracker.
package types

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"
	"strings"
	"time"
)

// MaxTitleLength is the longest title the store accepts.
const MaxTitleLength = 500

// Issue represents a trackable work item, the primary record of the store.
type Issue struct {
	// ===== Core Identification =====
	ID          string `json:"id"`
	ContentHash string `json:"content_hash,omitempty"`

	// ===== Issue Content =====
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Design             string `json:"design,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	Notes              string `json:"notes,omitempty"`

	// ===== Status & Workflow =====
	Status    Status    `json:"status,omitempty"`
	Priority  int       `json:"priority"` // No omitempty: 0 is valid (critical)
	IssueType IssueType `json:"issue_type,omitempty"`

	// ===== Assignment =====
	Assignee         string `json:"assignee,omitempty"`
	Owner            string `json:"owner,omitempty"`
	EstimatedMinutes *int   `json:"estimated_minutes,omitempty"`

	// ===== Timestamps =====
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`

	// ===== Time-Based Scheduling =====
	DueAt      *time.Time `json:"due_at,omitempty"`      // When this issue should be completed
	DeferUntil *time.Time `json:"defer_until,omitempty"` // Hide from br ready until this time

	// ===== External Integration =====
	ExternalRef  *string `json:"external_ref,omitempty"` // e.g., "gh-9", "jira-ABC"
	SourceSystem string  `json:"source_system,omitempty"`
	Sender       string  `json:"sender,omitempty"`

	// ===== Tombstone Fields (soft-delete support) =====
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`
	OriginalType string     `json:"original_type,omitempty"` // Issue type before deletion

	// ===== Compaction Metadata =====
	CompactionLevel   int        `json:"compaction_level,omitempty"`
	CompactedAt       *time.Time `json:"compacted_at,omitempty"`
	CompactedAtCommit *string    `json:"compacted_at_commit,omitempty"`
	OriginalSize      int        `json:"original_size,omitempty"`

	// ===== Flags =====
	Ephemeral  bool `json:"ephemeral,omitempty"`   // Never exported to JSONL
	Pinned     bool `json:"pinned,omitempty"`      // Persistent context marker, not a work item
	IsTemplate bool `json:"is_template,omitempty"` // Excluded from list/ready

	// ===== Relational Data (populated for export/import) =====
	Labels       []string      `json:"labels,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`
	Comments     []*Comment    `json:"comments,omitempty"`
}

// ComputeContentHash returns a deterministic SHA-256 digest over the issue's
// stable fields: title, description, type, priority, status, assignee,
// labels (sorted), dependencies (sorted by target then type). Timestamps and
// comments are excluded so the hash survives a JSONL round trip unchanged.
func (i *Issue) ComputeContentHash() string {
	h := sha256.New()
	w := hashFieldWriter{h}

	w.str(i.Title)
	w.str(i.Description)
	w.str(string(i.IssueType))
	w.int(i.Priority)
	w.str(string(i.Status))
	w.str(i.Assignee)

	labels := append([]string(nil), i.Labels...)
	sort.Strings(labels)
	for _, l := range labels {
		w.str(l)
	}

	deps := make([]string, 0, len(i.Dependencies))
	for _, d := range i.Dependencies {
		deps = append(deps, d.DependsOnID+"|"+string(d.Type))
	}
	sort.Strings(deps)
	for _, d := range deps {
		w.str(d)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// hashFieldWriter writes fields to a hash, each followed by a NUL separator
// so that adjacent fields cannot collide.
type hashFieldWriter struct {
	h hash.Hash
}

func (w hashFieldWriter) str(s string) {
	w.h.Write([]byte(s))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) int(n int) {
	w.h.Write([]byte(fmt.Sprintf("%d", n)))
	w.h.Write([]byte{0})
}

// IsTombstone returns true if the issue has been soft-deleted.
func (i *Issue) IsTombstone() bool {
	return i.Status == StatusTombstone
}

// Validate checks the issue's field values against the store invariants.
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(i.Title))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	if i.EstimatedMinutes != nil && *i.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated_minutes cannot be negative")
	}
	// closed_at is set if and only if status is closed; tombstones may retain
	// it from before deletion.
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("closed issues must have closed_at timestamp")
	}
	if i.Status != StatusClosed && i.Status != StatusTombstone && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issues cannot have closed_at timestamp")
	}
	// Tombstone invariant: all four tombstone fields set on tombstones, none
	// on anything else.
	if i.Status == StatusTombstone {
		if i.DeletedAt == nil || i.DeletedBy == "" || i.DeleteReason == "" || i.OriginalType == "" {
			return fmt.Errorf("tombstone issues must have deleted_at, deleted_by, delete_reason, and original_type")
		}
	} else if i.DeletedAt != nil || i.DeletedBy != "" || i.DeleteReason != "" || i.OriginalType != "" {
		return fmt.Errorf("non-tombstone issues cannot have tombstone fields")
	}
	return nil
}

// SetDefaults applies default values for fields omitted during JSONL import.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
}

// Status represents the current state of an issue.
type Status string

// Issue status constants.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone" // Soft-deleted issue
)

// IsValid checks if the status value is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed, StatusTombstone:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends an issue's lifecycle. Terminal
// issues never block their dependents.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusTombstone
}

// IssueType categorizes the kind of work.
type IssueType string

// Issue type constants.
const (
	TypeTask    IssueType = "task"
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
	TypeSpike   IssueType = "spike"
	TypeDoc     IssueType = "doc"
	TypeTest    IssueType = "test"
	TypeOther   IssueType = "other"
)

// IsValid checks if the issue type is a known type.
func (t IssueType) IsValid() bool {
	switch t {
	case TypeTask, TypeBug, TypeFeature, TypeEpic, TypeChore, TypeSpike, TypeDoc, TypeTest, TypeOther:
		return true
	}
	return false
}

// Normalize maps issue type aliases to their canonical form.
func (t IssueType) Normalize() IssueType {
	switch strings.ToLower(string(t)) {
	case "enhancement", "feat":
		return TypeFeature
	default:
		return t
	}
}

// Dependency represents a directed edge between issues.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// DependencyType categorizes the relationship.
type DependencyType string

// Dependency type constants.
const (
	DepBlocks         DependencyType = "blocks"
	DepParentChild    DependencyType = "parent-child"
	DepRelated        DependencyType = "related"
	DepDiscoveredFrom DependencyType = "discovered-from"
)

// IsValid checks if the dependency type is known.
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepParentChild, DepRelated, DepDiscoveredFrom:
		return true
	}
	return false
}

// AffectsReadiness reports whether edges of this type order work: they are
// cycle-checked and invalidate the blocked cache. Only blocks edges enter the
// blocked-set computation; parent-child edges do not block. Association types
// never block work.
func (d DependencyType) AffectsReadiness() bool {
	return d == DepBlocks || d == DepParentChild
}

// Comment represents a comment on an issue.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents an audit trail entry. Events are append-only.
type Event struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit trail events.
type EventType string

// Event type constants.
const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventPriorityChanged   EventType = "priority_changed"
	EventAssigned          EventType = "assigned"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventDeleted           EventType = "deleted"
	EventLabelAdded        EventType = "label_added"
	EventLabelRemoved      EventType = "label_removed"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventCommentAdded      EventType = "comment_added"
	EventCompacted         EventType = "compacted"
)

// IssueWithDependencyMetadata pairs a related issue with the edge type that
// connects it.
type IssueWithDependencyMetadata struct {
	Issue
	DependencyType DependencyType `json:"dependency_type"`
}

// IssueDetails extends Issue with labels, dependencies, dependents, comments,
// and optionally events. Used by br show and the JSON API surface.
type IssueDetails struct {
	Issue
	Labels       []string                       `json:"labels,omitempty"`
	Dependencies []*IssueWithDependencyMetadata `json:"dependencies,omitempty"`
	Dependents   []*IssueWithDependencyMetadata `json:"dependents,omitempty"`
	Comments     []*Comment                     `json:"comments,omitempty"`
	Events       []*Event                       `json:"events,omitempty"`
	Parent       *string                        `json:"parent,omitempty"`
}

// BlockedIssue extends Issue with the set of open blockers.
type BlockedIssue struct {
	Issue
	BlockedBy []string `json:"blocked_by"`
}

// TreeNode represents a node in a dependency tree.
type TreeNode struct {
	Issue
	Depth     int            `json:"depth"`
	ParentID  string         `json:"parent_id,omitempty"`
	EdgeType  DependencyType `json:"edge_type,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Statistics provides the full cross-tabulation returned by br stats.
type Statistics struct {
	TotalIssues     int            `json:"total_issues"`
	ByStatus        map[string]int `json:"by_status"`
	ByType          map[string]int `json:"by_type"`
	ByPriority      map[string]int `json:"by_priority"`
	ReadyIssues     int            `json:"ready_issues"`
	BlockedIssues   int            `json:"blocked_issues"`
	OverdueIssues   int            `json:"overdue_issues"`
	AverageAgeHours float64        `json:"average_age_hours"`
	TombstoneIssues int            `json:"tombstone_issues"`
}

// IssueFilter composes the predicates accepted by list, search, ready, and
// blocked. Zero values mean "no constraint".
type IssueFilter struct {
	Statuses   []Status
	Types      []IssueType
	Priorities []int

	PriorityMin *int
	PriorityMax *int

	Assignee   *string
	Unassigned bool

	Labels    []string // AND semantics: issue must carry ALL of these
	LabelsAny []string // OR semantics: issue must carry at least one

	TitleContains       string
	DescriptionContains string
	NotesContains       string

	Overdue  bool // due_at < now and not terminal
	Deferred bool // defer_until set

	IncludeClosed     bool
	IncludeTombstones bool
	IncludeTemplates  bool

	Limit int // 0 = default (50); negative = unlimited
}

// DefaultListLimit caps list output when the caller does not choose a limit.
const DefaultListLimit = 50

// EffectiveLimit resolves the filter's limit field: 0 means the default,
// negative means unlimited.
func (f *IssueFilter) EffectiveLimit() int {
	if f.Limit == 0 {
		return DefaultListLimit
	}
	if f.Limit < 0 {
		return 0
	}
	return f.Limit
}

// IssuePatch is a partial update over an issue. Nil fields are untouched.
type IssuePatch struct {
	Title              *string
	Description        *string
	Design             *string
	AcceptanceCriteria *string
	Notes              *string
	Status             *Status
	Priority           *int
	IssueType          *IssueType
	Assignee           *string
	Owner              *string
	EstimatedMinutes   *int
	ExternalRef        *string
	DueAt              *time.Time
	DeferUntil         *time.Time
	ClearDueAt         bool
	ClearDeferUntil    bool
	Pinned             *bool
	IsTemplate         *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p *IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Design == nil &&
		p.AcceptanceCriteria == nil && p.Notes == nil && p.Status == nil &&
		p.Priority == nil && p.IssueType == nil && p.Assignee == nil &&
		p.Owner == nil && p.EstimatedMinutes == nil && p.ExternalRef == nil &&
		p.DueAt == nil && p.DeferUntil == nil && !p.ClearDueAt && !p.ClearDeferUntil &&
		p.Pinned == nil && p.IsTemplate == nil
}

// EventFilter narrows event journal listings.
type EventFilter struct {
	IssueID   string
	EventType EventType
	Actor     string
	Limit     int
}

// GroupBy selects the grouping dimension for br count.
type GroupBy string

// GroupBy constants.
const (
	GroupByNone     GroupBy = ""
	GroupByStatus   GroupBy = "status"
	GroupByPriority GroupBy = "priority"
	GroupByType     GroupBy = "type"
	GroupByAssignee GroupBy = "assignee"
	GroupByLabel    GroupBy = "label"
)

// IsValid checks the grouping dimension.
func (g GroupBy) IsValid() bool {
	switch g {
	case GroupByNone, GroupByStatus, GroupByPriority, GroupByType, GroupByAssignee, GroupByLabel:
		return true
	}
	return false
}
