package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/braid-dev/braid/internal/types"
)

// MutationCtx accumulates the side effects of one mutation: journal events,
// dirty marks, and the blocked-cache invalidation request. Everything it
// records is applied in the same transaction as the mutation itself, or
// discarded wholesale on rollback.
type MutationCtx struct {
	Op    string
	Actor string
	Now   time.Time

	events     []pendingEvent
	dirty      map[string]struct{}
	invalidate bool
}

type pendingEvent struct {
	issueID   string
	eventType types.EventType
	oldValue  *string
	newValue  *string
	comment   *string
}

// RecordEvent appends an event to the journal buffer. Events are written at
// commit time in recording order, with server-assigned IDs.
func (mc *MutationCtx) RecordEvent(issueID string, eventType types.EventType, oldValue, newValue, comment *string) {
	mc.events = append(mc.events, pendingEvent{
		issueID:   issueID,
		eventType: eventType,
		oldValue:  oldValue,
		newValue:  newValue,
		comment:   comment,
	})
}

// RecordNote is RecordEvent with only a comment payload.
func (mc *MutationCtx) RecordNote(issueID string, eventType types.EventType, note string) {
	mc.RecordEvent(issueID, eventType, nil, nil, &note)
}

// MarkDirty flags an issue's JSONL representation as stale.
func (mc *MutationCtx) MarkDirty(issueID string) {
	if mc.dirty == nil {
		mc.dirty = make(map[string]struct{})
	}
	mc.dirty[issueID] = struct{}{}
}

// InvalidateBlockedCache requests a DELETE of the blocked-issues cache at
// commit time.
func (mc *MutationCtx) InvalidateBlockedCache() {
	mc.invalidate = true
}

// mutate is the single write entry point. It acquires the write lock up
// front (BEGIN IMMEDIATE), runs body, then applies the accumulated events,
// dirty marks, and cache invalidation before committing. Any error rolls the
// whole unit back.
//
// database/sql's BeginTx cannot express IMMEDIATE mode, so the transaction
// is driven with raw statements on a pinned connection.
func (s *Store) mutate(ctx context.Context, op, actor string, body func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapBusy(err, op)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return wrapBusy(err, op)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context: rollback must run even if ctx is canceled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	mc := &MutationCtx{Op: op, Actor: actor, Now: time.Now().UTC()}

	if err := body(ctx, conn, mc); err != nil {
		return err
	}

	for _, ev := range mc.events {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ev.issueID, ev.eventType, mc.Actor, ev.oldValue, ev.newValue, ev.comment, mc.Now)
		if err != nil {
			return wrapBusy(err, op+": write event")
		}
	}

	for id := range mc.dirty {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO dirty_issues (issue_id, marked_at)
			VALUES (?, ?)
			ON CONFLICT (issue_id) DO UPDATE SET marked_at = excluded.marked_at
		`, id, mc.Now)
		if err != nil {
			return wrapBusy(err, op+": mark dirty")
		}
	}

	if mc.invalidate {
		if _, err := conn.ExecContext(ctx, `DELETE FROM blocked_issues_cache`); err != nil {
			return wrapBusy(err, op+": invalidate blocked cache")
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapBusy(err, op+": commit")
	}
	committed = true
	return nil
}
