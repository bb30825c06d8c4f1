package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/idgen"
)

// maxIDAttempts bounds the skip-existing loop when imported IDs occupy the
// counter's path.
const maxIDAttempts = 100000

// nextID allocates the next counter-based ID for the prefix. The suffix
// width adapts to how full the ID space is; IDs already present (imported
// from JSONL) are skipped. Runs inside the caller's IMMEDIATE transaction so
// allocation is serialized across writers.
func (s *Store) nextID(ctx context.Context, conn *sql.Conn, prefix string) (string, error) {
	var count int
	err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues WHERE id LIKE ? || '-%' AND id NOT LIKE '%.%'
	`, prefix).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to count issues for prefix: %w", err)
	}
	width := idgen.WidthForCount(count)

	counterKey := "id_counter:" + prefix
	var last int64
	var raw string
	err = conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, counterKey).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read ID counter: %w", err)
	}
	if err == nil {
		if last, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return "", errs.New(errs.CodeSchemaError, "corrupt ID counter value %q", raw)
		}
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		last++
		candidate := idgen.Format(prefix, last, width)
		exists, err := idExists(ctx, conn, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO config (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, counterKey, strconv.FormatInt(last, 10))
		if err != nil {
			return "", fmt.Errorf("failed to persist ID counter: %w", err)
		}
		return candidate, nil
	}
	return "", errs.New(errs.CodeInternal, "failed to allocate an ID for prefix %q after %d attempts", prefix, maxIDAttempts)
}

// NextChildID allocates the next hierarchical child ID under parent using
// the child_counters table.
func (s *Store) NextChildID(ctx context.Context, parentID string) (string, error) {
	var childID string
	err := s.mutate(ctx, "id.child", "system", func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		exists, err := idExists(ctx, conn, parentID)
		if err != nil {
			return err
		}
		if !exists {
			return errs.NotFound(parentID)
		}

		for {
			var last int
			err := conn.QueryRowContext(ctx, `
				SELECT last_child FROM child_counters WHERE parent_id = ?
			`, parentID).Scan(&last)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("failed to read child counter: %w", err)
			}

			next := last + 1
			candidate := idgen.ChildID(parentID, next)
			_, err = conn.ExecContext(ctx, `
				INSERT INTO child_counters (parent_id, last_child) VALUES (?, ?)
				ON CONFLICT (parent_id) DO UPDATE SET last_child = excluded.last_child
			`, parentID, next)
			if err != nil {
				return fmt.Errorf("failed to bump child counter: %w", err)
			}

			taken, err := idExists(ctx, conn, candidate)
			if err != nil {
				return err
			}
			if !taken {
				childID = candidate
				return nil
			}
		}
	})
	if err != nil {
		return "", err
	}
	return childID, nil
}

// bumpChildCounter raises a parent's child counter to at least the child
// number of an explicitly supplied hierarchical ID, so later allocations
// cannot collide with imported children.
func bumpChildCounter(ctx context.Context, conn *sql.Conn, childID string) error {
	parent := idgen.ParentID(childID)
	if parent == "" {
		return nil
	}
	dot := len(parent) + 1
	n, err := strconv.Atoi(childID[dot:])
	if err != nil {
		return nil
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child) VALUES (?, ?)
		ON CONFLICT (parent_id) DO UPDATE SET last_child = MAX(last_child, excluded.last_child)
	`, parent, n)
	if err != nil {
		return fmt.Errorf("failed to update child counter: %w", err)
	}
	return nil
}

// AllIssueIDs returns every issue ID, sorted, optionally including
// tombstones.
func (s *Store) AllIssueIDs(ctx context.Context, includeTombstones bool) ([]string, error) {
	query := `SELECT id FROM issues`
	if !includeTombstones {
		query += ` WHERE status != 'tombstone'`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan issue ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveID resolves user input (full ID, bare suffix, or unique prefix of
// either) against the ID space. Tombstones participate so history commands
// can reference deleted issues.
func (s *Store) ResolveID(ctx context.Context, input string) (idgen.Resolution, error) {
	prefix, err := s.Prefix(ctx)
	if err != nil {
		return idgen.Resolution{}, err
	}
	known, err := s.AllIssueIDs(ctx, true)
	if err != nil {
		return idgen.Resolution{}, err
	}
	return idgen.Resolve(input, prefix, known), nil
}
