package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/types"
)

// maxTraversalDepth bounds recursive graph queries.
const maxTraversalDepth = 100

// AddDependency inserts a directed edge with cycle prevention. For blocking
// edge types a path from target back to source over non-tombstone issues is
// rejected; parent-child edges additionally enforce a single parent.
func (s *Store) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if !dep.Type.IsValid() {
		return errs.New(errs.CodeInvalidArgument, "invalid dependency type: %q", dep.Type)
	}
	if dep.IssueID == dep.DependsOnID {
		return errs.New(errs.CodeInvalidArgument, "issue cannot depend on itself").WithIssue(dep.IssueID)
	}
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}
	if dep.CreatedBy == "" {
		dep.CreatedBy = actor
	}

	return s.mutate(ctx, "dep.add", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		if _, err := mustGetOn(ctx, conn, dep.IssueID); err != nil {
			return err
		}
		if _, err := mustGetOn(ctx, conn, dep.DependsOnID); err != nil {
			return err
		}

		var exists bool
		err := conn.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM dependencies WHERE issue_id = ? AND depends_on_id = ?)
		`, dep.IssueID, dep.DependsOnID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check existing edge: %w", err)
		}
		if exists {
			return errs.New(errs.CodeInvalidArgument, "dependency %s -> %s already exists",
				dep.IssueID, dep.DependsOnID)
		}

		if dep.Type == types.DepParentChild {
			var parent sql.NullString
			err := conn.QueryRowContext(ctx, `
				SELECT depends_on_id FROM dependencies WHERE issue_id = ? AND type = 'parent-child'
			`, dep.IssueID).Scan(&parent)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("failed to check parent: %w", err)
			}
			if parent.Valid {
				return errs.New(errs.CodeParentExists, "issue already has parent %s", parent.String).
					WithIssue(dep.IssueID)
			}
		}

		// Cycle prevention for edge types that affect readiness: if a path
		// already leads from the target back to the source over non-tombstone
		// issues, this edge would close a cycle. Association types (related,
		// discovered-from) never order work and skip the check.
		if dep.Type.AffectsReadiness() {
			var cycle bool
			err := conn.QueryRowContext(ctx, `
				WITH RECURSIVE paths AS (
					SELECT d.issue_id, d.depends_on_id, 1 AS depth
					FROM dependencies d
					JOIN issues src ON src.id = d.issue_id
					WHERE d.issue_id = ?
					  AND d.type IN ('blocks', 'parent-child')
					  AND src.status != 'tombstone'

					UNION ALL

					SELECT d.issue_id, d.depends_on_id, p.depth + 1
					FROM dependencies d
					JOIN paths p ON d.issue_id = p.depends_on_id
					JOIN issues src ON src.id = d.issue_id
					WHERE d.type IN ('blocks', 'parent-child')
					  AND src.status != 'tombstone'
					  AND p.depth < ?
				)
				SELECT EXISTS(SELECT 1 FROM paths WHERE depends_on_id = ?)
			`, dep.DependsOnID, maxTraversalDepth, dep.IssueID).Scan(&cycle)
			if err != nil {
				return fmt.Errorf("failed to check for cycles: %w", err)
			}
			if cycle {
				return errs.New(errs.CodeCycleDetected,
					"cannot add dependency: would create a cycle (%s -> %s -> ... -> %s)",
					dep.IssueID, dep.DependsOnID, dep.IssueID).WithIssue(dep.IssueID)
			}
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)
		`, dep.IssueID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to add dependency: %w", err)
		}

		// Edges are part of the source issue's content hash.
		if err := refreshContentHash(ctx, conn, dep.IssueID, mc); err != nil {
			return err
		}

		mc.RecordNote(dep.IssueID, types.EventDependencyAdded,
			fmt.Sprintf("Added dependency: %s %s %s", dep.IssueID, dep.Type, dep.DependsOnID))
		mc.MarkDirty(dep.IssueID)
		mc.MarkDirty(dep.DependsOnID)
		if dep.Type.AffectsReadiness() {
			mc.InvalidateBlockedCache()
		}
		return nil
	})
}

// RemoveDependency deletes an edge. Removing an absent edge is a no-op.
func (s *Store) RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) error {
	return s.mutate(ctx, "dep.remove", actor, func(ctx context.Context, conn *sql.Conn, mc *MutationCtx) error {
		var depType types.DependencyType
		err := conn.QueryRowContext(ctx, `
			SELECT type FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
		`, issueID, dependsOnID).Scan(&depType)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up edge: %w", err)
		}

		if _, err := conn.ExecContext(ctx, `
			DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
		`, issueID, dependsOnID); err != nil {
			return fmt.Errorf("failed to remove dependency: %w", err)
		}

		if err := refreshContentHash(ctx, conn, issueID, mc); err != nil {
			return err
		}

		mc.RecordNote(issueID, types.EventDependencyRemoved,
			fmt.Sprintf("Removed dependency on %s", dependsOnID))
		mc.MarkDirty(issueID)
		mc.MarkDirty(dependsOnID)
		if depType.AffectsReadiness() {
			mc.InvalidateBlockedCache()
		}
		return nil
	})
}

// GetDependencyRecords returns the raw outgoing edges of an issue.
func (s *Store) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	return getDependencyRecordsOn(ctx, s.db, issueID)
}

func getDependencyRecordsOn(ctx context.Context, q dbtx, issueID string) ([]*types.Dependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY created_at ASC, depends_on_id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var dep types.Dependency
		if err := rows.Scan(&dep.IssueID, &dep.DependsOnID, &dep.Type, &dep.CreatedAt, &dep.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, &dep)
	}
	return deps, rows.Err()
}

// AllDependencyRecords returns every edge grouped by source issue. Bulk
// export uses this to avoid N+1 queries.
func (s *Store) AllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		ORDER BY issue_id, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all dependency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depsMap := make(map[string][]*types.Dependency)
	for rows.Next() {
		var dep types.Dependency
		if err := rows.Scan(&dep.IssueID, &dep.DependsOnID, &dep.Type, &dep.CreatedAt, &dep.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		depsMap[dep.IssueID] = append(depsMap[dep.IssueID], &dep)
	}
	return depsMap, rows.Err()
}

// GetParentID returns the target of the issue's parent-child edge, or "".
func (s *Store) GetParentID(ctx context.Context, issueID string) (string, error) {
	var parent string
	err := s.db.QueryRowContext(ctx, `
		SELECT depends_on_id FROM dependencies WHERE issue_id = ? AND type = 'parent-child'
	`, issueID).Scan(&parent)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get parent: %w", err)
	}
	return parent, nil
}

// getRelatedWithMetadata loads connected issues with their edge type.
// reverse=false follows outgoing edges (dependencies); reverse=true follows
// incoming edges (dependents).
func (s *Store) getRelatedWithMetadata(ctx context.Context, issueID string, reverse bool) ([]*types.IssueWithDependencyMetadata, error) {
	join := "i.id = d.depends_on_id AND d.issue_id = ?"
	if reverse {
		join = "i.id = d.issue_id AND d.depends_on_id = ?"
	}
	// #nosec G201 - join clause is one of two literals above
	query := fmt.Sprintf(`
		SELECT %s, d.type
		FROM issues i
		JOIN dependencies d ON %s
		ORDER BY i.priority ASC, i.created_at DESC
	`, prefixedIssueColumns("i"), join)

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get related issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.IssueWithDependencyMetadata
	for rows.Next() {
		item, err := scanIssueWithDepType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetDependencyTree walks outgoing edges breadth-first from issueID.
// Depth truncation is inclusive: maxDepth=2 shows the root plus two levels.
// Diamond nodes appear once, at their shallowest depth.
func (s *Store) GetDependencyTree(ctx context.Context, issueID string, maxDepth int) ([]*types.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = maxTraversalDepth / 2
	}

	root, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errs.NotFound(issueID)
	}

	edges, err := s.AllDependencyRecords(ctx)
	if err != nil {
		return nil, err
	}

	nodes := []*types.TreeNode{{Issue: *root, Depth: 0}}
	visited := map[string]bool{issueID: true}

	type frame struct {
		id    string
		depth int
	}
	queue := []frame{{issueID, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, dep := range edges[cur.id] {
			if visited[dep.DependsOnID] {
				continue
			}
			child, err := s.GetIssue(ctx, dep.DependsOnID)
			if err != nil {
				return nil, err
			}
			if child == nil || child.IsTombstone() {
				continue
			}
			visited[dep.DependsOnID] = true

			node := &types.TreeNode{
				Issue:    *child,
				Depth:    cur.depth + 1,
				ParentID: cur.id,
				EdgeType: dep.Type,
			}
			if cur.depth+1 >= maxDepth {
				node.Truncated = len(edges[dep.DependsOnID]) > 0
				nodes = append(nodes, node)
				continue
			}
			nodes = append(nodes, node)
			queue = append(queue, frame{dep.DependsOnID, cur.depth + 1})
		}
	}

	return nodes, nil
}

// FindCycles returns every strongly connected component of size > 1 plus all
// self-loops, over edges between non-tombstone issues. Tarjan's algorithm,
// iterative so deep graphs cannot blow the goroutine stack; O(V+E).
func (s *Store) FindCycles(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.issue_id, d.depends_on_id
		FROM dependencies d
		JOIN issues src ON src.id = d.issue_id
		JOIN issues dst ON dst.id = d.depends_on_id
		WHERE src.status != 'tombstone' AND dst.status != 'tombstone'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	adj := make(map[string][]string)
	var selfLoops [][]string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if from == to {
			selfLoops = append(selfLoops, []string{from})
			continue
		}
		adj[from] = append(adj[from], to)
		if _, ok := adj[to]; !ok {
			adj[to] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var cycles [][]string
	cycles = append(cycles, tarjanSCCs(adj)...)
	cycles = append(cycles, selfLoops...)
	return cycles, nil
}

// tarjanSCCs runs iterative Tarjan over the adjacency map and returns the
// strongly connected components with more than one node, each sorted.
func tarjanSCCs(adj map[string][]string) [][]string {
	index := make(map[string]int, len(adj))
	lowlink := make(map[string]int, len(adj))
	onStack := make(map[string]bool, len(adj))
	var stack []string
	counter := 0
	var sccs [][]string

	// Deterministic iteration order for stable output.
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	type frame struct {
		node string
		next int // index into adj[node] to resume at
	}

	for _, start := range nodes {
		if _, seen := index[start]; seen {
			continue
		}

		work := []frame{{node: start}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			v := f.node

			if f.next == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++
				stack = append(stack, v)
				onStack[v] = true
			}

			advanced := false
			for f.next < len(adj[v]) {
				w := adj[v][f.next]
				f.next++
				if _, seen := index[w]; !seen {
					work = append(work, frame{node: w})
					advanced = true
					break
				}
				if onStack[w] && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			if advanced {
				continue
			}

			// v is finished; pop a component if v is its root.
			if lowlink[v] == index[v] {
				var scc []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					scc = append(scc, w)
					if w == v {
						break
					}
				}
				if len(scc) > 1 {
					sort.Strings(scc)
					sccs = append(sccs, scc)
				}
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}

	return sccs
}
