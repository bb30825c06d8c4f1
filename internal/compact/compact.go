// Package compact summarizes old closed issues to keep the store lean.
//
// Candidates are closed issues past a configurable age that have never been
// compacted. The original content is snapshotted in the database before the
// summary replaces it, so compaction is reversible.
package compact

import (
	"context"
	"fmt"

	"github.com/braid-dev/braid/internal/types"
)

// Summarizer produces a compact summary of an issue's long-form text.
type Summarizer interface {
	Summarize(ctx context.Context, issue *types.Issue) (string, error)
}

// Store is the slice of the storage engine compaction needs.
type Store interface {
	CompactionCandidates(ctx context.Context, olderThanDays, limit int) ([]*types.Issue, error)
	ApplyCompaction(ctx context.Context, id, summary, actor string) error
}

// Result reports what a compaction run did.
type Result struct {
	Candidates int      `json:"candidates"`
	Compacted  []string `json:"compacted,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	DryRun     bool     `json:"dry_run,omitempty"`
}

// Run summarizes every eligible issue. A dry run only lists candidates.
// Failures on individual issues are collected, not fatal: a flaky API call
// should not waste the summaries already applied.
func Run(ctx context.Context, store Store, summarizer Summarizer, olderThanDays, limit int, actor string, dryRun bool) (*Result, error) {
	candidates, err := store.CompactionCandidates(ctx, olderThanDays, limit)
	if err != nil {
		return nil, err
	}

	result := &Result{Candidates: len(candidates), DryRun: dryRun}
	if dryRun {
		for _, issue := range candidates {
			result.Compacted = append(result.Compacted, issue.ID)
		}
		return result, nil
	}

	for _, issue := range candidates {
		summary, err := summarizer.Summarize(ctx, issue)
		if err != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", issue.ID, err))
			continue
		}
		if err := store.ApplyCompaction(ctx, issue.ID, summary, actor); err != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", issue.ID, err))
			continue
		}
		result.Compacted = append(result.Compacted, issue.ID)
	}
	return result, nil
}
