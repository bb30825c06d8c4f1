package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/types"
	"github.com/braid-dev/braid/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		stats, err := store.GetStatistics(ctx)
		if err != nil {
			return err
		}
		if jsonMode() {
			return outputJSON(stats)
		}

		fmt.Printf("Total: %d  Ready: %d  Blocked: %d  Overdue: %d\n",
			stats.TotalIssues, stats.ReadyIssues, stats.BlockedIssues, stats.OverdueIssues)
		printCountMap("By status", stats.ByStatus)
		printCountMap("By type", stats.ByType)
		printCountMap("By priority", stats.ByPriority)
		fmt.Printf("Average age: %.1f hours\n", stats.AverageAgeHours)
		if stats.TombstoneIssues > 0 {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("Tombstones: %d", stats.TombstoneIssues)))
		}
		return nil
	},
}

func printCountMap(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:", title)
	for _, k := range keys {
		fmt.Printf(" %s=%d", k, counts[k])
	}
	fmt.Println()
}

var countGroupBy string

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count issues, optionally grouped",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		counts, err := store.CountIssues(ctx, types.GroupBy(countGroupBy), filter)
		if err != nil {
			return err
		}
		if jsonMode() {
			return outputJSON(counts)
		}
		printCountMap("Count", counts)
		return nil
	},
}

var staleFlags struct {
	days  int
	limit int
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List issues not updated recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}
		issues, err := store.GetStaleIssues(ctx, staleFlags.days, staleFlags.limit)
		if err != nil {
			return err
		}
		return printIssues(issues)
	},
}

var eventsFlags struct {
	issue     string
	eventType string
	actor     string
	limit     int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the append-only event journal, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}

		filter := types.EventFilter{
			EventType: types.EventType(eventsFlags.eventType),
			Actor:     eventsFlags.actor,
			Limit:     eventsFlags.limit,
		}
		if eventsFlags.issue != "" {
			id, err := resolveID(ctx, eventsFlags.issue)
			if err != nil {
				return err
			}
			filter.IssueID = id
		}

		events, err := store.GetEvents(ctx, filter)
		if err != nil {
			return err
		}
		if jsonMode() {
			if events == nil {
				events = []*types.Event{}
			}
			return outputJSON(events)
		}
		for _, e := range events {
			note := ""
			if e.Comment != nil {
				note = *e.Comment
			} else if e.OldValue != nil && e.NewValue != nil {
				note = fmt.Sprintf("%s -> %s", *e.OldValue, *e.NewValue)
			}
			fmt.Printf("%s %s %s %s %s\n",
				ui.RenderMuted(e.CreatedAt.Format("2006-01-02 15:04:05")),
				ui.RenderID(e.IssueID), e.EventType, e.Actor, note)
		}
		return nil
	},
}

func init() {
	countCmd.Flags().StringVarP(&countGroupBy, "group-by", "g", "", "group by: status, priority, type, assignee, label")
	addFilterFlags(countCmd)
	staleCmd.Flags().IntVar(&staleFlags.days, "days", 30, "staleness threshold in days")
	staleCmd.Flags().IntVarP(&staleFlags.limit, "limit", "n", 0, "max results")
	eventsCmd.Flags().StringVar(&eventsFlags.issue, "issue", "", "filter by issue")
	eventsCmd.Flags().StringVar(&eventsFlags.eventType, "type", "", "filter by event type")
	eventsCmd.Flags().StringVar(&eventsFlags.actor, "by-actor", "", "filter by actor")
	eventsCmd.Flags().IntVarP(&eventsFlags.limit, "limit", "n", 0, "max results")
	rootCmd.AddCommand(statsCmd, countCmd, staleCmd, eventsCmd)
}
