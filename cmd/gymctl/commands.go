package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/analytics"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"

	"github.com/spf13/cobra"
)

const defaultMaxTicks = 100

func newQueueCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "queue",
		Aliases: []string{"status"},
		Short:   "Show changes waiting to be synced to the remote",
		Args:    cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			entries := e.engine.Queue().Entries()
			if jsonOutput(cmd) {
				if entries == nil {
					entries = []syncqueue.Entry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "queue empty, everything is synced")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tWORKOUT\tATTEMPTS\tENQUEUED\tLAST ERROR")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					entry.ID,
					entry.Type,
					entry.EntityID,
					entry.AggregateID,
					entry.Attempts,
					entry.EnqueuedAt.Format(time.RFC3339),
					entry.LastError,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d pending, oldest waiting %s, unsynced records: %d\n",
				len(entries),
				e.engine.Queue().HeadAge().Round(time.Second),
				e.engine.Store().PendingCount(),
			)
			return nil
		}),
	}
}

func newSyncCmd(run runner) *cobra.Command {
	var maxTicks int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Retry queued changes until the queue is empty or the remote fails again",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			if maxTicks < 1 {
				return fmt.Errorf("max ticks must be at least 1, got %d", maxTicks)
			}
			out := cmd.OutOrStdout()
			counts := make(map[syncqueue.TickResult]int)
		loop:
			for i := 0; i < maxTicks; i++ {
				result := e.reconciler.Tick(cmd.Context())
				counts[result]++
				switch result {
				case syncqueue.TickEmpty, syncqueue.TickRetry:
					break loop
				}
			}
			e.engine.Wait()

			fmt.Fprintf(out, "synced: %d, discarded: %d, retry: %d\n",
				counts[syncqueue.TickSynced],
				counts[syncqueue.TickDiscarded],
				counts[syncqueue.TickRetry],
			)
			if left := e.engine.Queue().Len(); left > 0 {
				fmt.Fprintf(out, "%d entries still pending\n", left)
			} else {
				fmt.Fprintln(out, "queue drained")
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&maxTicks, "max-ticks", defaultMaxTicks, "upper bound of queue entries to retry")
	return cmd
}

func newFatigueCmd(run runner) *cobra.Command {
	var (
		today   string
		windows []int
	)
	cmd := &cobra.Command{
		Use:   "fatigue",
		Short: "Show rolling fatigue windows and the per muscle split",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			if today == "" {
				today = e.engine.Today()
			}
			summary, err := e.analyzer.Summary(cmd.Context(), today, windows...)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fatigue as of %s\n\n", summary.Today)
			tw := newTable(out)
			fmt.Fprintln(tw, "DAYS\tFATIGUE")
			for _, w := range summary.Windows {
				fmt.Fprintf(tw, "%d\t%.1f%%\n", w.Days, w.Percent)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(summary.Muscles) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			tw = newTable(out)
			fmt.Fprintln(tw, "MUSCLE\tSHARE")
			for _, m := range summary.Muscles {
				fmt.Fprintf(tw, "%s\t%.1f%%\n", m.Muscle, m.Percent)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&today, "today", "", "last day of the windows, YYYY-MM-DD (default today)")
	cmd.Flags().IntSliceVar(&windows, "windows", nil, "window lengths in days (default 1,3,6,9)")
	return cmd
}

func newChartCmd(run runner) *cobra.Command {
	var (
		filter      analytics.ChartFilter
		granularity int
	)
	cmd := &cobra.Command{
		Use:       "chart [volume|sets|onerm|daily]",
		Short:     "Print chart series",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"volume", "sets", "onerm", "daily"},
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			var (
				points []analytics.Point
				err    error
			)
			ctx := cmd.Context()
			switch args[0] {
			case "volume":
				points, err = e.analyzer.Volume(ctx, filter)
			case "sets":
				points, err = e.analyzer.Sets(ctx, filter)
			case "daily":
				points, err = e.analyzer.DailyFatigue(ctx)
			case "onerm":
				if filter.ExerciseName == "" {
					return errors.New("--exercise is required for the 1RM chart")
				}
				g := analytics.Granularity(granularity)
				if !g.IsValid() {
					return fmt.Errorf("granularity must be 10, 20 or 30, got %d", granularity)
				}
				points, err = e.analyzer.OneRM(ctx, filter.ExerciseName, g)
			}
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if points == nil {
					points = []analytics.Point{}
				}
				return printJSON(cmd.OutOrStdout(), points)
			}
			if len(points) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no data")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%g\n", p.Label, p.Value)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&filter.ExerciseName, "exercise", "", "exercise name")
	cmd.Flags().StringVar(&filter.WorkoutID, "workout", "", "workout id")
	cmd.Flags().IntVar(&filter.Smooth, "smooth", 0, "average runs of this many points")
	cmd.Flags().IntVar(&granularity, "granularity", int(analytics.Last10), "1RM chart range: 10, 20 or 30 days with data")
	return cmd
}

func newCompactCmd(run runner) *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Purge synced deleted logs older than the retention",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			purged, err := e.engine.CompactDeletedLogs(cmd.Context(), olderThanDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d deleted logs\n", purged)
			return nil
		}),
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 30, "retention in days")
	return cmd
}

func newDefinitionsCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "definitions",
		Aliases: []string{"defs"},
		Short:   "List exercise definitions",
		Args:    cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, e *env) error {
			defs := e.engine.Definitions().List()
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), defs)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NAME\tMAIN MUSCLE\tFACTOR\tUSER MAX")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.1f\n", d.Name, d.MainMuscle, d.FatigueFactor, d.UserMax)
			}
			return tw.Flush()
		}),
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
