package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/visemesync/internal/timeline"
)

type timelineFlags struct {
	threePhase bool
	asJSON     bool
}

func newTimelineCmd() *cobra.Command {
	var f timelineFlags
	cmd := &cobra.Command{
		Use:   "timeline TEXT...",
		Short: "Print the viseme timeline for a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			opts := cfg.TimelineOptions()
			if f.threePhase {
				opts.Variant = timeline.ThreePhase
			}
			tl := timeline.Build(strings.Join(args, " "), timeline.WithOptions(opts))
			return printTimeline(cmd.OutOrStdout(), tl, f.asJSON)
		},
	}
	cmd.Flags().BoolVar(&f.threePhase, "three-phase", false, "split each viseme into opening, hold and closing")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print entries as JSON")
	return cmd
}

type timelineRow struct {
	Pose       string `json:"pose"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
}

func printTimeline(w io.Writer, tl *timeline.Timeline, asJSON bool) error {
	rows := make([]timelineRow, 0, tl.Len())
	for _, e := range tl.Entries() {
		rows = append(rows, timelineRow{
			Pose:       e.Pose.Key(),
			StartMS:    e.Start.Milliseconds(),
			DurationMS: e.Duration.Milliseconds(),
		})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tDURATION\tPOSE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%dms\t%dms\t%s\n", r.StartMS, r.DurationMS, r.Pose)
	}
	fmt.Fprintf(tw, "total\t%s\t\n", tl.Total())
	return tw.Flush()
}
