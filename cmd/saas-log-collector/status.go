package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/saas-log-collector/internal/checkpoint"
	"github.com/withObsrvr/saas-log-collector/internal/config"
)

func newStatusCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last collection cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			mgr, err := checkpoint.NewManager(checkpoint.Config{Enabled: true, Dir: cfg.State.Dir})
			if err != nil {
				return err
			}
			cp, err := mgr.Load(cmd.Context())
			if errors.Is(err, checkpoint.ErrNoCheckpoint) {
				fmt.Fprintf(cmd.OutOrStdout(), "no cycle recorded in %s\n", cfg.State.Dir)
				return nil
			}
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), cp)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to the YAML configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func printStatus(w io.Writer, cp *checkpoint.Checkpoint) error {
	fmt.Fprintf(w, "cycle     %s\n", cp.CycleID)
	fmt.Fprintf(w, "outcome   %s\n", cp.Outcome)
	if cp.Reason != "" {
		fmt.Fprintf(w, "reason    %s\n", cp.Reason)
	}
	fmt.Fprintf(w, "finished  %s (%s, took %s)\n",
		cp.FinishedAt.Format("2006-01-02 15:04:05 MST"),
		humanize.Time(cp.FinishedAt),
		cp.Duration().Round(time.Millisecond),
	)
	if cp.Window.Start != "" {
		fmt.Fprintf(w, "window    %s .. %s\n", cp.Window.Start, cp.Window.End)
	}
	fmt.Fprintf(w, "purged    %d\n", cp.Purged)
	if len(cp.Solutions) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOLUTION\tLISTED\tQUEUED\tDOWNLOADED\tSKIPPED\tFAILED\tRECLAIMED\tEXTRACTED")
	solutions := make([]string, 0, len(cp.Solutions))
	for s := range cp.Solutions {
		solutions = append(solutions, s)
	}
	sort.Strings(solutions)
	for _, s := range solutions {
		st := cp.Solutions[s]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s, st.Listed, st.Queued, st.Downloaded, st.Skipped, st.Failed, st.Reclaimed,
			humanize.Bytes(uint64(st.Bytes)),
		)
	}
	return tw.Flush()
}
