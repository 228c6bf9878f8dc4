package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/eaglebridge/internal/logtail"
)

const followInterval = 500 * time.Millisecond

func newLogsCmd(flags *globalFlags) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:       "logs <responder|initiator>",
		Short:     "Print a side's log file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"responder", "initiator"},
		RunE: func(cmd *cobra.Command, args []string) error {
			side := args[0]
			if side != "responder" && side != "initiator" {
				return fmt.Errorf("unknown side %q", side)
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.LogPath(side)
			out := cmd.OutOrStdout()

			raw, err := logtail.Read(path, lines)
			if err != nil {
				return err
			}
			printLines(out, raw)
			if !follow {
				return nil
			}

			// Re-read the size so following starts after what was printed.
			_, offset, err := logtail.ReadFrom(path, 0)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ticker := time.NewTicker(followInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				var fresh []string
				fresh, offset, err = logtail.ReadFrom(path, offset)
				if err != nil {
					return err
				}
				printLines(out, fresh)
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of trailing lines (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	return cmd
}

func printLines(out io.Writer, raw []string) {
	for _, line := range logtail.FormatLines(raw) {
		fmt.Fprintln(out, line)
	}
}
