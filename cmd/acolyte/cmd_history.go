package main

import (
	"io"

	"acolyte/internal/store"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled lifecycle events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return history(cmd.OutOrStdout(), cfg.Journal.DatabasePath, limit, all)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum events to show")
	cmd.Flags().BoolVar(&all, "all", false, "Include every run, not just the latest")
	return cmd
}

func history(out io.Writer, path string, limit int, all bool) error {
	j, err := store.Inspect(path)
	if err != nil {
		return err
	}
	defer j.Close()

	var entries []store.Entry
	if all {
		entries, err = j.Recent(limit)
	} else {
		runs, rerr := j.Runs()
		if rerr != nil {
			return rerr
		}
		if len(runs) == 0 {
			renderHistory(out, nil)
			return nil
		}
		entries, err = j.RunEntries(runs[0], limit)
	}
	if err != nil {
		return err
	}
	renderHistory(out, entries)
	return nil
}
