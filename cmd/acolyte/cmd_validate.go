package main

import (
	"fmt"
	"io"

	"acolyte/internal/definitions"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the definition files and list every problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(cmd.OutOrStdout(), cfg.Definitions.Paths)
		},
	}
}

func validate(out io.Writer, paths []string) error {
	lib, probs := definitions.Load(paths)
	if lib != nil {
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Kind", "Loaded"})
		tw.AppendRow(table.Row{"files", len(lib.Files)})
		tw.AppendRow(table.Row{"operations", len(lib.Operations)})
		tw.AppendRow(table.Row{"goals", len(lib.Goals)})
		tw.AppendRow(table.Row{"motivations", len(lib.Motivations)})
		tw.AppendRow(table.Row{"sequence", len(lib.Sequence)})
		tw.AppendRow(table.Row{"imperatives", len(lib.Imperatives)})
		tw.Render()
	}
	if len(probs) == 0 {
		fmt.Fprintln(out, "definitions OK")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"#", "Problem"})
	for i, p := range probs {
		tw.AppendRow(table.Row{i + 1, p.Error()})
	}
	tw.Render()
	return fmt.Errorf("%d definition problems", len(probs))
}
