package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"acolyte/internal/agent"
	"acolyte/internal/definitions"
	"acolyte/internal/game/sim"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Explain which impulses could run against the world's opening state",
		Long: `Seeds the scheduler from the definitions and evaluates every active
imperative against the simulated world without acting. Each impulse is
marked '*' when running and '+' when eligible; the reason column says why
the others are held back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func status(ctx context.Context, out io.Writer) error {
	lib, probs := definitions.Load(cfg.Definitions.Paths)
	if lib == nil {
		return fmt.Errorf("load definitions: %w", errors.Join(probs...))
	}
	def, err := sim.Load(cfg.World.Path)
	if err != nil {
		return err
	}

	a := agent.New(agent.ConfigFrom(cfg), sim.New(def), lib)
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	s, err := a.Snapshot(ctx)
	if err != nil {
		return err
	}
	if m := a.CurrentMotivation(); m != nil {
		fmt.Fprintf(out, "motivation: %s\n", m.Name())
	}
	renderStatus(out, a.Scheduler().Status(s))
	if len(probs) > 0 {
		fmt.Fprintf(out, "%d definition problems, run validate for details\n", len(probs))
	}
	return nil
}
