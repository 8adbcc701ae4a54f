package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"acolyte/internal/agent"
	"acolyte/internal/definitions"
	"acolyte/internal/game/sim"
	"acolyte/internal/logging"
	"acolyte/internal/scheduler"
	"acolyte/internal/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	var beats int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine against the simulated world",
		Long: `Loads the definitions and the simulated world, then beats until
interrupted, until --beats beats have run, or until the scheduler stops.

With definitions.watch enabled, edits to definition files are picked up
without a restart: the scheduler is reset and re-seeded from the new files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEngine(ctx, cmd.OutOrStdout(), beats)
		},
	}
	cmd.Flags().IntVarP(&beats, "beats", "n", 0, "Stop after this many beats (0 runs until interrupted)")
	return cmd
}

// ErrSchedulerStopped marks a run that ended because the scheduler gave up.
var ErrSchedulerStopped = errors.New("scheduler stopped")

func runEngine(ctx context.Context, out io.Writer, beats int) error {
	lib, probs := definitions.Load(cfg.Definitions.Paths)
	if lib == nil {
		return fmt.Errorf("load definitions: %w", errors.Join(probs...))
	}
	for _, p := range probs {
		fmt.Fprintf(out, "warning: %v\n", p)
	}

	def, err := sim.Load(cfg.World.Path)
	if err != nil {
		return err
	}
	world := sim.New(def)

	acfg := agent.ConfigFrom(cfg)
	acfg.Lockstep = true

	var opts []agent.Option
	var journal *store.Journal
	if cfg.Journal.Enabled {
		journal, err = store.Open(cfg.Journal.DatabasePath)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, agent.WithListener(journal))
	}

	a := agent.New(acfg, world, lib, opts...)
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()
	logging.Boot("running with %d operations, %d goals, %d motivations", len(lib.Operations), len(lib.Goals), len(lib.Motivations))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.Run(gctx, beats)
	})

	if cfg.Definitions.Watch {
		paths := cfg.Definitions.Paths
		w, err := definitions.NewWatcher(paths, cfg.GetDebounce(), func([]string) {
			a.ReloadFrom(paths)
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	runErr := g.Wait()
	renderSummary(out, a, journal)
	if runErr != nil {
		if errors.Is(runErr, scheduler.ErrTooManyAborts) || errors.Is(runErr, scheduler.ErrRunawayLoop) {
			return fmt.Errorf("%w: %w", ErrSchedulerStopped, runErr)
		}
		return runErr
	}
	return nil
}
