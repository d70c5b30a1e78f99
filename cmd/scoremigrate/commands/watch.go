package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/scoremigrate/internal/ui"
	"github.com/satishbabariya/scoremigrate/internal/watch"
)

func newWatchCommand(e *env) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Migrate whenever a grain file changes",
		Long:  "Run a migration, then rerun it each time a grain file in the score directory is written, created or removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, e, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a change triggers a run")

	return cmd
}

func runWatch(ctx context.Context, e *env, debounce time.Duration) error {
	rerun := func() error {
		err := runMigrate(ctx, e, migrateFlags{yes: true})
		if err != nil {
			ui.PrintError("%v", err)
		}
		return nil
	}

	w, err := watch.NewWatcher(e.cfg.ScorePath, debounce, rerun)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	ui.PrintInfo("Watching %s for changes (Ctrl+C to stop)", e.cfg.ScorePath)

	<-ctx.Done()
	return w.Stop()
}
