package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/scoremigrate/internal/adapters/telemetry"
	"github.com/satishbabariya/scoremigrate/internal/core/migration"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/satishbabariya/scoremigrate/internal/debug"
	"github.com/satishbabariya/scoremigrate/internal/ui"
)

// ErrGrainsFailed is returned when a run finished with failed grains.
var ErrGrainsFailed = errors.New("grains failed to migrate")

type migrateFlags struct {
	force   bool
	skip    bool
	sysOnly bool
	report  bool
	yes     bool
}

func newMigrateCommand(e *env) *cobra.Command {
	var f migrateFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database in line with the score",
		Long: "Update the system grain, then every grain whose declaration changed since its last migration.\n" +
			"Locked grains are never touched; failed grains are retried once their declaration changes or they are set to recover.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("force") {
				f.force = e.cfg.Migration.Force
			}
			if !cmd.Flags().Changed("skip") {
				f.skip = e.cfg.Migration.Skip
			}
			return runMigrate(cmd.Context(), e, f)
		},
	}

	cmd.Flags().BoolVar(&f.force, "force", false, "Reconcile every grain, even unchanged ones")
	cmd.Flags().BoolVar(&f.skip, "skip", false, "Leave the database untouched")
	cmd.Flags().BoolVar(&f.sysOnly, "sys-only", false, "Update the system grain only")
	cmd.Flags().BoolVar(&f.report, "report", false, "Print the markdown run report")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runMigrate(ctx context.Context, e *env, f migrateFlags) error {
	if f.force && !f.skip {
		ok, err := confirm("Reconcile every grain, including unchanged ones?", f.yes)
		if err != nil {
			return err
		}
		if !ok {
			ui.PrintWarning("Migration cancelled")
			return nil
		}
	}

	s, err := e.loadScore()
	if err != nil {
		return err
	}
	p, err := e.openPool()
	if err != nil {
		return err
	}
	defer p.Close()

	metrics := telemetry.New()
	engine := migration.New(s, p, migration.WithRecorder(metrics), migration.WithLogger(debug.Logger()))
	defer e.writeMetrics(metrics)

	if f.sysOnly {
		if err := engine.UpdateSysGrain(ctx); err != nil {
			return fmt.Errorf("system grain: %w", err)
		}
		ui.PrintSuccess("System grain %s is up to date", score.SystemGrainName)
		return nil
	}

	spinner, _ := ui.PrintSpinner(fmt.Sprintf("Migrating %d grain(s) on %s", len(s.Grains()), p.Adaptor().Name()))
	report, err := engine.UpdateDb(ctx, migration.Options{Force: f.force, Skip: f.skip})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}
	if f.skip {
		ui.PrintInfo("Migration skipped, database left untouched")
		return nil
	}

	if err := ui.PrintReport(report); err != nil {
		return err
	}
	if f.report {
		if err := ui.PrintMarkdown(report.Markdown()); err != nil {
			return err
		}
	}
	if n := report.Count(migration.Failed); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrGrainsFailed, n, len(report.Grains))
	}
	return nil
}

// writeMetrics exports the run metrics when a textfile is configured.
func (e *env) writeMetrics(m *telemetry.Metrics) {
	if e.cfg.MetricsTextfile == "" {
		return
	}
	if err := m.WriteTextfile(e.cfg.MetricsTextfile); err != nil {
		debug.Warn("failed to write metrics", "file", e.cfg.MetricsTextfile, "error", err)
	}
}
