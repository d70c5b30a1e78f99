package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
	"github.com/satishbabariya/scoremigrate/internal/ui"
)

func newStatusCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the grain registry",
		Long:  "List every registered grain with its version, state, checksum and last error",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), e)
		},
	}
}

// withStore runs fn with a system catalog store on a fresh connection. fn is
// not called when the system grain has not been created yet.
func (e *env) withStore(ctx context.Context, fn func(p *pool.Pool, c *dialect.Conn, store *syscat.Store) error) (bool, error) {
	s, err := e.loadScore()
	if err != nil {
		return false, err
	}
	p, err := e.openPool()
	if err != nil {
		return false, err
	}
	defer p.Close()

	c, err := p.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer p.Release(c)

	store := syscat.New(c, p.Adaptor(), s)
	ok, err := store.Bootstrapped(ctx)
	if err != nil || !ok {
		return false, err
	}
	return true, fn(p, c, store)
}

func runStatus(ctx context.Context, e *env) error {
	ok, err := e.withStore(ctx, func(_ *pool.Pool, _ *dialect.Conn, store *syscat.Store) error {
		rows, err := store.Grains(ctx)
		if err != nil {
			return fmt.Errorf("failed to read grain registry: %w", err)
		}
		if len(rows) == 0 {
			ui.PrintInfo("No grains registered")
			return nil
		}
		return ui.PrintGrains(rows)
	})
	if err != nil {
		return err
	}
	if !ok {
		ui.PrintWarning("The database has not been migrated yet; run scoremigrate migrate")
	}
	return nil
}
