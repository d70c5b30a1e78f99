package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
	"github.com/satishbabariya/scoremigrate/internal/ui"
)

// ErrNotMigrated is returned by operator overrides on a database without a system grain.
var ErrNotMigrated = errors.New("database has not been migrated yet")

func newGrainCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grain",
		Short: "Operator overrides of grain states",
	}

	cmd.AddCommand(newGrainStateCommand(e, "lock", syscat.Locked,
		"Exclude a grain from migration until it is unlocked"))
	cmd.AddCommand(newGrainStateCommand(e, "unlock", syscat.Ready,
		"Return a locked grain to READY"))
	cmd.AddCommand(newGrainStateCommand(e, "recover", syscat.Recover,
		"Retry a failed grain on the next run even if its declaration is unchanged"))

	return cmd
}

func newGrainStateCommand(e *env, verb string, state syscat.GrainState, short string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   verb + " <grain>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrainState(cmd.Context(), e, args[0], state, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runGrainState(ctx context.Context, e *env, name string, state syscat.GrainState, yes bool) error {
	ok, err := confirm(fmt.Sprintf("Set grain %s to %s?", name, state), yes)
	if err != nil {
		return err
	}
	if !ok {
		ui.PrintWarning("Cancelled")
		return nil
	}

	bootstrapped, err := e.withStore(ctx, func(p *pool.Pool, c *dialect.Conn, store *syscat.Store) error {
		if err := store.SetGrainState(ctx, name, state); err != nil {
			return err
		}
		return p.Commit(ctx, c)
	})
	if err != nil {
		return err
	}
	if !bootstrapped {
		return ErrNotMigrated
	}
	ui.PrintSuccess("Grain %s is now %s", name, state)
	return nil
}
