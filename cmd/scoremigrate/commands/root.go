// Package commands implements CLI commands.
package commands

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialects"
	"github.com/satishbabariya/scoremigrate/internal/config"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/satishbabariya/scoremigrate/internal/core/score/loader"
	"github.com/satishbabariya/scoremigrate/internal/debug"
)

// env is the state shared by the commands of one invocation.
type env struct {
	loader *config.Loader
	cfg    *config.Config
}

// NewRootCommand creates the root command with every subcommand attached.
// Persistent flags override the matching configuration keys.
func NewRootCommand(l *config.Loader) *cobra.Command {
	e := &env{loader: l}
	cmd := &cobra.Command{
		Use:           "scoremigrate",
		Short:         "Reconcile databases with a declared score",
		Long:          "scoremigrate brings the schema of a database in line with the grains declared in a score directory",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("dialect", "", "Database dialect (sqlite, postgres, mysql, mssql)")
	flags.String("url", "", "Database connection URL")
	flags.String("score", "", "Directory holding the grain files")
	flags.Bool("debug", false, "Log DDL statements and grain decisions")
	v := l.Viper()
	for key, flag := range map[string]string{
		"database.dialect": "dialect",
		"database.url":     "url",
		"score.path":       "score",
		"log.debug":        "debug",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newMigrateCommand(e))
	cmd.AddCommand(newStatusCommand(e))
	cmd.AddCommand(newGrainCommand(e))
	cmd.AddCommand(newWatchCommand(e))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

func (e *env) load() error {
	cfg, err := e.loader.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	debug.Init(cfg.Debug)
	if f := e.loader.ConfigFile(); f != "" {
		debug.Debug("configuration loaded", "file", f)
	}
	e.cfg = cfg
	return nil
}

// openPool connects to the configured database.
func (e *env) openPool() (*pool.Pool, error) {
	adaptor, err := dialects.Parse(e.cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(adaptor, e.cfg.Database.URL, e.cfg.Database.PoolConfig())
	if err != nil {
		return nil, err
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", adaptor.Name(), err)
	}
	return p, nil
}

// loadScore reads and validates the grain files of the score directory.
func (e *env) loadScore() (*score.Score, error) {
	s, err := loader.Load(config.AppFs, e.cfg.ScorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load score: %w", err)
	}
	return s, nil
}

// confirm asks the operator before an irreversible action unless yes is set.
func confirm(message string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
