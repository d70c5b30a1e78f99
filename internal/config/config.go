// Package config resolves scoremigrate settings from config files, the
// environment and dotenv files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
)

var AppFs = afero.NewOsFs()

// FileName is the config file name searched for, without extension.
const FileName = ".scoremigrate"

// EnvPrefix prefixes the environment variables overriding config keys,
// e.g. SCOREMIGRATE_DATABASE_URL.
const EnvPrefix = "SCOREMIGRATE"

// Config holds the application configuration
type Config struct {
	Database  Database
	ScorePath string
	Migration Migration
	Debug     bool
	// MetricsTextfile is where run metrics are written for the node exporter; empty disables it.
	MetricsTextfile string
}

// Database holds the connection settings.
type Database struct {
	Dialect             string
	URL                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	HealthCheckInterval time.Duration
}

// Migration holds the default run options.
type Migration struct {
	Skip  bool
	Force bool
}

// Loader reads configuration through its own viper instance.
type Loader struct {
	fs   afero.Fs
	v    *viper.Viper
	dirs []string
}

// NewLoader returns a loader searching dirs for the config file. Without dirs
// it searches the working directory, $HOME and $HOME/.config/scoremigrate.
// Dotenv files are read from the first directory.
func NewLoader(fs afero.Fs, dirs ...string) (*Loader, error) {
	if len(dirs) == 0 {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		dirs = []string{".", home, filepath.Join(home, ".config", "scoremigrate")}
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, d := range dirs {
		v.AddConfigPath(d)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	def := pool.DefaultConfig()
	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.max_open_conns", def.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", def.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", def.ConnMaxLifetime)
	v.SetDefault("database.health_check_interval", def.HealthCheckInterval)
	v.SetDefault("score.path", "score")
	v.SetDefault("migration.skip", false)
	v.SetDefault("migration.force", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("metrics.textfile", "")

	return &Loader{fs: fs, v: v, dirs: dirs}, nil
}

// Viper exposes the underlying instance so command flags can be bound to keys.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads the dotenv files and the config file and returns the merged configuration.
// A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	// .env.local takes precedence over .env; neither overrides the real environment.
	if err := l.loadEnv(".env", false); err != nil {
		return nil, err
	}
	if err := l.loadEnv(".env.local", true); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Config{
		Database: Database{
			Dialect:             l.v.GetString("database.dialect"),
			URL:                 l.v.GetString("database.url"),
			MaxOpenConns:        l.v.GetInt("database.max_open_conns"),
			MaxIdleConns:        l.v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:     l.v.GetDuration("database.conn_max_lifetime"),
			HealthCheckInterval: l.v.GetDuration("database.health_check_interval"),
		},
		ScorePath: l.v.GetString("score.path"),
		Migration: Migration{
			Skip:  l.v.GetBool("migration.skip"),
			Force: l.v.GetBool("migration.force"),
		},
		Debug:           l.v.GetBool("log.debug"),
		MetricsTextfile: l.v.GetString("metrics.textfile"),
	}, nil
}

// ConfigFile is the file the last Load read, or "" when none was found.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// loadEnv exports the variables of a dotenv file. Variables already set in the
// process environment are kept unless they were set by an earlier dotenv file
// and override is true.
func (l *Loader) loadEnv(name string, override bool) error {
	path := filepath.Join(l.dirs[0], name)
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, val := range vars {
		if _, set := exported[k]; !(override && set) && os.Getenv(k) != "" {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
		exported[k] = struct{}{}
	}
	return nil
}

// exported records the variables set from dotenv files.
var exported = map[string]struct{}{}

// Load reads the configuration from the default locations on AppFs.
func Load() (*Config, error) {
	l, err := NewLoader(AppFs)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// Validate reports the first setting a run cannot start with.
func (c *Config) Validate() error {
	if _, err := dialect.ParseName(c.Database.Dialect); err != nil {
		return fmt.Errorf("database.dialect: %w", err)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url: not set (use SCOREMIGRATE_DATABASE_URL or DATABASE_URL)")
	}
	if strings.TrimSpace(c.ScorePath) == "" {
		return errors.New("score.path: not set")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("database: connection limits must not be negative")
	}
	return nil
}

// PoolConfig converts the connection settings for the pool; zero values take the pool defaults.
func (d Database) PoolConfig() pool.Config {
	cfg := pool.DefaultConfig()
	if d.MaxOpenConns > 0 {
		cfg.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		cfg.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		cfg.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.HealthCheckInterval > 0 {
		cfg.HealthCheckInterval = d.HealthCheckInterval
	}
	return cfg
}
