// Package migration brings a live database in line with the declared score, one
// grain at a time, and records each grain's outcome in the system grain.
//
// Grains are processed sequentially on one pooled connection each. A grain is
// skipped when its recorded fingerprint matches the declaration, unless the run is
// forced or the grain was flagged RECOVER; LOCKED grains are never touched. A
// grain left UPGRADING by an interrupted run is always retried. A failure inside
// a grain is persisted to its row and does not stop the run.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
	"github.com/satishbabariya/scoremigrate/internal/debug"
)

// Options are the caller-resolved run flags.
type Options struct {
	// Force reprocesses grains whose fingerprint already matches.
	Force bool
	// Skip leaves the database untouched.
	Skip bool
}

// Recorder receives run metrics.
type Recorder interface {
	Statement(d dialect.Name, op dialect.Op)
	Grain(outcome string, elapsed time.Duration)
}

// Engine migrates the grains of one score against one database.
type Engine struct {
	score   *score.Score
	pool    *pool.Pool
	adaptor dialect.Adaptor
	log     *slog.Logger
	metrics Recorder
	runID   string

	// issued counts DDL statements of the grain being processed.
	issued int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New returns an engine for s that takes its connections from p.
func New(s *score.Score, p *pool.Pool, opts ...Option) *Engine {
	e := &Engine{
		score:   s,
		pool:    p,
		adaptor: p.Adaptor(),
		log:     debug.Logger(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("run", e.runID, "dialect", string(e.adaptor.Name()))
	return e
}

// RunID identifies the engine's runs in logs and reports.
func (e *Engine) RunID() string { return e.runID }

func (e *Engine) observe(d dialect.Name, op dialect.Op, stmt string) {
	e.issued++
	e.log.Debug("ddl", "op", string(op), "stmt", stmt)
	if e.metrics != nil {
		e.metrics.Statement(d, op)
	}
}

// UpdateSysGrain migrates the system grain only. It must succeed before any
// other grain can be migrated; every failure is returned.
func (e *Engine) UpdateSysGrain(ctx context.Context) error {
	res, err := e.process(ctx, e.score.SystemGrain(), false)
	if err != nil {
		return err
	}
	if res.Outcome == Failed {
		return res.err
	}
	return nil
}

// UpdateDb migrates every eligible grain, the system grain first. The returned
// error is set only for whole-run failures: an invalid score, a native-SQL
// configuration, a lost connection or a failed system grain. Other grain
// failures are in the report.
func (e *Engine) UpdateDb(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{RunID: e.runID, Dialect: e.adaptor.Name(), Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	if opts.Skip {
		e.log.Info("migration disabled, database left untouched")
		return report, nil
	}
	if err := e.score.Validate(); err != nil {
		return report, err
	}
	grains := e.score.Grains()
	if err := checkConfiguration(grains); err != nil {
		return report, err
	}
	for _, g := range grains {
		res, err := e.process(ctx, g, opts.Force)
		if err != nil {
			return report, err
		}
		report.add(res)
		if g.Name == score.SystemGrainName && res.Outcome == Failed {
			return report, res.err
		}
	}
	e.log.Info("migration finished",
		"migrated", report.Count(Migrated), "skipped", report.Count(Skipped),
		"locked", report.Count(Locked), "failed", report.Count(Failed),
		"statements", report.Statements())
	return report, nil
}

// checkConfiguration rejects dialect-native SQL blocks anywhere in the score.
func checkConfiguration(grains []*score.Grain) error {
	for _, g := range grains {
		if len(g.NativeSQL) > 0 {
			return &ConfigurationError{
				Grain: g.Name,
				Msg:   fmt.Sprintf("%d native SQL block(s) declared; native SQL is not supported", len(g.NativeSQL)),
			}
		}
	}
	return nil
}

// process runs one grain on its own connection. The returned error is whole-run
// fatal; grain failures are reported through the result.
func (e *Engine) process(ctx context.Context, g *score.Grain, force bool) (res GrainResult, err error) {
	start := time.Now()
	log := e.log.With("grain", g.Name)
	res = GrainResult{Grain: g.Name, Version: g.Version}

	conn, err := e.pool.Acquire(ctx, e.observe)
	if err != nil {
		return res, &ConnectionError{Err: err}
	}
	defer e.pool.Release(conn)

	e.issued = 0
	defer func() {
		res.Statements = e.issued
		res.Elapsed = time.Since(start)
		if err == nil && e.metrics != nil {
			e.metrics.Grain(string(res.Outcome), res.Elapsed)
		}
	}()

	store := syscat.New(conn, e.adaptor, e.score)
	bootstrapped := true
	if g.Name == score.SystemGrainName {
		if bootstrapped, err = store.Bootstrapped(ctx); err != nil {
			return res, &ConnectionError{Err: err}
		}
	}

	var row syscat.GrainRow
	if bootstrapped {
		found := false
		if row, found, err = store.Grain(ctx, g.Name); err == nil && !found {
			row, err = store.Register(ctx, g)
		}
		if err != nil {
			e.fail(ctx, store, g, nil, err, &res, log)
			return res, nil
		}
		switch {
		case row.State == syscat.Locked:
			res.Outcome, res.State = Locked, syscat.Locked
			log.Info("grain locked, not touched")
			return res, nil
		case !force && row.State != syscat.Recover && row.State != syscat.Upgrading && row.Matches(g.Fingerprint):
			res.Outcome, res.State = Skipped, row.State
			log.Debug("grain unchanged", "state", row.State.String())
			return res, nil
		}
		if err := checkVersion(g, row); err != nil {
			e.fail(ctx, store, g, &row, err, &res, log)
			return res, nil
		}
		if err := store.SetState(ctx, g.Name, syscat.Upgrading, ""); err != nil {
			e.fail(ctx, store, g, &row, err, &res, log)
			return res, nil
		}
	}

	log.Info("migrating grain", "version", g.Version, "force", force)
	if err := e.migrate(ctx, conn, store, g, !bootstrapped); err != nil {
		if bootstrapped {
			e.fail(ctx, store, g, &row, err, &res, log)
		} else {
			e.fail(ctx, nil, g, nil, err, &res, log)
		}
		return res, nil
	}
	done := syscat.GrainRow{
		Name:     g.Name,
		Version:  g.Version,
		Length:   g.Fingerprint.Length,
		Checksum: g.Fingerprint.ChecksumHex(),
		State:    syscat.Ready,
	}
	if err := store.PutGrain(ctx, done); err != nil {
		e.fail(ctx, store, g, &row, err, &res, log)
		return res, nil
	}
	if err := e.pool.Commit(ctx, conn); err != nil {
		return res, &ConnectionError{Err: err}
	}
	res.Outcome, res.State = Migrated, syscat.Ready
	log.Info("grain migrated", "statements", e.issued)
	return res, nil
}

// checkVersion refuses downgrades and versions whose tags cannot be ordered.
func checkVersion(g *score.Grain, row syscat.GrainRow) error {
	order, err := score.CompareVersions(g.Version, row.Version)
	if err != nil {
		return fmt.Errorf("version %q against installed %q: %w", g.Version, row.Version, err)
	}
	switch order {
	case score.VersionLower:
		return fmt.Errorf("version %s, installed %s: %w", g.Version, row.Version, ErrDowngrade)
	case score.VersionInconsistent:
		return fmt.Errorf("version %q cannot be ordered against installed %q", g.Version, row.Version)
	}
	return nil
}

// fail records a grain failure. The attempted fingerprint is persisted with the
// ERROR state so the grain is not retried until its source changes; the
// installed version is kept. A nil store means the registry is not available yet.
func (e *Engine) fail(ctx context.Context, store *syscat.Store, g *score.Grain, recorded *syscat.GrainRow, cause error, res *GrainResult, log *slog.Logger) {
	gerr := &GrainError{Grain: g.Name, Err: cause}
	res.Outcome, res.State, res.Err, res.err = Failed, syscat.Error, cause.Error(), gerr
	log.Error("grain failed", "error", cause, "introspection", gerr.Introspection())
	if store == nil {
		return
	}
	row := syscat.GrainRow{
		Name:     g.Name,
		Version:  g.Version,
		Length:   g.Fingerprint.Length,
		Checksum: g.Fingerprint.ChecksumHex(),
		State:    syscat.Error,
		Message:  cause.Error(),
	}
	if recorded != nil {
		row.Version = recorded.Version
	}
	if err := store.PutGrain(ctx, row); err != nil {
		log.Error("cannot record grain failure", "error", err)
	}
}

// migrate applies the grain's declaration and refreshes its directory rows.
// When bootstrapping, the system grain registers itself once its tables exist.
func (e *Engine) migrate(ctx context.Context, conn *dialect.Conn, store *syscat.Store, g *score.Grain, bootstrapping bool) error {
	r, err := newReconciler(e.adaptor, conn, e.score, g)
	if err != nil {
		return err
	}
	if err := r.run(ctx); err != nil {
		return err
	}
	if err := e.recoverOwners(ctx, store, r.unrestored); err != nil {
		return err
	}
	if bootstrapping {
		if _, err := store.Register(ctx, g); err != nil {
			return err
		}
	}
	if g.Name == score.SystemGrainName {
		if err := store.Seed(ctx); err != nil {
			return err
		}
	}
	return updateDirectory(ctx, store, g)
}

// recoverOwners flags the grains owning keys that could not be recreated after a
// referenced primary key changed, so their next processing recreates them.
// Locked grains and grains missing from the registry are only logged.
func (e *Engine) recoverOwners(ctx context.Context, store *syscat.Store, keys []unrestoredKey) error {
	for _, k := range keys {
		log := e.log.With("grain", k.info.Grain, "foreign_key", k.info.Name)
		log.Warn("foreign key not recreated", "table", k.info.Table,
			"references", k.info.RefGrain+"."+k.info.RefTable, "error", k.err)
		row, found, err := store.Grain(ctx, k.info.Grain)
		if err != nil {
			return err
		}
		if !found || row.State == syscat.Locked {
			continue
		}
		msg := fmt.Sprintf("foreign key %s dropped by a key change of %s.%s: %v", k.info.Name, k.info.RefGrain, k.info.RefTable, k.err)
		if err := store.SetState(ctx, k.info.Grain, syscat.Recover, msg); err != nil {
			return err
		}
	}
	return nil
}

// updateDirectory registers every declared object and flags the rest of the
// grain's registered objects as orphaned. Nothing is dropped.
func updateDirectory(ctx context.Context, store *syscat.Store, g *score.Grain) error {
	declared := make(map[string]bool)
	put := func(name string, kind syscat.ObjectKind) error {
		declared[name] = true
		return store.PutObject(ctx, syscat.DirectoryEntry{Grain: g.Name, Name: name, Kind: kind})
	}
	for _, t := range g.Tables() {
		if err := put(t.Name, syscat.KindTable); err != nil {
			return err
		}
	}
	for _, kind := range []score.ViewKind{score.PlainView, score.MaterializedView, score.ParameterizedView} {
		for _, v := range g.Views(kind) {
			if err := put(v.Name, syscat.KindOfView(kind)); err != nil {
				return err
			}
		}
	}
	entries, err := store.Directory(ctx, g.Name)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if declared[entry.Name] || entry.Orphaned {
			continue
		}
		entry.Orphaned = true
		if err := store.PutObject(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
