// Package syscat reads and writes the bookkeeping rows of the system grain:
// one row per grain in scoresys.grains and one directory row per declared
// object in scoresys.tables. All access goes through the cursor package.
package syscat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/cursor"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// ErrUnknownGrain is returned by operator overrides naming a grain that has no row.
var ErrUnknownGrain = errors.New("grain not registered")

// GrainRow mirrors a row of scoresys.grains.
type GrainRow struct {
	Name         string
	Version      string
	Length       int64
	Checksum     string
	State        GrainState
	LastModified time.Time
	Message      string
}

// Matches reports whether the row records fp.
func (r GrainRow) Matches(fp score.Fingerprint) bool {
	return r.Length == fp.Length && r.Checksum == fp.ChecksumHex()
}

// DirectoryEntry mirrors a row of scoresys.tables.
type DirectoryEntry struct {
	Grain    string
	Name     string
	Kind     ObjectKind
	Orphaned bool
}

// Store is bound to one connection for the duration of a grain's processing.
type Store struct {
	conn    *dialect.Conn
	adaptor dialect.Adaptor
	sys     *score.Grain
}

// New binds the store to conn. s supplies the system grain declaration.
func New(conn *dialect.Conn, adaptor dialect.Adaptor, s *score.Score) *Store {
	return &Store{conn: conn, adaptor: adaptor, sys: s.SystemGrain()}
}

func (s *Store) cursor(table string) *cursor.Cursor {
	t, ok := s.sys.Table(table)
	if !ok {
		panic("system table " + table + " not declared")
	}
	return cursor.New(s.conn, s.adaptor, t)
}

// Bootstrapped reports whether the grain registry table exists yet.
func (s *Store) Bootstrapped(ctx context.Context) (bool, error) {
	return s.adaptor.TableExists(ctx, s.conn, score.SystemGrainName, score.GrainsTable)
}

func readGrain(c *cursor.Cursor) GrainRow {
	row := GrainRow{
		Name:     c.String("id"),
		Version:  c.String("version"),
		Length:   c.Int("length"),
		Checksum: c.String("checksum"),
		State:    GrainState(c.Int("state")),
		Message:  c.String("message"),
	}
	if ts, ok := c.Get("lastmodified").(time.Time); ok {
		row.LastModified = ts
	}
	return row
}

// Grain returns the row of the named grain.
func (s *Store) Grain(ctx context.Context, name string) (GrainRow, bool, error) {
	c := s.cursor(score.GrainsTable)
	found, err := c.TryGet(ctx, name)
	if err != nil || !found {
		return GrainRow{}, false, err
	}
	return readGrain(c), true, nil
}

// Grains lists every grain row ordered by name.
func (s *Store) Grains(ctx context.Context) ([]GrainRow, error) {
	c := s.cursor(score.GrainsTable)
	var out []GrainRow
	for {
		ok, err := c.NextInSet(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, readGrain(c))
	}
}

// Register inserts a row for a grain seen for the first time. The row starts in
// RECOVER with an empty fingerprint so the grain is processed on this run.
func (s *Store) Register(ctx context.Context, g *score.Grain) (GrainRow, error) {
	row := GrainRow{Name: g.Name, Version: g.Version, Checksum: score.Fingerprint{}.ChecksumHex(), State: Recover}
	c := s.cursor(score.GrainsTable)
	for col, v := range map[string]any{
		"id": row.Name, "version": row.Version, "length": row.Length, "checksum": row.Checksum,
		"state": int64(row.State), "lastmodified": time.Now().UTC(), "message": "",
	} {
		if err := c.Set(col, v); err != nil {
			return GrainRow{}, err
		}
	}
	if _, err := c.TryInsert(ctx); err != nil {
		return GrainRow{}, fmt.Errorf("register grain %s: %w", g.Name, err)
	}
	row, _, err := s.Grain(ctx, g.Name)
	return row, err
}

// PutGrain overwrites version, fingerprint, state and message of an existing row.
func (s *Store) PutGrain(ctx context.Context, row GrainRow) error {
	c := s.cursor(score.GrainsTable)
	for col, v := range map[string]any{
		"id": row.Name, "version": row.Version, "length": row.Length, "checksum": row.Checksum,
		"state": int64(row.State), "lastmodified": time.Now().UTC(), "message": row.Message,
	} {
		if err := c.Set(col, v); err != nil {
			return err
		}
	}
	if err := c.Update(ctx); err != nil {
		return fmt.Errorf("update grain %s: %w", row.Name, err)
	}
	return nil
}

// SetState changes only the state and message of a grain row.
func (s *Store) SetState(ctx context.Context, name string, state GrainState, message string) error {
	c := s.cursor(score.GrainsTable)
	found, err := c.TryGet(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownGrain, name)
	}
	c.Clear()
	for col, v := range map[string]any{
		"id": name, "state": int64(state), "lastmodified": time.Now().UTC(), "message": message,
	} {
		if err := c.Set(col, v); err != nil {
			return err
		}
	}
	return c.Update(ctx)
}

// SetGrainState is the operator override behind lock, unlock and recover.
// Unlocking returns the grain to READY.
func (s *Store) SetGrainState(ctx context.Context, name string, state GrainState) error {
	switch state {
	case Locked, Ready, Recover:
	default:
		return fmt.Errorf("grain state %s cannot be set by an operator", state)
	}
	return s.SetState(ctx, name, state, "")
}

// Directory lists the registered objects of a grain.
func (s *Store) Directory(ctx context.Context, grain string) ([]DirectoryEntry, error) {
	c := s.cursor(score.DirectoryTable)
	if err := c.SetRange("grainid", grain); err != nil {
		return nil, err
	}
	var out []DirectoryEntry
	for {
		ok, err := c.NextInSet(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, DirectoryEntry{
			Grain:    c.String("grainid"),
			Name:     c.String("tablename"),
			Kind:     ObjectKind(c.String("tabletype")),
			Orphaned: c.Bool("orphaned"),
		})
	}
}

// PutObject upserts a directory row with the given orphaned flag.
func (s *Store) PutObject(ctx context.Context, e DirectoryEntry) error {
	c := s.cursor(score.DirectoryTable)
	for col, v := range map[string]any{
		"grainid": e.Grain, "tablename": e.Name, "tabletype": string(e.Kind), "orphaned": e.Orphaned,
	} {
		if err := c.Set(col, v); err != nil {
			return err
		}
	}
	inserted, err := c.TryInsert(ctx)
	if err != nil || inserted {
		return err
	}
	return c.Update(ctx)
}

// Seed inserts the default roles and their permissions on every system table.
// Existing rows are left alone.
func (s *Store) Seed(ctx context.Context) error {
	roles := s.cursor(score.RolesTable)
	for id, desc := range map[string]string{"editor": "full access", "reader": "read only"} {
		roles.Clear()
		if err := roles.Set("id", id); err != nil {
			return err
		}
		if err := roles.Set("description", desc); err != nil {
			return err
		}
		if _, err := roles.TryInsert(ctx); err != nil {
			return fmt.Errorf("seed role %s: %w", id, err)
		}
	}
	perms := s.cursor(score.PermissionsTable)
	for _, t := range s.sys.Tables() {
		for _, role := range []string{"editor", "reader"} {
			write := role == "editor"
			perms.Clear()
			for col, v := range map[string]any{
				"roleid": role, "grainid": score.SystemGrainName, "tablename": t.Name,
				"r": true, "i": write, "m": write, "d": write,
			} {
				if err := perms.Set(col, v); err != nil {
					return err
				}
			}
			if _, err := perms.TryInsert(ctx); err != nil {
				return fmt.Errorf("seed permission %s on %s: %w", role, t.Name, err)
			}
		}
	}
	return nil
}
