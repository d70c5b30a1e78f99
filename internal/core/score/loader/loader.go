// Package loader reads grain declarations from YAML files and builds the
// validated score. Each file declares one grain; the file's bytes are the
// grain's declaration source and determine its fingerprint.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Source is one grain file.
type Source struct {
	Path string
	Data []byte
}

// Error locates a load failure in its source file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ErrNoGrains is returned when a score directory holds no grain files.
var ErrNoGrains = errors.New("no grain files found")

// IsGrainFile reports whether path has a grain file extension.
func IsGrainFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads every grain file directly under dir.
func Load(fs afero.Fs, dir string) (*score.Score, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read score directory: %w", err)
	}
	var sources []Source
	for _, e := range entries {
		if e.IsDir() || !IsGrainFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		sources = append(sources, Source{Path: path, Data: data})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoGrains)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return Build(sources...)
}

type document struct {
	src  Source
	decl grainDecl
	g    *score.Grain
}

// Build declares the grains of sources in three passes so foreign keys and
// views may reference grains declared in any file: objects first, then foreign
// keys, then views. The result is validated.
func Build(sources ...Source) (*score.Score, error) {
	docs := make([]*document, 0, len(sources))
	for _, src := range sources {
		decl, err := parse(src)
		if err != nil {
			return nil, &Error{Path: src.Path, Err: err}
		}
		docs = append(docs, &document{src: src, decl: decl})
	}

	s := score.New()
	for _, d := range docs {
		g, err := s.AddGrain(d.decl.Grain, d.decl.Version, score.FingerprintOf(d.src.Data))
		if err != nil {
			return nil, &Error{Path: d.src.Path, Err: err}
		}
		g.NativeSQL = d.decl.NativeSQL
		d.g = g
		if err := d.declareObjects(); err != nil {
			return nil, &Error{Path: d.src.Path, Err: err}
		}
	}
	for _, d := range docs {
		if err := d.declareForeignKeys(s); err != nil {
			return nil, &Error{Path: d.src.Path, Err: err}
		}
	}
	for _, d := range docs {
		if err := d.declareViews(s); err != nil {
			return nil, &Error{Path: d.src.Path, Err: err}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parse(src Source) (grainDecl, error) {
	var decl grainDecl
	dec := yaml.NewDecoder(bytes.NewReader(src.Data))
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		return decl, err
	}
	if decl.Grain == "" {
		base := filepath.Base(src.Path)
		decl.Grain = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return decl, nil
}

func (d *document) declareObjects() error {
	g := d.g
	for _, sd := range d.decl.Sequences {
		opts := score.SequenceOptions{Start: sd.Start, Increment: sd.Increment, Min: sd.Min, Max: sd.Max, Cycle: sd.Cycle}
		if _, err := g.AddSequence(sd.Name, opts); err != nil {
			return err
		}
	}
	for _, td := range d.decl.Tables {
		t, err := g.AddTable(td.Name)
		if err != nil {
			return err
		}
		if td.VersionCheck != nil {
			t.VersionCheck = *td.VersionCheck
		}
		for _, cd := range td.Columns {
			col, err := cd.column()
			if err != nil {
				return fmt.Errorf("%s.%s: %w", td.Name, cd.Name, err)
			}
			if err := g.AddColumn(td.Name, col); err != nil {
				return err
			}
		}
		if len(td.PrimaryKey) > 0 {
			if err := g.SetPrimaryKey(td.Name, td.PrimaryKey...); err != nil {
				return err
			}
		}
		if td.PrimaryKeyName != "" {
			if err := g.SetPrimaryKeyName(td.Name, td.PrimaryKeyName); err != nil {
				return err
			}
		}
	}
	if err := g.Finalize(); err != nil {
		return err
	}
	for _, td := range d.decl.Tables {
		for _, id := range td.Indices {
			if err := g.AddIndex(td.Name, id.Name, id.Columns...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *document) declareForeignKeys(s *score.Score) error {
	for _, td := range d.decl.Tables {
		for _, fd := range td.ForeignKeys {
			fk, err := fd.foreignKey()
			if err != nil {
				return fmt.Errorf("%s: %w", td.Name, err)
			}
			if err := d.g.AddForeignKey(s, td.Name, fk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *document) declareViews(s *score.Score) error {
	for _, vd := range d.decl.Views {
		v, err := vd.view()
		if err != nil {
			return fmt.Errorf("view %s: %w", vd.Name, err)
		}
		if _, err := d.g.AddView(s, v); err != nil {
			return err
		}
	}
	return nil
}
