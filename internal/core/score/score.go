// Package score holds the in-memory schema metamodel: grains and the tables,
// views and sequences they own. Every mutation validates before it is applied,
// so a Score never exposes an inconsistent graph.
package score

import (
	"sort"
)

// Score is the complete declared schema, an arena of grains addressed by name.
type Score struct {
	grains []*Grain
	index  map[string]*Grain
}

// New returns a score that already contains the system grain.
func New() *Score {
	s := &Score{index: make(map[string]*Grain)}
	declareSystemGrain(s)
	return s
}

// AddGrain declares a user grain.
func (s *Score) AddGrain(name, version string, fp Fingerprint) (*Grain, error) {
	if name == SystemGrainName {
		return nil, invalid(name, "grain name is reserved")
	}
	return s.addGrain(name, version, fp)
}

func (s *Score) addGrain(name, version string, fp Fingerprint) (*Grain, error) {
	if err := checkIdentifier(name, name); err != nil {
		return nil, err
	}
	if _, ok := s.index[name]; ok {
		return nil, invalid(name, "duplicate grain")
	}
	g := newGrain(s, name, version, fp)
	s.grains = append(s.grains, g)
	s.index[name] = g
	return g, nil
}

// Grain looks up a grain by name.
func (s *Score) Grain(name string) (*Grain, bool) {
	g, ok := s.index[name]
	return g, ok
}

// SystemGrain returns the reserved bookkeeping grain.
func (s *Score) SystemGrain() *Grain {
	return s.index[SystemGrainName]
}

// Table resolves grain.table.
func (s *Score) Table(grain, table string) (*Table, bool) {
	g, ok := s.index[grain]
	if !ok {
		return nil, false
	}
	return g.Table(table)
}

// Grains returns the grains in migration order: the system grain first, then
// every grain after the grains its foreign keys and views depend on.
// Independent grains are ordered by name. A score with cyclic grain
// dependencies fails Validate; its grains come back in name order.
func (s *Score) Grains() []*Grain {
	order, err := s.order()
	if err != nil {
		return s.byName()
	}
	return order
}

func (s *Score) byName() []*Grain {
	out := make([]*Grain, 0, len(s.grains))
	for _, g := range s.grains {
		if g.Name != SystemGrainName {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return append([]*Grain{s.index[SystemGrainName]}, out...)
}

// referencing lists the foreign keys of every grain that reference grain.table.
func (s *Score) referencing(grain, table string) []*ForeignKey {
	var out []*ForeignKey
	for _, g := range s.grains {
		for _, t := range g.tables {
			for _, fk := range t.fks {
				if fk.RefGrain == grain && fk.RefTable == table {
					out = append(out, fk)
				}
			}
		}
	}
	return out
}

func (s *Score) order() ([]*Grain, error) {
	names := make([]string, 0, len(s.grains))
	for _, g := range s.grains {
		if g.Name != SystemGrainName {
			names = append(names, g.Name)
		}
	}
	sort.Strings(names)

	out := []*Grain{s.index[SystemGrainName]}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return invalid(name, "cyclic grain dependency %v", append(path, name))
		}
		state[name] = visiting
		g, ok := s.index[name]
		if !ok {
			return invalid(name, "unknown grain")
		}
		for _, dep := range g.dependencies() {
			if dep == SystemGrainName {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, g)
		return nil
	}
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Validate checks score-wide invariants: finalized primary keys, foreign keys
// matching the current key of their target and an acyclic grain order.
func (s *Score) Validate() error {
	for _, g := range s.grains {
		for _, t := range g.tables {
			if !t.pkFinalized {
				return invalid(t.object(), "primary key not finalized")
			}
		}
	}
	for _, g := range s.grains {
		for _, t := range g.tables {
			for _, fk := range t.fks {
				ref, ok := s.Table(fk.RefGrain, fk.RefTable)
				if !ok {
					return invalid(t.object(fk.Name), "referenced table %s does not exist", qualify(fk.RefGrain, fk.RefTable))
				}
				if !equalStrings(fk.RefColumns, ref.pk) {
					return invalid(t.object(fk.Name), "foreign key references %v, primary key of %s is %v",
						fk.RefColumns, qualify(fk.RefGrain, fk.RefTable), ref.pk)
				}
			}
		}
	}
	_, err := s.order()
	return err
}
