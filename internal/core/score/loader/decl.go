package loader

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

type grainDecl struct {
	Grain     string         `yaml:"grain"`
	Version   string         `yaml:"version"`
	NativeSQL []string       `yaml:"native_sql"`
	Sequences []sequenceDecl `yaml:"sequences"`
	Tables    []tableDecl    `yaml:"tables"`
	Views     []viewDecl     `yaml:"views"`
}

type sequenceDecl struct {
	Name      string `yaml:"name"`
	Start     *int64 `yaml:"start"`
	Increment *int64 `yaml:"increment"`
	Min       *int64 `yaml:"min"`
	Max       *int64 `yaml:"max"`
	Cycle     bool   `yaml:"cycle"`
}

type tableDecl struct {
	Name           string        `yaml:"name"`
	VersionCheck   *bool         `yaml:"version_check"`
	PrimaryKey     []string      `yaml:"primary_key"`
	PrimaryKeyName string        `yaml:"primary_key_name"`
	Columns        []columnDecl  `yaml:"columns"`
	Indices        []indexDecl   `yaml:"indices"`
	ForeignKeys    []foreignDecl `yaml:"foreign_keys"`
}

type columnDecl struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Length   int    `yaml:"length"`
	NotNull  bool   `yaml:"not_null"`
	Default  string `yaml:"default"`
	Identity bool   `yaml:"identity"`
	Sequence string `yaml:"sequence"`
	TimeZone bool   `yaml:"time_zone"`
}

type indexDecl struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

type foreignDecl struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	// References is "table" or "grain.table"; the target's primary key is referenced.
	References string `yaml:"references"`
	OnDelete   string `yaml:"on_delete"`
	OnUpdate   string `yaml:"on_update"`
}

type paramDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type viewDecl struct {
	Name   string      `yaml:"name"`
	Kind   string      `yaml:"kind"`
	Params []paramDecl `yaml:"params"`
	Select string      `yaml:"select"`
}

// kindOf maps a declared type name to a column kind.
func kindOf(name string) (score.ColumnKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "integer":
		return score.KindInteger, nil
	case "string", "varchar", "text":
		return score.KindString, nil
	case "float", "real", "double":
		return score.KindFloating, nil
	case "bool", "boolean", "bit":
		return score.KindBoolean, nil
	case "datetime", "timestamp":
		return score.KindDateTime, nil
	case "blob", "binary":
		return score.KindBinary, nil
	}
	return 0, fmt.Errorf("unknown column type %q", name)
}

func (cd columnDecl) column() (score.Column, error) {
	kind, err := kindOf(cd.Type)
	if err != nil {
		return score.Column{}, err
	}
	var col score.Column
	switch kind {
	case score.KindInteger:
		col = score.IntegerColumn(cd.Name)
	case score.KindString:
		if strings.EqualFold(cd.Type, "text") || cd.Length == 0 {
			col = score.TextColumn(cd.Name)
		} else {
			col = score.StringColumn(cd.Name, cd.Length)
		}
	case score.KindFloating:
		col = score.FloatingColumn(cd.Name)
	case score.KindBoolean:
		col = score.BooleanColumn(cd.Name)
	case score.KindDateTime:
		col = score.DateTimeColumn(cd.Name, cd.TimeZone)
	case score.KindBinary:
		col = score.BinaryColumn(cd.Name)
	}
	if cd.Length != 0 && kind != score.KindString {
		return score.Column{}, fmt.Errorf("length applies to string columns only")
	}
	if cd.NotNull {
		col = col.NotNull()
	}
	if cd.Default != "" {
		col = col.WithDefault(cd.Default)
	}
	if cd.Identity || cd.Sequence != "" {
		if kind != score.KindInteger {
			return score.Column{}, fmt.Errorf("identity and sequence apply to integer columns only")
		}
		if cd.Identity {
			col = col.AsIdentity()
		}
		if cd.Sequence != "" {
			col = col.WithSequence(cd.Sequence)
		}
	}
	return col, nil
}

func (fd foreignDecl) foreignKey() (score.ForeignKey, error) {
	fk := score.ForeignKey{Name: fd.Name, Columns: fd.Columns}
	switch parts := strings.Split(fd.References, "."); len(parts) {
	case 1:
		fk.RefTable = parts[0]
	case 2:
		fk.RefGrain, fk.RefTable = parts[0], parts[1]
	default:
		return fk, fmt.Errorf("malformed reference %q", fd.References)
	}
	var err error
	if fk.OnDelete, err = score.ParseFKRule(fd.OnDelete); err != nil {
		return fk, err
	}
	if fk.OnUpdate, err = score.ParseFKRule(fd.OnUpdate); err != nil {
		return fk, err
	}
	return fk, nil
}

func viewKind(s string) (score.ViewKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "view", "plain":
		return score.PlainView, nil
	case "materialized":
		return score.MaterializedView, nil
	case "function", "parameterized":
		return score.ParameterizedView, nil
	}
	return 0, fmt.Errorf("unknown view kind %q", s)
}

func (vd viewDecl) view() (score.View, error) {
	kind, err := viewKind(vd.Kind)
	if err != nil {
		return score.View{}, err
	}
	sel, err := ParseSelect(vd.Select)
	if err != nil {
		return score.View{}, err
	}
	v := score.View{Name: vd.Name, Kind: kind, Select: sel}
	for _, pd := range vd.Params {
		k, err := kindOf(pd.Type)
		if err != nil {
			return score.View{}, fmt.Errorf("parameter %s: %w", pd.Name, err)
		}
		v.Params = append(v.Params, score.Param{Name: pd.Name, Kind: k})
	}
	return v, nil
}
