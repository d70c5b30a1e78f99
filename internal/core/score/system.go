package score

import (
	"fmt"
	"strings"
)

// SystemGrainName is the reserved grain that stores migration bookkeeping.
const SystemGrainName = "scoresys"

// SystemGrainVersion is bumped whenever the system tables change.
const SystemGrainVersion = "1.0"

// System table names.
const (
	GrainsTable      = "grains"
	DirectoryTable   = "tables"
	SequencesTable   = "sequences"
	RolesTable       = "roles"
	UserRolesTable   = "userroles"
	PermissionsTable = "permissions"
	LogSetupTable    = "logsetup"
)

func declareSystemGrain(s *Score) {
	g, err := s.addGrain(SystemGrainName, SystemGrainVersion, Fingerprint{})
	if err != nil {
		panic(err)
	}
	must := func(err error) {
		if err != nil {
			panic(fmt.Sprintf("system grain: %v", err))
		}
	}
	table := func(name string, pk []string, cols ...Column) {
		t, err := g.AddTable(name)
		must(err)
		t.VersionCheck = false
		for _, c := range cols {
			must(g.AddColumn(name, c))
		}
		must(g.SetPrimaryKey(name, pk...))
	}
	flag := func(name string) Column { return BooleanColumn(name).NotNull().WithDefault("false") }

	table(GrainsTable, []string{"id"},
		StringColumn("id", MaxIdentifierLength).NotNull(),
		StringColumn("version", 2000).NotNull(),
		IntegerColumn("length").NotNull(),
		StringColumn("checksum", 8).NotNull(),
		IntegerColumn("state").NotNull().WithDefault("3"),
		DateTimeColumn("lastmodified", false).NotNull().WithDefault(DefaultNow),
		TextColumn("message"),
	)
	table(DirectoryTable, []string{"grainid", "tablename"},
		StringColumn("grainid", MaxIdentifierLength).NotNull(),
		StringColumn("tablename", MaxIdentifierLength).NotNull(),
		StringColumn("tabletype", 1).NotNull().WithDefault("T"),
		flag("orphaned"),
	)
	table(SequencesTable, []string{"grainid", "seqname"},
		StringColumn("grainid", MaxIdentifierLength).NotNull(),
		StringColumn("seqname", MaxIdentifierLength).NotNull(),
		IntegerColumn("startvalue").NotNull(),
		IntegerColumn("incrementby").NotNull(),
		IntegerColumn("minvalue").NotNull(),
		IntegerColumn("maxvalue").NotNull(),
		flag("cycle"),
		IntegerColumn("lastvalue"),
	)
	table(RolesTable, []string{"id"},
		StringColumn("id", 16).NotNull(),
		StringColumn("description", 20),
	)
	table(UserRolesTable, []string{"userid", "roleid"},
		StringColumn("userid", 250).NotNull(),
		StringColumn("roleid", 16).NotNull(),
	)
	table(PermissionsTable, []string{"roleid", "grainid", "tablename"},
		StringColumn("roleid", 16).NotNull(),
		StringColumn("grainid", MaxIdentifierLength).NotNull(),
		StringColumn("tablename", MaxIdentifierLength).NotNull(),
		flag("r"), flag("i"), flag("m"), flag("d"),
	)
	table(LogSetupTable, []string{"grainid", "tablename"},
		StringColumn("grainid", MaxIdentifierLength).NotNull(),
		StringColumn("tablename", MaxIdentifierLength).NotNull(),
		flag("i"), flag("m"), flag("d"),
	)
	must(g.Finalize())

	fk := func(table string, cols []string, ref string) {
		must(g.AddForeignKey(s, table, ForeignKey{Columns: cols, RefTable: ref, OnDelete: FKCascade}))
	}
	fk(DirectoryTable, []string{"grainid"}, GrainsTable)
	fk(UserRolesTable, []string{"roleid"}, RolesTable)
	fk(PermissionsTable, []string{"roleid"}, RolesTable)

	g.Fingerprint = FingerprintOf([]byte(Describe(g)))
}

// Describe renders a grain's declarations canonically. Grains built in code use it as
// their declaration source for fingerprinting.
func Describe(g *Grain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "grain %s %s\n", g.Name, g.Version)
	for _, seq := range g.seqs {
		fmt.Fprintf(&b, "sequence %s %d %d %d %d %t\n", seq.Name, seq.Start, seq.Increment, seq.Min, seq.Max, seq.Cycle)
	}
	for _, t := range g.tables {
		fmt.Fprintf(&b, "table %s versioncheck=%t\n", t.Name, t.VersionCheck)
		for _, c := range t.columns {
			fmt.Fprintf(&b, "  column %s %s null=%t default=%q", c.Name, c.Kind, c.Nullable, c.EffectiveDefault())
			switch c.Kind {
			case KindString:
				fmt.Fprintf(&b, " length=%d unbounded=%t", c.Text.Length, c.Text.Unbounded)
			case KindInteger:
				fmt.Fprintf(&b, " identity=%t", c.Int.Identity)
			case KindDateTime:
				fmt.Fprintf(&b, " tz=%t", c.Time.WithTimeZone)
			}
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  pk %s (%s)\n", t.pkName, strings.Join(t.pk, ", "))
		for _, idx := range t.indices {
			fmt.Fprintf(&b, "  index %s (%s)\n", idx.Name, strings.Join(idx.Columns, ", "))
		}
		for _, fk := range t.fks {
			fmt.Fprintf(&b, "  fk %s (%s) -> %s.%s (%s) %s %s\n", fk.Name, strings.Join(fk.Columns, ", "),
				fk.RefGrain, fk.RefTable, strings.Join(fk.RefColumns, ", "), fk.OnDelete, fk.OnUpdate)
		}
	}
	for _, v := range g.views {
		fmt.Fprintf(&b, "view %d %s %s\n", v.Kind, v.Name, v.Select.Describe())
	}
	return b.String()
}
