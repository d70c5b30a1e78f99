package score

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnKind tags the payload carried by a Column.
type ColumnKind int

const (
	KindInteger ColumnKind = iota
	KindString
	KindFloating
	KindBoolean
	KindDateTime
	KindBinary
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindFloating:
		return "floating"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	case KindBinary:
		return "binary"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Numeric reports whether SUM and AVG are defined over the kind.
func (k ColumnKind) Numeric() bool {
	return k == KindInteger || k == KindFloating
}

// DefaultNow is the canonical "current timestamp" default of datetime columns.
const DefaultNow = "GETDATE()"

// IntegerSpec is the payload of integer columns.
type IntegerSpec struct {
	// Identity marks the column as auto-incremented by the database.
	Identity bool
	// Sequence names a grain sequence that supplies the default value.
	Sequence string
}

// StringSpec is the payload of string columns.
type StringSpec struct {
	Length    int
	Unbounded bool
}

// DateTimeSpec is the payload of datetime columns.
type DateTimeSpec struct {
	WithTimeZone bool
}

// Column is a tagged union over ColumnKind. Only the payload matching Kind may be set.
//
// Default holds a dialect-neutral literal in the column's own type system:
// integers and floats in decimal, booleans as true/false, datetimes as
// GETDATE() or YYYYMMDD, binaries as 0x-prefixed hex, strings verbatim.
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
	Default  string

	Int  *IntegerSpec
	Text *StringSpec
	Time *DateTimeSpec
}

// IntegerColumn returns a nullable integer column.
func IntegerColumn(name string) Column {
	return Column{Name: name, Kind: KindInteger, Nullable: true, Int: &IntegerSpec{}}
}

// StringColumn returns a nullable string column bounded to length characters.
func StringColumn(name string, length int) Column {
	return Column{Name: name, Kind: KindString, Nullable: true, Text: &StringSpec{Length: length}}
}

// TextColumn returns a nullable unbounded string column.
func TextColumn(name string) Column {
	return Column{Name: name, Kind: KindString, Nullable: true, Text: &StringSpec{Unbounded: true}}
}

func FloatingColumn(name string) Column {
	return Column{Name: name, Kind: KindFloating, Nullable: true}
}

func BooleanColumn(name string) Column {
	return Column{Name: name, Kind: KindBoolean, Nullable: true}
}

// DateTimeColumn returns a nullable datetime column.
func DateTimeColumn(name string, withTimeZone bool) Column {
	return Column{Name: name, Kind: KindDateTime, Nullable: true, Time: &DateTimeSpec{WithTimeZone: withTimeZone}}
}

func BinaryColumn(name string) Column {
	return Column{Name: name, Kind: KindBinary, Nullable: true}
}

// NotNull returns a copy of c that rejects NULL.
func (c Column) NotNull() Column {
	c.Nullable = false
	return c
}

// WithDefault returns a copy of c with the given canonical default.
func (c Column) WithDefault(def string) Column {
	c.Default = def
	return c
}

// AsIdentity returns a copy of an integer column marked as identity.
func (c Column) AsIdentity() Column {
	if c.Int != nil {
		spec := *c.Int
		spec.Identity = true
		c.Int = &spec
	}
	c.Nullable = false
	return c
}

// WithSequence returns a copy of an integer column whose default is drawn from seq.
func (c Column) WithSequence(seq string) Column {
	if c.Int != nil {
		spec := *c.Int
		spec.Sequence = seq
		c.Int = &spec
	}
	return c
}

// Identity reports whether the column is an identity column.
func (c *Column) Identity() bool {
	return c.Kind == KindInteger && c.Int != nil && c.Int.Identity
}

// SequenceName returns the linked sequence, if any.
func (c *Column) SequenceName() string {
	if c.Kind == KindInteger && c.Int != nil {
		return c.Int.Sequence
	}
	return ""
}

// EffectiveDefault is the canonical default including sequence links, e.g. NEXTVAL(order_seq).
func (c *Column) EffectiveDefault() string {
	if seq := c.SequenceName(); seq != "" {
		return "NEXTVAL(" + seq + ")"
	}
	return c.Default
}

func (c *Column) validate(object string) error {
	if err := checkIdentifier(object, c.Name); err != nil {
		return err
	}
	switch c.Kind {
	case KindInteger:
		if c.Int == nil {
			c.Int = &IntegerSpec{}
		}
		if c.Text != nil || c.Time != nil {
			return invalid(object, "integer column carries a foreign payload")
		}
		if c.Int.Identity && c.Int.Sequence != "" {
			return invalid(object, "column cannot be both identity and sequence-linked")
		}
		if (c.Int.Identity || c.Int.Sequence != "") && c.Default != "" {
			return invalid(object, "generated column cannot declare a default")
		}
		if c.Int.Identity && c.Nullable {
			return invalid(object, "identity column must be NOT NULL")
		}
	case KindString:
		if c.Text == nil || c.Int != nil || c.Time != nil {
			return invalid(object, "string column requires exactly the string payload")
		}
		if !c.Text.Unbounded && c.Text.Length <= 0 {
			return invalid(object, "string length must be positive, got %d", c.Text.Length)
		}
	case KindDateTime:
		if c.Time == nil {
			c.Time = &DateTimeSpec{}
		}
		if c.Int != nil || c.Text != nil {
			return invalid(object, "datetime column carries a foreign payload")
		}
	case KindFloating, KindBoolean, KindBinary:
		if c.Int != nil || c.Text != nil || c.Time != nil {
			return invalid(object, "%s column cannot carry a payload", c.Kind)
		}
	default:
		return invalid(object, "unknown column kind %d", int(c.Kind))
	}
	if c.Default == "" {
		return nil
	}
	def, err := NormalizeDefault(c.Kind, c.Default)
	if err != nil {
		return invalid(object, "%v", err)
	}
	if c.Kind == KindString && !c.Text.Unbounded && len([]rune(def)) > c.Text.Length {
		return invalid(object, "default %q exceeds length %d", def, c.Text.Length)
	}
	c.Default = def
	return nil
}

var (
	integerLiteral = regexp.MustCompile(`^[+-]?[0-9]+$`)
	hexLiteral     = regexp.MustCompile(`^0[xX]([0-9a-fA-F]{2})*$`)
)

// NormalizeDefault validates a default literal for kind and returns its canonical spelling.
func NormalizeDefault(kind ColumnKind, raw string) (string, error) {
	switch kind {
	case KindInteger:
		v := strings.TrimSpace(raw)
		if !integerLiteral.MatchString(v) {
			return "", fmt.Errorf("invalid integer default %q", raw)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid integer default %q: %w", raw, err)
		}
		return strconv.FormatInt(n, 10), nil
	case KindFloating:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", fmt.Errorf("invalid floating default %q", raw)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1":
			return "true", nil
		case "false", "0":
			return "false", nil
		}
		return "", fmt.Errorf("invalid boolean default %q", raw)
	case KindDateTime:
		v := strings.TrimSpace(raw)
		if strings.EqualFold(v, DefaultNow) {
			return DefaultNow, nil
		}
		if _, err := time.Parse("20060102", v); err != nil {
			return "", fmt.Errorf("invalid datetime default %q, want GETDATE() or YYYYMMDD", raw)
		}
		return v, nil
	case KindBinary:
		v := strings.TrimSpace(raw)
		if !hexLiteral.MatchString(v) || len(v) == 2 {
			return "", fmt.Errorf("invalid binary default %q", raw)
		}
		return "0x" + strings.ToUpper(v[2:]), nil
	case KindString:
		return raw, nil
	}
	return "", fmt.Errorf("unknown column kind %d", int(kind))
}

// DecodeBinaryDefault returns the bytes of a canonical 0x-prefixed binary default.
func DecodeBinaryDefault(def string) ([]byte, error) {
	if len(def) < 2 {
		return nil, fmt.Errorf("invalid binary default %q", def)
	}
	return hex.DecodeString(def[2:])
}
