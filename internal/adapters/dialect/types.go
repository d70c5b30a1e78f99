package dialect

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// TypeRule maps one column kind to its DDL keyword and default renderer.
type TypeRule struct {
	Keyword func(c catalog.ColumnInfo) string
	// Default renders a canonical default as a dialect expression.
	Default func(c catalog.ColumnInfo) (string, error)
}

// TypeRegistry holds the rule for every column kind a dialect supports.
type TypeRegistry map[score.ColumnKind]TypeRule

// Keyword returns the column's DDL type.
func (r TypeRegistry) Keyword(c catalog.ColumnInfo) (string, error) {
	rule, ok := r[c.Kind]
	if !ok {
		return "", fmt.Errorf("no type rule for %s", c.Kind)
	}
	return rule.Keyword(c), nil
}

// Default returns the rendered default or "" when the column has none.
func (r TypeRegistry) Default(c catalog.ColumnInfo) (string, error) {
	if c.Default == "" {
		return "", nil
	}
	rule, ok := r[c.Kind]
	if !ok {
		return "", fmt.Errorf("no type rule for %s", c.Kind)
	}
	if rule.Default == nil {
		return c.Default, nil
	}
	return rule.Default(c)
}

// Fixed returns a keyword func that ignores the column payload.
func Fixed(keyword string) func(catalog.ColumnInfo) string {
	return func(catalog.ColumnInfo) string { return keyword }
}

// Verbatim renders numeric defaults unchanged.
func Verbatim(c catalog.ColumnInfo) (string, error) {
	return c.Default, nil
}

// QuoteString renders s as a single-quoted SQL literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SequenceOf extracts the sequence name of a NEXTVAL(<seq>) default.
func SequenceOf(def string) (string, bool) {
	if strings.HasPrefix(def, "NEXTVAL(") && strings.HasSuffix(def, ")") {
		return def[len("NEXTVAL(") : len(def)-1], true
	}
	return "", false
}

// DateParts splits a YYYYMMDD literal into ISO form.
func DateParts(yyyymmdd string) (string, error) {
	if len(yyyymmdd) != 8 {
		return "", fmt.Errorf("invalid date literal %q", yyyymmdd)
	}
	for _, r := range yyyymmdd {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid date literal %q", yyyymmdd)
		}
	}
	return yyyymmdd[:4] + "-" + yyyymmdd[4:6] + "-" + yyyymmdd[6:], nil
}
