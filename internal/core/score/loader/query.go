package loader

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// queryLexer tokenizes the SELECT subset views are declared in.
var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(SELECT|FROM|WHERE|AND|GROUP|BY|AS|COUNT|SUM|MIN|MAX|AVG)\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Param", Pattern: `[:$][A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Op", Pattern: `<>|<=|>=|=|<|>`},
	{Name: "Punct", Pattern: `[(),.*]`},
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type rawSelect struct {
	Pos     lexer.Position
	Items   []*rawItem `"SELECT" @@ ( "," @@ )*`
	From    *rawFrom   `"FROM" @@`
	Where   []*rawCond `( "WHERE" @@ ( "AND" @@ )* )?`
	GroupBy []*rawRef  `( "GROUP" "BY" @@ ( "," @@ )* )?`
}

type rawItem struct {
	Agg   *rawAgg `(   @@`
	Ref   *rawRef `  | @@ )`
	Alias string  `( "AS" @Ident )?`
}

type rawAgg struct {
	Func string  `@( "COUNT" | "SUM" | "MIN" | "MAX" | "AVG" ) "("`
	Star bool    `(   @"*"`
	Arg  *rawRef `  | @@ ) ")"`
}

type rawRef struct {
	Parts []string `@Ident ( "." @Ident )?`
}

type rawFrom struct {
	Parts []string `@Ident ( "." @Ident )?`
	Alias string   `( "AS"? @Ident )?`
}

type rawCond struct {
	Left  *rawRef `@@`
	Op    string  `@Op`
	Param string  `(   @Param`
	Value string  `  | @Number | @String )`
}

var queryParser = participle.MustBuild[rawSelect](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(2),
)

func (r *rawRef) ref() score.ColumnRef {
	if len(r.Parts) == 2 {
		return score.ColumnRef{Qualifier: r.Parts[0], Column: r.Parts[1]}
	}
	return score.ColumnRef{Column: r.Parts[0]}
}

// ParseSelect parses a view query into its structured form. Parameters are
// written :name or $name; the FROM table may be qualified by its grain.
func ParseSelect(text string) (score.Select, error) {
	raw, err := queryParser.ParseString("", text)
	if err != nil {
		return score.Select{}, fmt.Errorf("view query: %w", err)
	}
	var sel score.Select
	for _, it := range raw.Items {
		item := score.SelectItem{Alias: it.Alias}
		if it.Agg != nil {
			item.Aggregate = score.Aggregate(strings.ToUpper(it.Agg.Func))
			item.Star = it.Agg.Star
			if it.Agg.Arg != nil {
				item.Column = it.Agg.Arg.ref()
			}
		} else {
			item.Column = it.Ref.ref()
		}
		sel.Items = append(sel.Items, item)
	}
	if len(raw.From.Parts) == 2 {
		sel.From = score.TableRef{Grain: raw.From.Parts[0], Table: raw.From.Parts[1]}
	} else {
		sel.From = score.TableRef{Table: raw.From.Parts[0]}
	}
	sel.From.Alias = raw.From.Alias
	for _, c := range raw.Where {
		cond := score.Condition{Left: c.Left.ref(), Op: c.Op, Literal: c.Value}
		if c.Param != "" {
			cond.Param = c.Param[1:]
		}
		sel.Where = append(sel.Where, cond)
	}
	for _, g := range raw.GroupBy {
		sel.GroupBy = append(sel.GroupBy, g.ref())
	}
	return sel, nil
}
