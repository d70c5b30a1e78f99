package dialect

import (
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// ShadowPolicy decides which indices need an auxiliary case-insensitive twin.
// The twin is created and dropped together with its primary index.
type ShadowPolicy interface {
	Wants(t *score.Table, idx *score.Index) bool
	ShadowName(index string) string
	// Primary returns the primary index name if name is a shadow index.
	Primary(name string) (string, bool)
}

// NoShadow is the policy of dialects whose default collations already compare case-insensitively.
type NoShadow struct{}

func (NoShadow) Wants(*score.Table, *score.Index) bool { return false }
func (NoShadow) ShadowName(index string) string       { return index }
func (NoShadow) Primary(string) (string, bool)        { return "", false }

// StringShadow shadows every index that covers at least one string column.
type StringShadow struct {
	Suffix string
}

// DefaultShadow is the policy used by dialects with case-sensitive string comparison.
var DefaultShadow = StringShadow{Suffix: "__ci"}

func (p StringShadow) Wants(t *score.Table, idx *score.Index) bool {
	for _, name := range idx.Columns {
		if c, ok := t.Column(name); ok && c.Kind == score.KindString {
			return true
		}
	}
	return false
}

func (p StringShadow) ShadowName(index string) string { return index + p.Suffix }

func (p StringShadow) Primary(name string) (string, bool) {
	if strings.HasSuffix(name, p.Suffix) && len(name) > len(p.Suffix) {
		return strings.TrimSuffix(name, p.Suffix), true
	}
	return "", false
}
