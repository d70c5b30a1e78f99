package syscat

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// GrainState is the persisted lifecycle marker of a grain.
type GrainState int

// Stored as integers in scoresys.grains.state.
const (
	Ready GrainState = iota
	Upgrading
	Error
	Recover
	Locked
)

func (s GrainState) String() string {
	switch s {
	case Ready:
		return "READY"
	case Upgrading:
		return "UPGRADING"
	case Error:
		return "ERROR"
	case Recover:
		return "RECOVER"
	case Locked:
		return "LOCKED"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// ParseGrainState accepts the names printed by String, case-insensitively.
func ParseGrainState(s string) (GrainState, error) {
	for st := Ready; st <= Locked; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown grain state %q", s)
}

// ObjectKind is the directory spelling of an object's kind.
type ObjectKind string

const (
	KindTable        ObjectKind = "T"
	KindView         ObjectKind = "V"
	KindMaterialized ObjectKind = "M"
	KindFunction     ObjectKind = "F"
)

// KindOfView maps a view kind to its directory kind.
func KindOfView(k score.ViewKind) ObjectKind {
	switch k {
	case score.MaterializedView:
		return KindMaterialized
	case score.ParameterizedView:
		return KindFunction
	}
	return KindView
}
