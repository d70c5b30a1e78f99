package score

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// VersionOrder is the result of comparing a declared grain version with a recorded one.
type VersionOrder int

const (
	VersionEqual VersionOrder = iota
	VersionGreater
	VersionLower
	VersionInconsistent
)

func (o VersionOrder) String() string {
	switch o {
	case VersionEqual:
		return "equal"
	case VersionGreater:
		return "greater"
	case VersionLower:
		return "lower"
	}
	return "inconsistent"
}

// ParseVersionTags splits a version string such as "1.2" or "core 1.2, ext 0.3"
// into tag → version. An untagged component is stored under the empty tag.
func ParseVersionTags(s string) (map[string]*goversion.Version, error) {
	out := make(map[string]*goversion.Version)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		var tag, raw string
		switch len(fields) {
		case 1:
			raw = fields[0]
		case 2:
			tag, raw = fields[0], fields[1]
		default:
			return nil, fmt.Errorf("malformed version component %q", part)
		}
		if _, dup := out[tag]; dup {
			return nil, fmt.Errorf("version tag %q repeated", tag)
		}
		v, err := goversion.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("version component %q: %w", part, err)
		}
		out[tag] = v
	}
	return out, nil
}

// CompareVersions orders declared against recorded. An empty side imposes no order.
// Versions whose tag sets differ, or whose tags move in opposite directions, are inconsistent.
func CompareVersions(declared, recorded string) (VersionOrder, error) {
	if strings.TrimSpace(declared) == "" || strings.TrimSpace(recorded) == "" {
		return VersionEqual, nil
	}
	d, err := ParseVersionTags(declared)
	if err != nil {
		return VersionInconsistent, err
	}
	r, err := ParseVersionTags(recorded)
	if err != nil {
		return VersionInconsistent, err
	}
	if len(d) != len(r) {
		return VersionInconsistent, nil
	}
	greater, lower := false, false
	for tag, dv := range d {
		rv, ok := r[tag]
		if !ok {
			return VersionInconsistent, nil
		}
		switch dv.Compare(rv) {
		case 1:
			greater = true
		case -1:
			lower = true
		}
	}
	switch {
	case greater && lower:
		return VersionInconsistent, nil
	case greater:
		return VersionGreater, nil
	case lower:
		return VersionLower, nil
	}
	return VersionEqual, nil
}
