package registry

import (
	"sort"
	"strings"
)

// Groups is an immutable set of group labels. The zero value is the empty
// set, which acts as a wildcard against another empty set.
type Groups struct {
	set map[string]struct{}
}

// NewGroups normalizes names into a set: labels are trimmed, empty labels are
// dropped and duplicates collapse.
func NewGroups(names ...string) Groups {
	var set map[string]struct{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(names))
		}
		set[name] = struct{}{}
	}
	return Groups{set: set}
}

// Empty reports whether the set holds no labels.
func (g Groups) Empty() bool {
	return len(g.set) == 0
}

// Has reports whether name is in the set.
func (g Groups) Has(name string) bool {
	_, ok := g.set[name]
	return ok
}

// Matches reports whether two sets match: both empty, or sharing at least one
// label. An empty set never matches a non-empty one.
func (g Groups) Matches(other Groups) bool {
	if g.Empty() && other.Empty() {
		return true
	}
	if g.Empty() || other.Empty() {
		return false
	}
	small, large := g, other
	if len(large.set) < len(small.set) {
		small, large = large, small
	}
	for name := range small.set {
		if large.Has(name) {
			return true
		}
	}
	return false
}

// Union returns a new set holding the labels of both.
func (g Groups) Union(other Groups) Groups {
	return NewGroups(append(g.Names(), other.Names()...)...)
}

// Names returns the labels in sorted order.
func (g Groups) Names() []string {
	names := make([]string, 0, len(g.set))
	for name := range g.set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g Groups) String() string {
	return "[" + strings.Join(g.Names(), ",") + "]"
}
