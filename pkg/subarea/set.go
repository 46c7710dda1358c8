package subarea

import "github.com/silvergrid/cmmstack/pkg/cmm"

// Set is a SubAreaSet: a mapping from Area to an unordered list of
// pairwise non-overlapping sub-areas. It is the value the liveness
// fixed-point of pkg/liveness threads through the graph, one per block.
type Set map[cmm.Area][]cmm.SubArea

// New returns an empty SubAreaSet, the bottom element of the liveness
// lattice.
func New() Set {
	return make(Set)
}

// Gen inserts s into the set (see package-level Gen) and reports whether
// the set changed.
func (s Set) Gen(sub cmm.SubArea) bool {
	changed, list := Gen(sub, s[sub.Area])
	if changed {
		s[sub.Area] = list
	}
	return changed
}

// Kill removes sub from every entry of the set that overlaps it (see
// package-level Kill).
func (s Set) Kill(sub cmm.SubArea) {
	list, ok := s[sub.Area]
	if !ok {
		return
	}
	remaining := Kill(sub, list)
	if len(remaining) == 0 {
		delete(s, sub.Area)
	} else {
		s[sub.Area] = remaining
	}
}

// DeleteArea removes every sub-area of a given area outright, regardless
// of overlap. Used by the block-entry transfer to drop
// CallArea(Young(this_block)) wholesale.
func (s Set) DeleteArea(a cmm.Area) {
	delete(s, a)
}

// Clone returns a deep-enough copy of s (the per-area slices are copied,
// so mutating the clone never aliases the original).
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for a, list := range s {
		out[a] = append([]cmm.SubArea(nil), list...)
	}
	return out
}

// Union folds every sub-area of other into a clone of s via Gen: this is
// the liveness lattice join. It reports whether the result differs
// from s.
func (s Set) Union(other Set) (Set, bool) {
	out := s.Clone()
	changed := false
	for _, list := range other {
		for _, sub := range list {
			if out.Gen(sub) {
				changed = true
			}
		}
	}
	return out, changed
}

// Equal reports whether two sets contain exactly the same sub-areas
// (order-independent).
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for area, list := range s {
		olist, ok := other[area]
		if !ok || len(list) != len(olist) {
			return false
		}
		for _, e := range list {
			found := false
			for _, oe := range olist {
				if oe == e {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// All calls f for every sub-area currently in the set.
func (s Set) All(f func(cmm.SubArea)) {
	for _, list := range s {
		for _, sub := range list {
			f(sub)
		}
	}
}
