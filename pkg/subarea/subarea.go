// Package subarea implements the slot algebra of the stack-layout core:
// coalescing and splitting overlapping (area, hi, width) sub-slots
// within a single area's unordered list.
//
// Precise kills matter: the liveness analysis in pkg/liveness relies on
// live_kill removing exactly the killed bytes and nothing else. Gen may
// over-coalesce (it always merges touching or overlapping entries into
// their smallest enclosing interval) because liveness only needs a sound
// superset of what is truly live, never an exact one.
package subarea

import "github.com/silvergrid/cmmstack/pkg/cmm"

// Gen inserts s into list, coalescing it with any entry of the same area
// that overlaps or touches it into the smallest enclosing interval.
// changed is false iff some existing entry already contained s exactly,
// in which case list is returned unmodified.
func Gen(s cmm.SubArea, list []cmm.SubArea) (bool, []cmm.SubArea) {
	lo, hi := s.Lo(), s.Hi
	kept := make([]cmm.SubArea, 0, len(list)+1)
	for _, e := range list {
		if !cmm.SameArea(e, s) {
			kept = append(kept, e)
			continue
		}
		if e.Contains(s) {
			return false, list
		}
		if touches(e, s) {
			if e.Lo() < lo {
				lo = e.Lo()
			}
			if e.Hi > hi {
				hi = e.Hi
			}
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, cmm.SubArea{Area: s.Area, Hi: hi, Width: hi - lo})
	return true, kept
}

// Kill subtracts s from every entry of list that overlaps it, yielding
// 0, 1, or 2 fragments per entry (the parts above s.Hi and below s.Lo).
// Entries that don't overlap s are preserved unchanged.
func Kill(s cmm.SubArea, list []cmm.SubArea) []cmm.SubArea {
	out := make([]cmm.SubArea, 0, len(list))
	for _, e := range list {
		if !cmm.SameArea(e, s) || !e.Overlaps(s) {
			out = append(out, e)
			continue
		}
		if e.Hi > s.Hi {
			out = append(out, cmm.SubArea{Area: e.Area, Hi: e.Hi, Width: e.Hi - s.Hi})
		}
		if e.Lo() < s.Lo() {
			out = append(out, cmm.SubArea{Area: e.Area, Hi: s.Lo(), Width: s.Lo() - e.Lo()})
		}
	}
	return out
}

// touches reports whether two same-area sub-areas overlap or abut, i.e.
// whether merging them produces a single contiguous interval with no gap.
func touches(a, b cmm.SubArea) bool {
	return a.Lo() <= b.Hi && b.Lo() <= a.Hi
}
