// Package areamap defines AreaMap, the byte-quantity-per-area mapping
// used, in different phases, both as the output of area sizing (pkg
// areasize) and as the output of greedy allocation (pkg layout).
package areamap

import "github.com/silvergrid/cmmstack/pkg/cmm"

// AreaMap maps an Area to a byte offset or size.
type AreaMap map[cmm.Area]int

// New returns an empty AreaMap.
func New() AreaMap {
	return make(AreaMap)
}

// Get returns the recorded value for a, or 0 if a has not been recorded.
func (m AreaMap) Get(a cmm.Area) int {
	return m[a]
}

// Has reports whether a has an entry in m.
func (m AreaMap) Has(a cmm.Area) bool {
	_, ok := m[a]
	return ok
}

// GrowTo raises the recorded value for a to n if n is larger than what
// is currently recorded. An absent entry counts as 0, so a non-positive
// n leaves an absent a without an entry.
func (m AreaMap) GrowTo(a cmm.Area, n int) {
	if n > m[a] {
		m[a] = n
	}
}

// MustGet returns the value recorded for a, panicking with an
// "unallocated area" error if a has no entry.
func (m AreaMap) MustGet(a cmm.Area) int {
	v, ok := m[a]
	if !ok {
		panic(&cmm.LayoutError{Kind: cmm.ErrUnallocatedArea, Message: "area has no recorded offset"})
	}
	return v
}
