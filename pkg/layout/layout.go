// Package layout implements the greedy interference-graph allocator
// that turns an area-size map and an interference graph into a
// concrete AreaMap of byte offsets.
package layout

import (
	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/interference"
	"github.com/silvergrid/cmmstack/pkg/liveness"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
	"github.com/silvergrid/cmmstack/pkg/subarea"
)

// Allocate runs the three allocation triggers over a post-order block
// visit, front-to-back instruction walk, and returns the resulting
// AreaMap. CallArea(Old) is pre-seeded to 0.
func Allocate(
	cfg stackcfg.Config,
	graph *cmm.Graph,
	procPoints cmm.ProcPointMap,
	env liveness.BlockEnv,
	sizes areamap.AreaMap,
	ig *interference.Graph[cmm.Area],
) areamap.AreaMap {
	positions := areamap.New()
	positions[cmm.CallAreaOld{}] = 0
	mapper := interference.AreaNodeMapper{}

	for _, id := range graph.PostOrder() {
		block := graph.MustBlock(id)
		tailLiveOuts := liveness.TailLiveOuts(graph, env, block)

		for i, m := range block.Tail.Middles {
			allocSpillSlots(m, sizes, positions, ig, mapper, cfg)

			if cmm.IsSafeForeignCall(m) {
				young := cmm.CallAreaYoung{Cont: block.Id}
				sizes.GrowTo(young, sizes.Get(young)+cfg.WordSize)
				start := youngestLive(positions, tailLiveOuts[i])
				allocArea(young, start, sizes, positions, ig, mapper, cfg)
			}
		}

		if isProcPoint(procPoints, id) {
			returnOff := 0
			if block.Info.ReturnOff != nil {
				returnOff = *block.Info.ReturnOff
			}
			start := max(returnOff, youngestLive(positions, env[id]))
			allocArea(cmm.CallAreaYoung{Cont: id}, start, sizes, positions, ig, mapper, cfg)
		}
	}
	return positions
}

// allocSpillSlots implements trigger 1: any RegSlot among an
// instruction's uses or defs is assigned a position starting from 0, if
// it doesn't have one yet.
func allocSpillSlots(
	m cmm.Middle,
	sizes areamap.AreaMap,
	positions areamap.AreaMap,
	ig *interference.Graph[cmm.Area],
	mapper interference.AreaNodeMapper,
	cfg stackcfg.Config,
) {
	for _, s := range cmm.UsedSlots(m) {
		if _, ok := s.Area.(cmm.RegSlot); ok {
			allocArea(s.Area, 0, sizes, positions, ig, mapper, cfg)
		}
	}
	for _, s := range cmm.DefdSlots(m) {
		if _, ok := s.Area.(cmm.RegSlot); ok {
			allocArea(s.Area, 0, sizes, positions, ig, mapper, cfg)
		}
	}
}

// isProcPoint reports whether id names a block that is itself a
// procedure point (as opposed to one only ReachedBy some procedure
// point, or absent from the map entirely).
func isProcPoint(procPoints cmm.ProcPointMap, id cmm.BlockId) bool {
	status, ok := procPoints[id]
	if !ok {
		return false
	}
	_, ok = status.(cmm.ProcPoint)
	return ok
}

// youngestLive folds every sub-area in live over the current positions
// map: for each already-assigned area, the candidate contribution is its
// base offset plus the sub-area's Hi. The result is the lowest-addressed
// byte any currently-assigned live slot occupies.
func youngestLive(positions areamap.AreaMap, live subarea.Set) int {
	best := 0
	live.All(func(s cmm.SubArea) {
		if !positions.Has(s.Area) {
			return
		}
		if v := positions.Get(s.Area) + s.Hi; v > best {
			best = v
		}
	})
	return best
}

// allocArea assigns area a byte offset: if area already has one, this is
// a no-op. Otherwise it finds the lowest aligned offset
// at or above start such that no word of [offset, offset+size) collides
// with a word occupied by any already-placed interference neighbor.
func allocArea(
	area cmm.Area,
	start int,
	sizes areamap.AreaMap,
	positions areamap.AreaMap,
	ig *interference.Graph[cmm.Area],
	mapper interference.AreaNodeMapper,
	cfg stackcfg.Config,
) {
	if positions.Has(area) {
		return
	}
	size := sizes.Get(area)
	align := alignFn(area, cfg)
	conflicts := conflictWords(ig, mapper, area, sizes, positions, cfg.WordSize)

	pos := align(start)
	for {
		if !wordsConflict(pos, size, cfg.WordSize, conflicts) {
			positions[area] = pos
			return
		}
		pos = align(pos + cfg.WordSize)
	}
}

// alignFn returns the alignment rule for area: call areas and
// GC-pointer register slots round up to word size; everything else is
// unaligned.
func alignFn(area cmm.Area, cfg stackcfg.Config) func(int) int {
	roundUp := func(n int) int {
		if cfg.WordSize == 0 {
			return n
		}
		return ((n + cfg.WordSize - 1) / cfg.WordSize) * cfg.WordSize
	}
	switch a := area.(type) {
	case cmm.CallAreaOld:
		return roundUp
	case cmm.CallAreaYoung:
		return roundUp
	case cmm.RegSlot:
		if a.Reg.Type.IsGCPointer() {
			return roundUp
		}
		return func(n int) int { return n }
	default:
		return func(n int) int { return n }
	}
}

// conflictWords collects every word offset occupied by an
// already-placed neighbor of area in the interference graph.
func conflictWords(
	ig *interference.Graph[cmm.Area],
	mapper interference.AreaNodeMapper,
	area cmm.Area,
	sizes, positions areamap.AreaMap,
	wordSize int,
) map[int]bool {
	conflicts := make(map[int]bool)
	for _, n := range ig.Neighbors(area) {
		if !positions.Has(n) {
			continue
		}
		for _, w := range mapper.Occupies(n, wordSize, sizes, positions) {
			conflicts[w] = true
		}
	}
	return conflicts
}

// wordsConflict reports whether any word touched by [pos, pos+size)
// appears in conflicts. A zero-size area never conflicts.
func wordsConflict(pos, size, wordSize int, conflicts map[int]bool) bool {
	if size == 0 {
		return false
	}
	startWord := pos / wordSize
	endWord := (pos + size - 1) / wordSize
	for w := startWord; w <= endWord; w++ {
		if conflicts[w] {
			return true
		}
	}
	return false
}
