// Package areasize implements a single forward scan that computes, for
// every area, the maximum offset any instruction uses within it.
package areasize

import (
	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/cmm"
)

// Compute scans graph and returns the size (max offset used) of every
// area, seeded with CallArea(Old) = procArgBytes.
func Compute(graph *cmm.Graph, procArgBytes int) areamap.AreaMap {
	sizes := areamap.New()
	sizes.GrowTo(cmm.CallAreaOld{}, procArgBytes)

	for id := range graph.Blocks {
		block := graph.MustBlock(id)
		if block.Info.ArgBytes != nil {
			sizes.GrowTo(cmm.CallAreaYoung{Cont: block.Id}, *block.Info.ArgBytes)
		}
		for _, m := range block.Tail.Middles {
			growFromRegSlots(sizes, cmm.UsedSlots(m))
			growFromRegSlots(sizes, cmm.DefdSlots(m))
		}
		if call, ok := block.Tail.Last.(cmm.LastCall); ok {
			sizes.GrowTo(callTargetArea(call), call.OutgoingBytes)
		}
	}
	return sizes
}

// growFromRegSlots records each RegSlot sub-area's Hi as a candidate
// size; other area kinds (call areas) are sized only via block entry
// arg_bytes and call-last outgoing bytes, never via ordinary use/def.
func growFromRegSlots(sizes areamap.AreaMap, slots []cmm.SubArea) {
	for _, s := range slots {
		if _, ok := s.Area.(cmm.RegSlot); !ok {
			continue
		}
		sizes.GrowTo(s.Area, s.Hi)
	}
}

// callTargetArea picks the call area a call-last's outgoing bytes count
// against: the continuation's young area when there is one, otherwise
// the procedure's own old area (a non-returning call still needs room
// for its outgoing arguments / update frame in the current frame).
func callTargetArea(call cmm.LastCall) cmm.Area {
	if call.Continuation != nil {
		return cmm.CallAreaYoung{Cont: *call.Continuation}
	}
	return cmm.CallAreaOld{}
}
