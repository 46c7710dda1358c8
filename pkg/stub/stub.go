// Package stub implements dead-pointer stubbing: a shallow backward
// rewrite that overwrites a slot with a recognizable poison value the
// instant it dies, so a stale pointer never lingers where a garbage
// collector might later scan it.
package stub

import (
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/liveness"
	"github.com/silvergrid/cmmstack/pkg/subarea"
)

// StubValue produces the poison literal written into a slot of the given
// byte width once it is proven dead.
type StubValue func(width int) cmm.Expr

// DefaultStubValue always returns an all-ones literal: easy to recognize
// in a stack dump regardless of width.
func DefaultStubValue(width int) cmm.Expr {
	return cmm.Lit{Value: -1}
}

// Coverage reports how much of the graph dead-pointer stubbing actually
// reached. LastNodeUses counts the sub-areas used by the blocks' Last
// instructions, whether or not they are still live afterwards: a slot
// that dies at a Last is never stubbed, since there is no middle after
// it to append a store to. A caller can inspect this count and decide
// whether the gap matters for their graph.
type Coverage struct {
	LastNodeUses int
}

// StubSlotsOnDeath computes each block's per-middle live-out sets with a
// backward walk (liveness.TailLiveOuts), and for every middle m, appends a single stub-store instruction covering every sub-area m
// uses that is not live immediately afterward. Multiple slots dying at
// the same instruction concatenate into that one appended instruction.
func StubSlotsOnDeath(graph *cmm.Graph, env liveness.BlockEnv, stub StubValue) (*cmm.Graph, Coverage) {
	var cov Coverage
	for _, id := range graph.PostOrder() {
		block := graph.MustBlock(id)
		tailLiveOuts := liveness.TailLiveOuts(graph, env, block)

		rewritten := make([]cmm.Middle, 0, len(block.Tail.Middles))
		for i, m := range block.Tail.Middles {
			rewritten = append(rewritten, m)
			if dead := deadUses(m, tailLiveOuts[i]); len(dead) > 0 {
				rewritten = append(rewritten, stubStore(dead, stub))
			}
		}
		block.Tail.Middles = rewritten
		cov.LastNodeUses += len(cmm.LastUsedSlots(block.Tail.Last))
	}
	return graph, cov
}

// deadUses returns the sub-areas m uses that no entry of liveOut still
// covers.
func deadUses(m cmm.Middle, liveOut subarea.Set) []cmm.SubArea {
	var dead []cmm.SubArea
	for _, u := range cmm.UsedSlots(m) {
		if !stillLive(liveOut, u) {
			dead = append(dead, u)
		}
	}
	return dead
}

func stillLive(liveOut subarea.Set, u cmm.SubArea) bool {
	live := false
	liveOut.All(func(s cmm.SubArea) {
		if s.Overlaps(u) {
			live = true
		}
	})
	return live
}

// stubStore builds the single instruction that overwrites every dead
// slot with its stub value, in the order given.
func stubStore(dead []cmm.SubArea, stub StubValue) cmm.Middle {
	exprs := make([]cmm.Expr, len(dead))
	for i, d := range dead {
		exprs[i] = stub(d.Width)
	}
	return cmm.MiddleOp{Defs: dead, Exprs: exprs}
}
