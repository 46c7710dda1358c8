// Package liveness implements the backward, per-block sub-area liveness
// fixed point of the stack-layout core: the lattice is
// subarea.Set, the join is element-wise subarea.Gen, and the transfer
// handles call-area injection for outgoing arguments and update frames.
//
// A backward dataflow driver over an arbitrary lattice with transfer
// functions is normally something the surrounding code generator would
// supply. No third-party Go library in the retrieved corpus offers a
// generic fixpoint-over-arbitrary-lattices driver (the nearest analogues,
// golang.org/x/tools/go/cfg and go/ssa, build control-flow graphs but
// do not solve dataflow equations over them), so the tiny worklist
// driver below is hand-rolled rather than borrowed — see DESIGN.md.
package liveness

import (
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/subarea"
)

// BlockEnv is the per-block liveness environment the analysis produces:
// the live-in SubAreaSet at the entry of every block.
type BlockEnv map[cmm.BlockId]subarea.Set

// Analyze runs the backward fixed point to convergence and returns the
// live-in facts for every block of graph.
func Analyze(graph *cmm.Graph) BlockEnv {
	env := make(BlockEnv, len(graph.Blocks))
	for id := range graph.Blocks {
		env[id] = subarea.New()
	}

	order := graph.PostOrder() // successors before predecessors: ideal backward order
	for {
		changed := false
		for _, id := range order {
			block := graph.MustBlock(id)
			in := transferBlock(graph, env, block)
			if !in.Equal(env[id]) {
				env[id] = in
				changed = true
			}
		}
		if !changed {
			return env
		}
	}
}

// transferBlock computes the live-in set of a single block given the
// current (possibly not yet converged) facts for the rest of the graph.
func transferBlock(graph *cmm.Graph, env BlockEnv, block *cmm.Block) subarea.Set {
	liveOut := LastLiveOut(graph, env, block.Tail.Last)

	cur := TransferLast(block.Tail.Last, liveOut)
	for i := len(block.Tail.Middles) - 1; i >= 0; i-- {
		cur = TransferMiddle(block.Tail.Middles[i], cur)
	}

	// "first" transfer: stack slots that return values into this block
	// are defined at entry, not live-in.
	cur.DeleteArea(cmm.CallAreaYoung{Cont: block.Id})
	return cur
}

// LastLiveOut computes live_last_out(l): the lattice join of every
// successor's live-in facts, with call-area injection applied. Passed
// through TransferLast, it is also the seed the interference graph
// builder (pkg/interference) starts its backward middle walk from.
func LastLiveOut(graph *cmm.Graph, env BlockEnv, l cmm.Last) subarea.Set {
	return injectCallAreas(l, joinSuccessors(graph, env, l))
}

// joinSuccessors computes the lattice join (element-wise subarea.Gen) of
// the live-in facts of every successor of l.
func joinSuccessors(graph *cmm.Graph, env BlockEnv, l cmm.Last) subarea.Set {
	out := subarea.New()
	for _, succ := range cmm.Successors(l) {
		succEnv, ok := env[succ]
		if !ok {
			panic(&cmm.LayoutError{Kind: cmm.ErrUnknownBlock, Message: "unknown block in liveness environment"})
		}
		out, _ = out.Union(succEnv)
	}
	return out
}

// injectCallAreas keeps outgoing call arguments (and, when present, the
// update frame) live across the call, even though nothing downstream
// uses them: the call itself consumes them.
func injectCallAreas(l cmm.Last, liveOut subarea.Set) subarea.Set {
	call, ok := l.(cmm.LastCall)
	if !ok {
		return liveOut
	}
	n := call.OutgoingBytes
	if n == 0 {
		return liveOut
	}
	out := liveOut.Clone()
	switch {
	case call.Continuation == nil:
		// tail-like call with no continuation: covers the update frame
		// for non-returning calls.
		out.Gen(cmm.SubArea{Area: cmm.CallAreaOld{}, Hi: n, Width: n})
	case call.UpdateFrameBytes != nil:
		out.Gen(cmm.SubArea{Area: cmm.CallAreaOld{}, Hi: n, Width: n})
		out.Gen(cmm.SubArea{Area: cmm.CallAreaYoung{Cont: *call.Continuation}, Hi: n, Width: n})
	default:
		out.Gen(cmm.SubArea{Area: cmm.CallAreaYoung{Cont: *call.Continuation}, Hi: n, Width: n})
	}
	return out
}

// TailLiveOuts returns, for every middle in block.Tail.Middles, the
// live-out set immediately following that middle (i.e. live-in of the
// remainder of the tail after it). The greedy allocator uses this to
// size and place a safe foreign call's outgoing call area against
// whatever is still live past it. Computed by the same backward walk as
// transferBlock, but captured per-position instead of only returned at
// the block's entry.
func TailLiveOuts(graph *cmm.Graph, env BlockEnv, block *cmm.Block) []subarea.Set {
	n := len(block.Tail.Middles)
	out := make([]subarea.Set, n)
	cur := TransferLast(block.Tail.Last, LastLiveOut(graph, env, block.Tail.Last))
	for i := n - 1; i >= 0; i-- {
		out[i] = cur
		cur = TransferMiddle(block.Tail.Middles[i], cur)
	}
	return out
}

// TransferLast computes live_in(l) = union_over_uses(l, liveOut): a last
// instruction never defines sub-areas, so there is nothing to kill.
func TransferLast(l cmm.Last, liveOut subarea.Set) subarea.Set {
	return cmm.FoldLastSlotsUsed(l, liveOut.Clone(), func(s subarea.Set, sub cmm.SubArea) subarea.Set {
		s.Gen(sub)
		return s
	})
}

// TransferMiddle computes live_in(m) = union_over_uses(m,
// live_kill_all_defs(m, liveOut)). It is reused verbatim by the
// interference graph builder (pkg/interference), which carries the same
// live-out backward through a block's middles while recording
// interference edges at each def.
func TransferMiddle(m cmm.Middle, liveOut subarea.Set) subarea.Set {
	cur := cmm.FoldSlotsDefd(m, liveOut.Clone(), func(s subarea.Set, sub cmm.SubArea) subarea.Set {
		s.Kill(sub)
		return s
	})
	return cmm.FoldSlotsUsed(m, cur, func(s subarea.Set, sub cmm.SubArea) subarea.Set {
		s.Gen(sub)
		return s
	})
}
