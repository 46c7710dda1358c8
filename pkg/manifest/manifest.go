// Package manifest implements SP manifestation. Given a finished
// AreaMap, every symbolic StackSlotExpr and HighWaterMarkExpr is
// rewritten to an SP-relative expression, and SP adjustment
// instructions are threaded (or, where a single successor can't carry
// two different deltas, spliced onto edges) through the control-flow
// graph.
package manifest

import (
	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
)

// ManifestSP rewrites graph in place (and returns it) so that every
// stack access is SP-relative and every edge whose endpoints disagree on
// the current SP offset carries an explicit adjustment.
func ManifestSP(
	cfg stackcfg.Config,
	graph *cmm.Graph,
	procPoints cmm.ProcPointMap,
	areaMap areamap.AreaMap,
	procArgBytes int,
) *cmm.Graph {
	procEntrySP := areaMap.MustGet(cmm.CallAreaOld{}) + procArgBytes
	highWater := computeHighWater(graph, areaMap, procEntrySP)

	cache := map[cmm.BlockId]int{graph.Entry: procEntrySP}
	ids := graph.PostOrder() // snapshot: InsertBetween below must not be revisited

	for _, id := range ids {
		block := graph.MustBlock(id)
		spOff := spOnEntry(graph, procPoints, areaMap, cache, id)

		middles := make([]cmm.Middle, 0, len(block.Tail.Middles)+1)
		for _, m := range block.Tail.Middles {
			middles = append(middles, rewriteMiddleExprs(m, areaMap, spOff, highWater))

			if cmm.IsSafeForeignCall(m) {
				spOffPrime := areaMap.MustGet(cmm.CallAreaYoung{Cont: id}) + cfg.WordSize
				if spOffPrime != spOff {
					middles = append(middles, cmm.MiddleSPAdjust{Delta: spOff - spOffPrime})
				}
				spOff = spOffPrime
			}
		}

		last := rewriteLastExprs(block.Tail.Last, areaMap, spOff, highWater)

		switch l := last.(type) {
		case cmm.LastCall:
			target := cmm.Area(cmm.CallAreaOld{})
			if l.Continuation != nil {
				target = cmm.CallAreaYoung{Cont: *l.Continuation}
			}
			want := areaMap.MustGet(target) + l.OutgoingBytes
			if want != spOff {
				middles = append(middles, cmm.MiddleSPAdjust{Delta: spOff - want})
			}
			block.Tail.Middles = middles
			block.Tail.Last = l

		case cmm.LastBranch:
			want := spOnEntry(graph, procPoints, areaMap, cache, l.Target)
			if want != spOff {
				middles = append(middles, cmm.MiddleSPAdjust{Delta: spOff - want})
			}
			block.Tail.Middles = middles
			block.Tail.Last = l

		default:
			block.Tail.Middles = middles
			block.Tail.Last = last
			spliceDisagreeingSuccessors(graph, procPoints, areaMap, cache, id, last, spOff)
		}
	}
	return graph
}

// spliceDisagreeingSuccessors handles "any other last": for every
// distinct successor whose sp_on_entry disagrees with spOff, a fresh
// single-instruction block performing the adjustment is inserted on that
// edge.
func spliceDisagreeingSuccessors(
	graph *cmm.Graph,
	procPoints cmm.ProcPointMap,
	areaMap areamap.AreaMap,
	cache map[cmm.BlockId]int,
	id cmm.BlockId,
	last cmm.Last,
	spOff int,
) {
	seen := make(map[cmm.BlockId]bool)
	for _, succ := range cmm.Successors(last) {
		if seen[succ] {
			continue
		}
		seen[succ] = true
		want := spOnEntry(graph, procPoints, areaMap, cache, succ)
		if want != spOff {
			graph.InsertBetween(id, []cmm.Middle{cmm.MiddleSPAdjust{Delta: spOff - want}}, succ)
		}
	}
}

// spOnEntry computes the SP offset a block expects on entry, memoizing
// per block id. A block carrying its own ArgBytes uses that directly; a
// block only ReachedBy a single procedure point inherits that point's
// value recursively; any other case (a procedure point with no
// ArgBytes, or fan-in from more than one procedure point) is a fatal
// LayoutError.
func spOnEntry(
	graph *cmm.Graph,
	procPoints cmm.ProcPointMap,
	areaMap areamap.AreaMap,
	cache map[cmm.BlockId]int,
	id cmm.BlockId,
) int {
	if v, ok := cache[id]; ok {
		return v
	}
	block := graph.MustBlock(id)

	var sp int
	switch {
	case block.Info.ArgBytes != nil:
		sp = areaMap.MustGet(cmm.CallAreaYoung{Cont: id}) + *block.Info.ArgBytes
	default:
		status, ok := procPoints[id]
		if !ok {
			panic(&cmm.LayoutError{Kind: cmm.ErrMissingArgBytes, Message: "block has neither arg_bytes nor a procedure-point status"})
		}
		switch s := status.(type) {
		case cmm.ReachedBy:
			if len(s.Preds) != 1 {
				panic(&cmm.LayoutError{Kind: cmm.ErrProcPointFanIn, Message: "block is reached by more than one procedure point"})
			}
			sp = spOnEntry(graph, procPoints, areaMap, cache, s.Preds[0])
		default:
			panic(&cmm.LayoutError{Kind: cmm.ErrMissingArgBytes, Message: "procedure-point block has no arg_bytes"})
		}
	}
	cache[id] = sp
	return sp
}

// computeHighWater returns max(0, sp_high - proc_entry_sp), where
// sp_high is the maximum of areaMap[a]+hi across every sub-area used or
// defined anywhere in the graph.
func computeHighWater(graph *cmm.Graph, areaMap areamap.AreaMap, procEntrySP int) int {
	spHigh := 0
	consider := func(s cmm.SubArea) {
		if v := areaMap.MustGet(s.Area) + s.Hi; v > spHigh {
			spHigh = v
		}
	}
	for _, id := range graph.PostOrder() {
		block := graph.MustBlock(id)
		for _, m := range block.Tail.Middles {
			for _, s := range cmm.UsedSlots(m) {
				consider(s)
			}
			for _, s := range cmm.DefdSlots(m) {
				consider(s)
			}
		}
		for _, s := range cmm.LastUsedSlots(block.Tail.Last) {
			consider(s)
		}
	}
	hw := spHigh - procEntrySP
	if hw < 0 {
		hw = 0
	}
	return hw
}

func rewriteExprs(exprs []cmm.Expr, areaMap areamap.AreaMap, spOff, highWater int) []cmm.Expr {
	if exprs == nil {
		return nil
	}
	out := make([]cmm.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = cmm.MapExprDeep(e, func(x cmm.Expr) cmm.Expr {
			switch v := x.(type) {
			case cmm.StackSlotExpr:
				return cmm.SPRelExpr{Delta: spOff - (areaMap.MustGet(v.Area) + v.Offset)}
			case cmm.HighWaterMarkExpr:
				return cmm.Lit{Value: int64(highWater)}
			default:
				return x
			}
		})
	}
	return out
}

func rewriteMiddleExprs(m cmm.Middle, areaMap areamap.AreaMap, spOff, highWater int) cmm.Middle {
	return cmm.WithMiddleExprs(m, rewriteExprs(cmm.MiddleExprs(m), areaMap, spOff, highWater))
}

func rewriteLastExprs(l cmm.Last, areaMap areamap.AreaMap, spOff, highWater int) cmm.Last {
	return cmm.WithLastExprs(l, rewriteExprs(cmm.LastExprs(l), areaMap, spOff, highWater))
}
