package interference

import (
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/liveness"
	"github.com/silvergrid/cmmstack/pkg/subarea"
)

// Build constructs the interference graph from the given liveness
// facts: a post-order traversal of blocks, walking each block's middles
// back-to-front while carrying the current live-out, adding an edge
// between every node a defined sub-area maps to and every node
// currently live (plus every other node defined at the same
// instruction). The graph deliberately tolerates over-approximation —
// only the liveness feeding it needs to be precise.
func Build[N comparable](graph *cmm.Graph, env liveness.BlockEnv, mapper NodeMapper[N]) *Graph[N] {
	ig := New[N]()
	for _, id := range graph.PostOrder() {
		block := graph.MustBlock(id)
		// Seed the walk with the live-in of the block's Last: its live-out
		// plus the sub-areas it uses. A Last never defines a sub-area in
		// this IR, so there is nothing to add edges for at the tail before
		// the middle walk begins.
		liveOut := liveness.TransferLast(block.Tail.Last, liveness.LastLiveOut(graph, env, block.Tail.Last))

		for i := len(block.Tail.Middles) - 1; i >= 0; i-- {
			m := block.Tail.Middles[i]
			addEdgesForDefs(ig, mapper, cmm.DefdSlots(m), liveOut)
			liveOut = liveness.TransferMiddle(m, liveOut)
		}
	}
	return ig
}

// addEdgesForDefs adds interference edges between every node a defined
// sub-area maps to, every node currently live, and every other
// simultaneously-defined sub-area's nodes.
func addEdgesForDefs[N comparable](ig *Graph[N], mapper NodeMapper[N], defs []cmm.SubArea, liveOut subarea.Set) {
	if len(defs) == 0 {
		return
	}
	var defNodes []N
	for _, d := range defs {
		defNodes = append(defNodes, mapper.NodesFor(d)...)
	}
	var liveNodes []N
	liveOut.All(func(s cmm.SubArea) {
		liveNodes = append(liveNodes, mapper.NodesFor(s)...)
	})

	for _, dn := range defNodes {
		for _, ln := range liveNodes {
			ig.AddEdge(dn, ln)
		}
		for _, other := range defNodes {
			ig.AddEdge(dn, other)
		}
	}
}
