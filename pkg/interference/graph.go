// Package interference implements the interference graph builder,
// parameterized over a node abstraction so the granularity of "what
// counts as a node" can change without touching the builder or the
// allocator that consumes it. The only realized instance,
// AreaNodeMapper, maps every sub-area to its enclosing Area — one node
// per area.
package interference

import "github.com/silvergrid/cmmstack/pkg/cmm"

// Graph is an undirected interference graph: two nodes interfere if an
// edge exists between them, stored both ways.
type Graph[N comparable] struct {
	Edges map[N]map[N]struct{}
}

// New returns an empty interference graph.
func New[N comparable]() *Graph[N] {
	return &Graph[N]{Edges: make(map[N]map[N]struct{})}
}

// AddNode ensures n is present in the graph, possibly with no edges.
func (g *Graph[N]) AddNode(n N) {
	if g.Edges[n] == nil {
		g.Edges[n] = make(map[N]struct{})
	}
}

// AddEdge records that a and b interfere. Symmetric; both directions
// are stored explicitly. Self-edges are dropped.
func (g *Graph[N]) AddEdge(a, b N) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.Edges[a][b] = struct{}{}
	g.Edges[b][a] = struct{}{}
}

// HasEdge reports whether a and b interfere.
func (g *Graph[N]) HasEdge(a, b N) bool {
	nbrs, ok := g.Edges[a]
	if !ok {
		return false
	}
	_, ok = nbrs[b]
	return ok
}

// Neighbors returns the nodes interfering with n.
func (g *Graph[N]) Neighbors(n N) []N {
	nbrs, ok := g.Edges[n]
	if !ok {
		return nil
	}
	out := make([]N, 0, len(nbrs))
	for m := range nbrs {
		out = append(out, m)
	}
	return out
}

// Nodes returns every node in the graph.
func (g *Graph[N]) Nodes() []N {
	out := make([]N, 0, len(g.Edges))
	for n := range g.Edges {
		out = append(out, n)
	}
	return out
}

// NodeMapper answers the two questions the builder and the allocator
// need to stay agnostic of node granularity: given a sub-area, which
// nodes does it map to, and given a node plus the current size/position
// maps, which word offsets does it occupy.
type NodeMapper[N comparable] interface {
	NodesFor(s cmm.SubArea) []N
	Occupies(n N, wordSize int, sizes, positions map[cmm.Area]int) []int
}

// AreaNodeMapper is the default (and only realized) NodeMapper: each
// sub-area maps to its own Area, and an area occupies the words
// [position/wordSize, position/wordSize + ceil(size/wordSize)).
type AreaNodeMapper struct{}

// NodesFor implements NodeMapper.
func (AreaNodeMapper) NodesFor(s cmm.SubArea) []cmm.Area {
	return []cmm.Area{s.Area}
}

// Occupies implements NodeMapper.
func (AreaNodeMapper) Occupies(a cmm.Area, wordSize int, sizes, positions map[cmm.Area]int) []int {
	pos, ok := positions[a]
	if !ok {
		return nil
	}
	size := sizes[a]
	words := (size + wordSize - 1) / wordSize
	start := pos / wordSize
	out := make([]int, words)
	for i := range out {
		out[i] = start + i
	}
	return out
}
