package cmm

// Graph is a procedure's control-flow graph: a fixed entry block plus the
// set of all blocks reachable from it, keyed by BlockId.
type Graph struct {
	Entry  BlockId
	Blocks map[BlockId]*Block

	nextID BlockId
}

// NewGraph builds a Graph over the given blocks, rooted at entry.
func NewGraph(entry BlockId, blocks []*Block) *Graph {
	g := &Graph{Entry: entry, Blocks: make(map[BlockId]*Block, len(blocks))}
	for _, b := range blocks {
		g.Blocks[b.Id] = b
		if b.Id >= g.nextID {
			g.nextID = b.Id + 1
		}
	}
	return g
}

// Block looks up a block by id.
func (g *Graph) Block(id BlockId) (*Block, bool) {
	b, ok := g.Blocks[id]
	return b, ok
}

// MustBlock looks up a block by id, panicking with an "unknown block"
// error if it is absent.
func (g *Graph) MustBlock(id BlockId) *Block {
	b, ok := g.Blocks[id]
	if !ok {
		panic(&LayoutError{Kind: ErrUnknownBlock, Message: "unknown block in graph"})
	}
	return b
}

// PostOrder returns block ids in post-order DFS from the entry block,
// following each block's Last successors in the order they are listed.
// The traversal is deterministic: the same graph always yields the same
// order, which downstream fixed-point and allocation passes rely on.
func (g *Graph) PostOrder() []BlockId {
	visited := make(map[BlockId]bool)
	var order []BlockId
	var visit func(id BlockId)
	visit = func(id BlockId) {
		if visited[id] {
			return
		}
		visited[id] = true
		b, ok := g.Blocks[id]
		if !ok {
			return
		}
		for _, succ := range Successors(b.Tail.Last) {
			visit(succ)
		}
		order = append(order, id)
	}
	visit(g.Entry)
	return order
}

// InsertBetween splices a new block carrying instrs onto the edge from
// pred to succ, redirecting every occurrence of succ in pred's last
// instruction to the new block, which unconditionally branches on to
// succ. SP manifestation uses this to patch disagreeing successor SP
// values.
func (g *Graph) InsertBetween(predID BlockId, instrs []Middle, succID BlockId) (patchedPred Block, newBlock Block) {
	pred := g.MustBlock(predID)
	newID := g.nextID
	g.nextID++

	nb := &Block{
		Id:   newID,
		Info: StackInfo{},
		Tail: ZTail{Middles: instrs, Last: LastBranch{Target: succID}},
	}
	g.Blocks[newID] = nb

	pred.Tail.Last = redirectSuccessor(pred.Tail.Last, succID, newID)
	return *pred, *nb
}

func redirectSuccessor(l Last, from, to BlockId) Last {
	switch x := l.(type) {
	case LastBranch:
		if x.Target == from {
			x.Target = to
		}
		return x
	case LastCond:
		if x.True == from {
			x.True = to
		}
		if x.False == from {
			x.False = to
		}
		return x
	case LastCall:
		if x.Continuation != nil && *x.Continuation == from {
			redirected := to
			x.Continuation = &redirected
		}
		return x
	case LastSwitch:
		targets := append([]BlockId(nil), x.Targets...)
		for i, t := range targets {
			if t == from {
				targets[i] = to
			}
		}
		x.Targets = targets
		return x
	default:
		return l
	}
}
