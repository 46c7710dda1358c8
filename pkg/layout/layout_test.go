package layout

import (
	"testing"

	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/areasize"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/interference"
	"github.com/silvergrid/cmmstack/pkg/liveness"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
)

func gcReg(name string) cmm.LocalReg {
	return cmm.LocalReg{Name: name, Type: cmm.RegType{Name: "ptr", Width: 4, GCPointer: true}}
}

func plainReg(name string) cmm.LocalReg {
	return cmm.LocalReg{Name: name, Type: cmm.RegType{Name: "word", Width: 4}}
}

func TestAllocateSeedsCallAreaOldAtZero(t *testing.T) {
	g := cmm.NewGraph(0, []*cmm.Block{{Id: 0, Tail: cmm.ZTail{Last: cmm.LastExit{}}}})
	env := liveness.Analyze(g)
	sizes := areasize.Compute(g, 0)
	ig := interference.Build(g, env, interference.AreaNodeMapper{})

	positions := Allocate(stackcfg.Config{WordSize: 8, WordWidth: 64}, g, cmm.ProcPointMap{}, env, sizes, ig)

	if got := positions.MustGet(cmm.CallAreaOld{}); got != 0 {
		t.Errorf("CallArea(Old) should be pre-seeded to 0, got %d", got)
	}
}

// TestDisjointSpillSlotsMayShareAnOffset exercises the allocator's benefit
// from non-interference: two reg slots whose live ranges never overlap
// are free to land at the same offset.
func TestDisjointSpillSlotsMayShareAnOffset(t *testing.T) {
	a := cmm.SubArea{Area: cmm.RegSlot{Reg: plainReg("a")}, Hi: 4, Width: 4}
	b := cmm.SubArea{Area: cmm.RegSlot{Reg: plainReg("b")}, Hi: 4, Width: 4}
	block := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Middles: []cmm.Middle{
				cmm.MiddleOp{Defs: []cmm.SubArea{a}},
				cmm.MiddleOp{Uses: []cmm.SubArea{a}},
				cmm.MiddleOp{Defs: []cmm.SubArea{b}},
				cmm.MiddleOp{Uses: []cmm.SubArea{b}},
			},
			Last: cmm.LastExit{},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})
	env := liveness.Analyze(g)
	sizes := areasize.Compute(g, 0)
	ig := interference.Build(g, env, interference.AreaNodeMapper{})

	positions := Allocate(stackcfg.Config{WordSize: 4, WordWidth: 32}, g, cmm.ProcPointMap{}, env, sizes, ig)

	if positions.MustGet(a.Area) != positions.MustGet(b.Area) {
		t.Errorf("non-interfering slots should be free to coincide: a=%d b=%d",
			positions.MustGet(a.Area), positions.MustGet(b.Area))
	}
}

// TestSimultaneouslyLiveSpillSlotsDoNotOverlap is the allocation
// non-overlap invariant: two reg slots live at the same instruction must
// never share a byte.
func TestSimultaneouslyLiveSpillSlotsDoNotOverlap(t *testing.T) {
	a := cmm.SubArea{Area: cmm.RegSlot{Reg: plainReg("a")}, Hi: 4, Width: 4}
	b := cmm.SubArea{Area: cmm.RegSlot{Reg: plainReg("b")}, Hi: 8, Width: 8}
	block := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Middles: []cmm.Middle{
				cmm.MiddleOp{Defs: []cmm.SubArea{a}},
				cmm.MiddleOp{Defs: []cmm.SubArea{b}},
				cmm.MiddleOp{Uses: []cmm.SubArea{a, b}},
			},
			Last: cmm.LastExit{},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})
	env := liveness.Analyze(g)
	sizes := areasize.Compute(g, 0)
	ig := interference.Build(g, env, interference.AreaNodeMapper{})

	positions := Allocate(stackcfg.Config{WordSize: 4, WordWidth: 32}, g, cmm.ProcPointMap{}, env, sizes, ig)

	aLo, aHi := positions.MustGet(a.Area), positions.MustGet(a.Area)+sizes.Get(a.Area)
	bLo, bHi := positions.MustGet(b.Area), positions.MustGet(b.Area)+sizes.Get(b.Area)
	if aLo < bHi && bLo < aHi {
		t.Errorf("interfering slots overlap: a=[%d,%d) b=[%d,%d)", aLo, aHi, bLo, bHi)
	}
}

// TestGCPointerSlotIsWordAligned is the alignment scenario: a GC-pointer
// RegSlot of size 4 allocated starting from start=1 with word_size=8
// lands at an offset that is a multiple of 8.
func TestGCPointerSlotIsWordAligned(t *testing.T) {
	r := cmm.RegSlot{Reg: gcReg("p")}
	sizes := areamap.New()
	sizes.GrowTo(r, 4)
	positions := areamap.New()
	ig := interference.New[cmm.Area]()

	allocArea(r, 1, sizes, positions, ig, interference.AreaNodeMapper{}, stackcfg.Config{WordSize: 8, WordWidth: 64})

	if got := positions.MustGet(r); got%8 != 0 {
		t.Errorf("GC-pointer slot must land on a word boundary, got offset %d", got)
	}
}

// TestPlainRegSlotIsNotAligned: a non-GC-pointer RegSlot has no alignment
// rule and can land exactly at start.
func TestPlainRegSlotIsNotAligned(t *testing.T) {
	r := cmm.RegSlot{Reg: plainReg("n")}
	sizes := areamap.New()
	sizes.GrowTo(r, 4)
	positions := areamap.New()
	ig := interference.New[cmm.Area]()

	allocArea(r, 3, sizes, positions, ig, interference.AreaNodeMapper{}, stackcfg.Config{WordSize: 8, WordWidth: 64})

	if got := positions.MustGet(r); got != 3 {
		t.Errorf("plain RegSlot should land exactly at start=3, got %d", got)
	}
}

// TestSafeForeignCallGrowsYoungAreaByOneWord checks allocation trigger 2:
// a safe foreign call grows its block's CallArea(Young) by one word to
// hold an info-table pointer, and places it at or above whatever is live
// across the call.
func TestSafeForeignCallGrowsYoungAreaByOneWord(t *testing.T) {
	r := cmm.SubArea{Area: cmm.RegSlot{Reg: plainReg("live")}, Hi: 4, Width: 4}
	block := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Middles: []cmm.Middle{
				cmm.MiddleOp{Defs: []cmm.SubArea{r}},
				cmm.MiddleSafeForeignCall{Uses: []cmm.SubArea{r}},
			},
			Last: cmm.LastExit{},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})
	env := liveness.Analyze(g)
	sizes := areasize.Compute(g, 0)
	ig := interference.Build(g, env, interference.AreaNodeMapper{})

	cfg := stackcfg.Config{WordSize: 8, WordWidth: 64}
	positions := Allocate(cfg, g, cmm.ProcPointMap{}, env, sizes, ig)

	young := cmm.CallAreaYoung{Cont: 0}
	if got := sizes.Get(young); got != cfg.WordSize {
		t.Errorf("safe foreign call should grow its young area by one word, got size %d", got)
	}
	if !positions.Has(young) {
		t.Errorf("safe foreign call's young area should be allocated")
	}
}

// TestProcedurePointBlockAllocatesYoungAreaAtReturnOffset checks
// allocation trigger 3: a procedure point's end-of-block allocation uses
// return_off when it dominates whatever is live.
func TestProcedurePointBlockAllocatesYoungAreaAtReturnOffset(t *testing.T) {
	returnOff := 16
	block := &cmm.Block{
		Id:   0,
		Info: cmm.StackInfo{ReturnOff: &returnOff},
		Tail: cmm.ZTail{Last: cmm.LastExit{}},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})
	env := liveness.Analyze(g)
	sizes := areasize.Compute(g, 0)
	ig := interference.Build(g, env, interference.AreaNodeMapper{})

	positions := Allocate(stackcfg.Config{WordSize: 8, WordWidth: 64}, g,
		cmm.ProcPointMap{0: cmm.ProcPoint{}}, env, sizes, ig)

	if got := positions.MustGet(cmm.CallAreaYoung{Cont: 0}); got != 16 {
		t.Errorf("procedure point's young area should land at return_off=16, got %d", got)
	}
}

func TestAllocAreaOnlyAssignsOnce(t *testing.T) {
	r := cmm.RegSlot{Reg: plainReg("once")}
	sizes := areamap.New()
	sizes.GrowTo(r, 4)
	positions := areamap.New()
	positions[r] = 40
	ig := interference.New[cmm.Area]()

	allocArea(r, 0, sizes, positions, ig, interference.AreaNodeMapper{}, stackcfg.Config{WordSize: 8, WordWidth: 64})

	if got := positions.MustGet(r); got != 40 {
		t.Errorf("alloc_area must not reassign an already-placed area, got %d", got)
	}
}
