package manifest

import (
	"testing"

	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
)

func cfg() stackcfg.Config { return stackcfg.Config{WordSize: 8, WordWidth: 64} }

// TestSPSpliceOnDisagreeingBranch is the SP-splice scenario: a block
// ends with a branch to a successor whose entry SP differs by 16; the
// rewritten graph must contain a new intermediate block with exactly one
// SP adjustment of delta -16 (sp_off - sp_on_entry(succ) = 0 - 16),
// branching on to the original successor.
//
// The branch target carries arg_bytes=0 (so its sp_on_entry is
// areaMap[CallArea(Young 1)]+0 = 16) while the predecessor's own
// sp_on_entry (procedure entry) is 0, forcing a -16 adjustment on the
// edge — but since it's an unconditional LastBranch the adjustment is
// emitted inline, not spliced, per the branch-specific case. To force an
// actual splice we instead end the block with a LastCond, whose
// "any other last" handling always splices.
func TestSPSpliceOnDisagreeingBranch(t *testing.T) {
	zero := 0
	succBlock := &cmm.Block{
		Id:   1,
		Info: cmm.StackInfo{ArgBytes: &zero},
		Tail: cmm.ZTail{Last: cmm.LastExit{}},
	}
	entry := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Last: cmm.LastCond{True: 1, False: 1},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{entry, succBlock})

	areaMap := areamap.New()
	areaMap[cmm.CallAreaOld{}] = 0
	areaMap[cmm.CallAreaYoung{Cont: 1}] = 16

	out := ManifestSP(cfg(), g, cmm.ProcPointMap{}, areaMap, 0)

	entryNow := out.MustBlock(0)
	cond, ok := entryNow.Tail.Last.(cmm.LastCond)
	if !ok {
		t.Fatalf("entry's last should still be a LastCond, got %T", entryNow.Tail.Last)
	}
	if cond.True == 1 || cond.False == 1 {
		t.Fatalf("both edges to block 1 should have been redirected through spliced blocks")
	}

	spliced := out.MustBlock(cond.True)
	if len(spliced.Tail.Middles) != 1 {
		t.Fatalf("spliced block should carry exactly one instruction, got %d", len(spliced.Tail.Middles))
	}
	adj, ok := spliced.Tail.Middles[0].(cmm.MiddleSPAdjust)
	if !ok {
		t.Fatalf("spliced instruction should be an SP adjustment, got %T", spliced.Tail.Middles[0])
	}
	if adj.Delta != -16 {
		t.Errorf("expected a delta of -16 (sp_off 0 -> want 16), got %d", adj.Delta)
	}
	br, ok := spliced.Tail.Last.(cmm.LastBranch)
	if !ok || br.Target != 1 {
		t.Fatalf("spliced block should branch on to the original successor")
	}
}

func TestUnconditionalBranchNoOpWhenSPAgrees(t *testing.T) {
	succBlock := &cmm.Block{Id: 1, Tail: cmm.ZTail{Last: cmm.LastExit{}}}
	entry := &cmm.Block{Id: 0, Tail: cmm.ZTail{Last: cmm.LastBranch{Target: 1}}}
	g := cmm.NewGraph(0, []*cmm.Block{entry, succBlock})

	areaMap := areamap.New()
	areaMap[cmm.CallAreaOld{}] = 0

	// succBlock has no arg_bytes and is not in the procedure-point map,
	// so it must be reached via a single predecessor recorded there.
	procPoints := cmm.ProcPointMap{1: cmm.ReachedBy{Preds: []cmm.BlockId{0}}}

	out := ManifestSP(cfg(), g, procPoints, areaMap, 0)

	entryNow := out.MustBlock(0)
	if len(entryNow.Tail.Middles) != 0 {
		t.Errorf("no adjustment should be emitted when entry and successor agree on SP, got %v", entryNow.Tail.Middles)
	}
}

func TestStackSlotExprRewrittenToSPRel(t *testing.T) {
	area := cmm.CallAreaOld{}
	block := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Middles: []cmm.Middle{
				cmm.MiddleOp{Exprs: []cmm.Expr{cmm.StackSlotExpr{Area: area, Offset: 8}}},
			},
			Last: cmm.LastExit{},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})

	areaMap := areamap.New()
	areaMap[area] = 0

	out := ManifestSP(cfg(), g, cmm.ProcPointMap{}, areaMap, 0)

	rewritten := out.MustBlock(0).Tail.Middles[0]
	exprs := cmm.MiddleExprs(rewritten)
	rel, ok := exprs[0].(cmm.SPRelExpr)
	if !ok {
		t.Fatalf("StackSlotExpr should have been rewritten to SPRelExpr, got %T", exprs[0])
	}
	if rel.Delta != -8 {
		t.Errorf("expected delta -8 (sp_off 0 - (area 0 + offset 8)), got %d", rel.Delta)
	}
}

func TestHighWaterMarkSubstituted(t *testing.T) {
	used := cmm.SubArea{Area: cmm.CallAreaOld{}, Hi: 24, Width: 24}
	block := &cmm.Block{
		Id: 0,
		Tail: cmm.ZTail{
			Middles: []cmm.Middle{
				cmm.MiddleOp{Uses: []cmm.SubArea{used}, Exprs: []cmm.Expr{cmm.HighWaterMarkExpr{}}},
			},
			Last: cmm.LastExit{},
		},
	}
	g := cmm.NewGraph(0, []*cmm.Block{block})

	areaMap := areamap.New()
	areaMap[cmm.CallAreaOld{}] = 0

	out := ManifestSP(cfg(), g, cmm.ProcPointMap{}, areaMap, 0)

	exprs := cmm.MiddleExprs(out.MustBlock(0).Tail.Middles[0])
	lit, ok := exprs[0].(cmm.Lit)
	if !ok {
		t.Fatalf("HighWaterMarkExpr should have been rewritten to Lit, got %T", exprs[0])
	}
	if lit.Value != 24 {
		t.Errorf("expected high water mark 24, got %d", lit.Value)
	}
}

func TestProcedurePointFanInPanics(t *testing.T) {
	block := &cmm.Block{Id: 1, Tail: cmm.ZTail{Last: cmm.LastExit{}}}
	entry := &cmm.Block{Id: 0, Tail: cmm.ZTail{Last: cmm.LastBranch{Target: 1}}}
	g := cmm.NewGraph(0, []*cmm.Block{entry, block})

	areaMap := areamap.New()
	areaMap[cmm.CallAreaOld{}] = 0
	procPoints := cmm.ProcPointMap{1: cmm.ReachedBy{Preds: []cmm.BlockId{0, 2}}}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic on procedure-point fan-in")
		}
		le, ok := r.(*cmm.LayoutError)
		if !ok || le.Kind != cmm.ErrProcPointFanIn {
			t.Errorf("expected ErrProcPointFanIn, got %v", r)
		}
	}()
	ManifestSP(cfg(), g, procPoints, areaMap, 0)
}

func TestCallLastEmitsAdjustmentToContinuation(t *testing.T) {
	k := cmm.BlockId(1)
	argBytes := 16 // must match the call's outgoing bytes for a well-formed graph
	cont := &cmm.Block{Id: 1, Info: cmm.StackInfo{ArgBytes: &argBytes}, Tail: cmm.ZTail{Last: cmm.LastExit{}}}
	entry := &cmm.Block{
		Id:   0,
		Tail: cmm.ZTail{Last: cmm.LastCall{Continuation: &k, OutgoingBytes: 16}},
	}
	g := cmm.NewGraph(0, []*cmm.Block{entry, cont})

	areaMap := areamap.New()
	areaMap[cmm.CallAreaOld{}] = 0
	areaMap[cmm.CallAreaYoung{Cont: 1}] = 16

	out := ManifestSP(cfg(), g, cmm.ProcPointMap{}, areaMap, 0)

	entryNow := out.MustBlock(0)
	if len(entryNow.Tail.Middles) != 1 {
		t.Fatalf("expected one SP adjustment before the call, got %d", len(entryNow.Tail.Middles))
	}
	adj := entryNow.Tail.Middles[0].(cmm.MiddleSPAdjust)
	if adj.Delta != -32 {
		t.Errorf("expected delta -32 (sp_off 0 -> want areaMap[young]+outgoing = 16+16), got %d", adj.Delta)
	}
}
