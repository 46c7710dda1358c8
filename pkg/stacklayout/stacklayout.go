// Package stacklayout is the facade of the stack-layout core: it wires
// liveness analysis, area sizing, interference-graph allocation, SP
// manifestation and dead-slot stubbing into four exported operations —
// LiveSlotAnal, Layout, ManifestSP, StubSlotsOnDeath — so a caller never
// has to construct an AreaMap, an interference.Graph, or a
// liveness.BlockEnv by hand.
package stacklayout

import (
	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/areasize"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/interference"
	"github.com/silvergrid/cmmstack/pkg/layout"
	"github.com/silvergrid/cmmstack/pkg/liveness"
	"github.com/silvergrid/cmmstack/pkg/manifest"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
	"github.com/silvergrid/cmmstack/pkg/stub"
)

// LiveSlotAnal runs the backward liveness fixed point over graph.
func LiveSlotAnal(graph *cmm.Graph) liveness.BlockEnv {
	return liveness.Analyze(graph)
}

// Layout sizes every area, builds the interference graph from slotEnv,
// and greedily allocates byte offsets for every area in graph.
// procArgBytes seeds CallArea(Old)'s size.
func Layout(
	cfg stackcfg.Config,
	procPoints cmm.ProcPointMap,
	slotEnv liveness.BlockEnv,
	graph *cmm.Graph,
	procArgBytes int,
) areamap.AreaMap {
	sizes := areasize.Compute(graph, procArgBytes)
	ig := interference.Build(graph, slotEnv, interference.AreaNodeMapper{})
	return layout.Allocate(cfg, graph, procPoints, slotEnv, sizes, ig)
}

// ManifestSP rewrites graph's symbolic stack accesses into SP-relative
// ones and threads SP adjustments through the control-flow graph.
// procArgBytes must be the same value passed to Layout.
func ManifestSP(
	cfg stackcfg.Config,
	procPoints cmm.ProcPointMap,
	areaMap areamap.AreaMap,
	graph *cmm.Graph,
	procArgBytes int,
) *cmm.Graph {
	return manifest.ManifestSP(cfg, graph, procPoints, areaMap, procArgBytes)
}

// StubSlotsOnDeath overwrites every slot with a poison literal the
// instant its last middle-node use dies, using the default width-agnostic
// stub value.
func StubSlotsOnDeath(graph *cmm.Graph, env liveness.BlockEnv) (*cmm.Graph, stub.Coverage) {
	return stub.StubSlotsOnDeath(graph, env, stub.DefaultStubValue)
}
