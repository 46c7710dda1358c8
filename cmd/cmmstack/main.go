package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/silvergrid/cmmstack/pkg/areamap"
	"github.com/silvergrid/cmmstack/pkg/cmm"
	"github.com/silvergrid/cmmstack/pkg/stackcfg"
	"github.com/silvergrid/cmmstack/pkg/stacklayout"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd builds the cmmstack command tree against explicit out/errOut
// writers so tests can exercise it without touching the real stdout.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cmmstack",
		Short:         "cmmstack inspects stack-layout decisions for a toy CMM procedure fixture",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.AddCommand(newLayoutCmd(out, errOut))
	return rootCmd
}

func newLayoutCmd(out, errOut io.Writer) *cobra.Command {
	var dumpGraph bool
	cmd := &cobra.Command{
		Use:   "layout <fixture.yaml>",
		Short: "run the stack-layout pipeline over a fixture and print the resulting area map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doLayout(args[0], dumpGraph, out, errOut)
		},
	}
	cmd.Flags().BoolVar(&dumpGraph, "dump-graph", false, "also print the manifested instruction stream")
	return cmd
}

func doLayout(filename string, dumpGraph bool, out, errOut io.Writer) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "cmmstack: error reading %s: %v\n", filename, err)
		return err
	}

	var f fixtureProc
	if err := yaml.Unmarshal(data, &f); err != nil {
		fmt.Fprintf(errOut, "cmmstack: error parsing %s: %v\n", filename, err)
		return err
	}

	cfg := stackcfg.Config{WordSize: f.WordSize, WordWidth: f.WordWidth}
	if cfg.WordSize == 0 {
		cfg.WordSize = 8
	}
	if cfg.WordWidth == 0 {
		cfg.WordWidth = 64
	}

	graph, err := f.buildGraph()
	if err != nil {
		fmt.Fprintf(errOut, "cmmstack: error building graph from %s: %v\n", filename, err)
		return err
	}

	env := stacklayout.LiveSlotAnal(graph)
	areaMap := stacklayout.Layout(cfg, cmm.ProcPointMap{}, env, graph, f.ProcArgBytes)
	printAreaMap(out, areaMap)

	if dumpGraph {
		manifested := stacklayout.ManifestSP(cfg, cmm.ProcPointMap{}, areaMap, graph, f.ProcArgBytes)
		fmt.Fprintln(out)
		printGraph(out, manifested)
	}
	return nil
}

func printAreaMap(out io.Writer, areaMap areamap.AreaMap) {
	type row struct {
		name   string
		offset int
	}
	rows := make([]row, 0, len(areaMap))
	for a, off := range areaMap {
		rows = append(rows, row{areaName(a), off})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].offset != rows[j].offset {
			return rows[i].offset < rows[j].offset
		}
		return rows[i].name < rows[j].name
	})
	for _, r := range rows {
		fmt.Fprintf(out, "%s\t%d\n", r.name, r.offset)
	}
}

func printGraph(out io.Writer, graph *cmm.Graph) {
	ids := make([]cmm.BlockId, 0, len(graph.Blocks))
	for id := range graph.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		block := graph.MustBlock(id)
		fmt.Fprintf(out, "block %d:\n", id)
		for _, m := range block.Tail.Middles {
			if adj, ok := m.(cmm.MiddleSPAdjust); ok {
				fmt.Fprintf(out, "  sp += %d\n", adj.Delta)
				continue
			}
			fmt.Fprintf(out, "  %T\n", m)
		}
		fmt.Fprintf(out, "  %T\n", block.Tail.Last)
	}
}

func areaName(a cmm.Area) string {
	switch x := a.(type) {
	case cmm.CallAreaOld:
		return "CallArea(Old)"
	case cmm.CallAreaYoung:
		return fmt.Sprintf("CallArea(Young %d)", x.Cont)
	case cmm.RegSlot:
		return fmt.Sprintf("RegSlot(%s)", x.Reg.Name)
	default:
		return fmt.Sprintf("%v", a)
	}
}
