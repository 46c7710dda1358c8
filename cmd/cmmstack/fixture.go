package main

import (
	"fmt"

	"github.com/silvergrid/cmmstack/pkg/cmm"
)

// fixtureSubArea is the textual form of a cmm.SubArea: a named register
// spilled into Hi bytes wide Width within its own RegSlot.
type fixtureSubArea struct {
	Reg       string `yaml:"reg"`
	Hi        int    `yaml:"hi"`
	Width     int    `yaml:"width"`
	GCPointer bool   `yaml:"gc_pointer,omitempty"`
}

func (f fixtureSubArea) toSubArea() cmm.SubArea {
	reg := cmm.LocalReg{Name: f.Reg, Type: cmm.RegType{Name: f.Reg, Width: f.Width, GCPointer: f.GCPointer}}
	return cmm.SubArea{Area: cmm.RegSlot{Reg: reg}, Hi: f.Hi, Width: f.Width}
}

// fixtureLast is the textual form of a cmm.Last. Kind selects the
// variant; the remaining fields are interpreted accordingly.
type fixtureLast struct {
	Kind             string `yaml:"kind"`
	Target           int    `yaml:"target,omitempty"`
	True             int    `yaml:"true,omitempty"`
	False            int    `yaml:"false,omitempty"`
	Targets          []int  `yaml:"targets,omitempty"`
	Continuation     *int   `yaml:"continuation,omitempty"`
	OutgoingBytes    int    `yaml:"outgoing_bytes,omitempty"`
	UpdateFrameBytes *int   `yaml:"update_frame_bytes,omitempty"`
}

func (f fixtureLast) toLast() (cmm.Last, error) {
	switch f.Kind {
	case "exit", "":
		return cmm.LastExit{}, nil
	case "branch":
		return cmm.LastBranch{Target: cmm.BlockId(f.Target)}, nil
	case "cond":
		return cmm.LastCond{True: cmm.BlockId(f.True), False: cmm.BlockId(f.False)}, nil
	case "switch":
		targets := make([]cmm.BlockId, len(f.Targets))
		for i, t := range f.Targets {
			targets[i] = cmm.BlockId(t)
		}
		return cmm.LastSwitch{Targets: targets}, nil
	case "call":
		var cont *cmm.BlockId
		if f.Continuation != nil {
			c := cmm.BlockId(*f.Continuation)
			cont = &c
		}
		return cmm.LastCall{
			Continuation:     cont,
			OutgoingBytes:    f.OutgoingBytes,
			UpdateFrameBytes: f.UpdateFrameBytes,
		}, nil
	default:
		return nil, fmt.Errorf("unknown last kind %q", f.Kind)
	}
}

// fixtureBlock is the textual form of a cmm.Block. uses/defs describe a
// single MiddleOp (a MiddleSafeForeignCall when safe_foreign_call is
// set) standing in for that block's straight-line body — the
// fixture format has no room for more than one op per block, which is
// enough to drive the layout pipeline end to end.
type fixtureBlock struct {
	ID              int              `yaml:"id"`
	ArgBytes        *int             `yaml:"arg_bytes,omitempty"`
	ReturnOff       *int             `yaml:"return_off,omitempty"`
	SafeForeignCall bool             `yaml:"safe_foreign_call,omitempty"`
	Uses            []fixtureSubArea `yaml:"uses,omitempty"`
	Defs            []fixtureSubArea `yaml:"defs,omitempty"`
	Last            fixtureLast      `yaml:"last"`
}

// fixtureProc is the top-level textual procedure a fixture file describes.
type fixtureProc struct {
	WordSize     int            `yaml:"word_size,omitempty"`
	WordWidth    int            `yaml:"word_width,omitempty"`
	ProcArgBytes int            `yaml:"proc_arg_bytes,omitempty"`
	Entry        int            `yaml:"entry"`
	Blocks       []fixtureBlock `yaml:"blocks"`
}

func (f fixtureProc) buildGraph() (*cmm.Graph, error) {
	blocks := make([]*cmm.Block, 0, len(f.Blocks))
	for _, fb := range f.Blocks {
		var uses, defs []cmm.SubArea
		for _, u := range fb.Uses {
			uses = append(uses, u.toSubArea())
		}
		for _, d := range fb.Defs {
			defs = append(defs, d.toSubArea())
		}

		var middles []cmm.Middle
		if len(uses) > 0 || len(defs) > 0 {
			if fb.SafeForeignCall {
				middles = append(middles, cmm.MiddleSafeForeignCall{Uses: uses, Defs: defs})
			} else {
				middles = append(middles, cmm.MiddleOp{Uses: uses, Defs: defs})
			}
		}

		last, err := fb.Last.toLast()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", fb.ID, err)
		}

		blocks = append(blocks, &cmm.Block{
			Id:   cmm.BlockId(fb.ID),
			Info: cmm.StackInfo{ArgBytes: fb.ArgBytes, ReturnOff: fb.ReturnOff},
			Tail: cmm.ZTail{Middles: middles, Last: last},
		})
	}
	return cmm.NewGraph(cmm.BlockId(f.Entry), blocks), nil
}
