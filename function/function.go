package function

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/program"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
	"github.com/lxyhome-bit/indirect-jmp/state"
)

// Range is a code-address interval [Lo, Hi).
type Range struct {
	Lo, Hi uint64
}

func (r Range) contains(addr uint64) bool { return addr >= r.Lo && addr < r.Hi }

// Function is the entry block, SCC list and per-jump target-expression
// table built around a subset of a Program's blocks for the duration of
// one analysis pass; blocks themselves remain owned by Program and survive
// after the Function is discarded.
type Function struct {
	Entry uint64
	SCCs  []*SCC

	prog *program.Program

	// TargetExprs holds, for every pc-assignment this function's analysis
	// observed, the BaseStride read back at that jump location -- the
	// input package jumptable consumes.
	TargetExprs map[uint64]domain.BaseStride

	// CodeRanges is the set of address intervals this function's placed
	// blocks actually span (spec.md section 3's "code-range intervals"):
	// what lets jumptable.valid reject a candidate that lands inside the
	// program's overall code range but outside this particular function.
	CodeRanges []Range

	// ThisPoints and LeaDst back spec.md section 4.7's dataflow
	// augmentation: ThisPoints is the set of locations (registers or
	// frame-relative stack slots) known to alias the incoming this
	// pointer; LeaDst is the set of locations currently holding an
	// uncommitted candidate vtable address.
	ThisPoints map[domain.UnitId]bool
	LeaDst     map[domain.UnitId]uint64
	// VfuncTable is latched once a LeaDst candidate is observed flowing
	// into a this-pointer slot at offset 0 mod 8.
	VfuncTable uint64
}

// Build assembles a Function around the block tree already rooted at
// entry, or reports ok=false if entry has no placed block (the function
// is "faulty" per spec.md's func() contract).
func Build(prog *program.Program, entry uint64) (*Function, bool) {
	if _, ok := prog.Block(entry); !ok {
		return nil, false
	}
	sccs := tarjan(entry, prog.Blocks())
	return &Function{
		Entry:       entry,
		SCCs:        sccs,
		prog:        prog,
		TargetExprs: make(map[uint64]domain.BaseStride),
		CodeRanges:  codeRanges(prog, sccs),
		ThisPoints:  make(map[domain.UnitId]bool),
		LeaDst:      make(map[domain.UnitId]uint64),
	}, true
}

// codeRanges computes one Range per placed block reachable from entry,
// spanning from the block's start to the offset just past its last
// instruction.
func codeRanges(prog *program.Program, sccs []*SCC) []Range {
	var out []Range
	for _, scc := range sccs {
		for _, bstart := range scc.Blocks {
			b, ok := prog.Block(bstart)
			if !ok || len(b.Insns) == 0 {
				continue
			}
			last, ok := prog.Insn(b.End())
			if !ok {
				continue
			}
			out = append(out, Range{Lo: b.Start, Hi: last.NextOffset})
		}
	}
	return out
}

// Contains reports whether addr falls inside one of this function's
// placed-block code ranges.
func (f *Function) Contains(addr uint64) bool {
	for _, r := range f.CodeRanges {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

// HasUnresolvedIndirectJump reports whether any instruction in this
// function is an indirect jump whose icfs() entry is still empty -- the
// condition the driver checks before bothering to run Analyze at all.
func (f *Function) HasUnresolvedIndirectJump() bool {
	for _, scc := range f.SCCs {
		for _, bstart := range scc.Blocks {
			b, ok := f.prog.Block(bstart)
			if !ok {
				continue
			}
			for _, off := range b.Insns {
				insn, ok := f.prog.Insn(off)
				if !ok {
					continue
				}
				if insn.Transfer && insn.Indirect && insn.Jump && len(f.prog.Icfs(off)) == 0 {
					return true
				}
			}
		}
	}
	return false
}

func presetMask(prog *program.Program, b *program.Block) uint64 {
	var mask uint64
	for _, off := range b.Insns {
		if insn, ok := prog.Insn(off); ok && insn.Root != nil {
			mask |= insn.Root.PresetRegs()
		}
	}
	return mask
}

// Analyze runs the abstract-interpretation pass over every SCC in reverse
// postorder, per the execution policy spec.md section 4.5 specifies: a
// non-loop SCC executes its blocks once in order; a loop SCC with
// IterationLimit==0 widens every block's preset-register mask to TOP and
// executes once (no fixed-point iteration inside the loop, this engine's
// key scalability move); a loop SCC with IterationLimit==n>0 executes all
// of its blocks n times with no convergence check.
func (f *Function) Analyze(cfg state.Config) {
	live := make(map[uint64]*state.State)
	entryState := state.New(cfg)
	live[f.Entry] = entryState

	for _, scc := range f.SCCs {
		if scc.Loop(f.prog.Blocks()) {
			if cfg.IterationLimit == 0 {
				var mask uint64
				for _, bstart := range scc.Blocks {
					b, _ := f.prog.Block(bstart)
					mask |= presetMask(f.prog, b)
				}
				for _, bstart := range scc.Blocks {
					s := f.stateFor(live, bstart, cfg)
					s.Preset(mask)
				}
				f.executeOnce(scc.Blocks, live, cfg)
			} else {
				for n := 0; n < cfg.IterationLimit; n++ {
					f.executeOnce(scc.Blocks, live, cfg)
				}
			}
		} else {
			f.executeOnce(scc.Blocks, live, cfg)
		}
	}
}

func (f *Function) stateFor(live map[uint64]*state.State, bstart uint64, cfg state.Config) *state.State {
	s, ok := live[bstart]
	if !ok {
		s = state.New(cfg)
		live[bstart] = s
	}
	return s
}

// executeOnce runs every block in order, merging each predecessor's
// committed state in before execution and propagating the result forward
// to every successor.
func (f *Function) executeOnce(blockOrder []uint64, live map[uint64]*state.State, cfg state.Config) {
	for _, bstart := range blockOrder {
		b, ok := f.prog.Block(bstart)
		if !ok {
			continue
		}
		s := f.stateFor(live, bstart, cfg)
		for _, pred := range b.Pred {
			if ps, ok := live[pred.To]; ok && ps != s {
				s.MergeFrom(ps)
			}
		}

		for _, off := range b.Insns {
			insn, ok := f.prog.Insn(off)
			if !ok || insn.Root == nil {
				continue
			}
			loc := off
			state.Execute(insn.Root, s, f.prog.Image, func(src rtl.Expr, val domain.AbsVal) {
				f.TargetExprs[loc] = f.TargetExprs[loc].Join(val.Stride)
			})
			s.CommitInsn()
		}

		for _, e := range b.Succ {
			succState := f.stateFor(live, e.To, cfg)
			if succState != s {
				succState.MergeFrom(s)
			}
		}
	}
}
