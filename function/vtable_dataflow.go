package function

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

// TrackVtableDataflow runs the dataflow-augmentation scan spec.md section
// 4.7 describes over every instruction this function owns, in the same
// entry-first block order Analyze walks. It needs no abstract-interpretation
// state: a this-pointer alias or lea-constant candidate is either present
// syntactically at that assignment or it isn't. This matters because a
// typical constructor has no loop and no indirect jump for Analyze to ever
// run on, so the driver calls this unconditionally, not gated behind
// HasUnresolvedIndirectJump.
func (f *Function) TrackVtableDataflow() {
	for _, scc := range f.SCCs {
		for _, bstart := range scc.Blocks {
			b, ok := f.prog.Block(bstart)
			if !ok {
				continue
			}
			for _, off := range b.Insns {
				insn, ok := f.prog.Insn(off)
				if !ok || insn.Root == nil {
					continue
				}
				walkAssigns(insn.Root, f.trackVtableDataflow)
			}
		}
	}
}

// walkAssigns visits every (dst, src) pair in a statement tree in
// structural order -- the same recursion executeOnce's instruction loop
// uses -- without touching any abstract state.
func walkAssigns(st rtl.Stmt, visit func(dst, src rtl.Expr)) {
	switch x := st.(type) {
	case *rtl.Sequence:
		for _, c := range x.Stmts {
			walkAssigns(c, visit)
		}
	case *rtl.Parallel:
		for _, c := range x.Stmts {
			walkAssigns(c, visit)
		}
	case *rtl.Assign:
		if !x.IsPCAssign() {
			visit(x.Dst, x.Src)
		}
	}
}

// trackVtableDataflow applies one assignment's worth of spec.md section
// 4.7's rule: the incoming di register aliasing a this-pointer slot, a
// plain constant load (a lea resolved to its absolute address by the
// lifter, indistinguishable here from `mov reg, imm`) aliasing a candidate
// vtable address, and a candidate observed flowing into a this-pointer
// slot at offset 0 mod 8 latching VfuncTable.
func (f *Function) trackVtableDataflow(dst, src rtl.Expr) {
	dstLoc, dstOk := locOf(dst)

	if r, ok := src.(*rtl.RegExpr); ok && r.R == rtl.DI {
		if dstOk {
			f.ThisPoints[dstLoc] = true
		}
		return
	}

	if k, ok := src.(*rtl.Const); ok && k.K == rtl.ConstInteger && dstOk {
		f.LeaDst[dstLoc] = uint64(k.Imm)
	}

	mem, ok := dst.(*rtl.Mem)
	if !ok {
		return
	}
	base, off, ok := memBaseOffset(mem.Addr)
	if !ok || off%8 != 0 {
		return
	}
	if !f.ThisPoints[domain.UnitId{Region: domain.REGISTER, Index: int64(base)}] {
		return
	}
	if candidate, ok := f.constCandidate(src); ok {
		f.VfuncTable = candidate
	}
}

// constCandidate resolves src to a known vtable-address candidate: either a
// constant right there, or a location previously recorded in LeaDst.
func (f *Function) constCandidate(src rtl.Expr) (uint64, bool) {
	if k, ok := src.(*rtl.Const); ok && k.K == rtl.ConstInteger {
		return uint64(k.Imm), true
	}
	if loc, ok := locOf(src); ok {
		if v, ok := f.LeaDst[loc]; ok {
			return v, true
		}
	}
	return 0, false
}

// locOf names the UnitId an expression refers to: a register, or a
// frame-relative stack slot (base BP/SP, constant offset). Anything else
// -- a computed heap/static address, an arbitrary register-indexed memory
// operand -- returns ok=false; this pass only needs the handful of shapes a
// constructor's prologue actually uses.
func locOf(e rtl.Expr) (domain.UnitId, bool) {
	switch x := e.(type) {
	case *rtl.RegExpr:
		return domain.UnitId{Region: domain.REGISTER, Index: int64(x.R)}, true
	case *rtl.Mem:
		r, off, ok := memBaseOffset(x.Addr)
		if !ok || (r != rtl.BP && r != rtl.SP) {
			return domain.UnitId{}, false
		}
		return domain.UnitId{Region: domain.STACK, Index: off}, true
	}
	return domain.UnitId{}, false
}

// memBaseOffset decomposes `reg`, `reg+const` or `reg-const` into its base
// register and constant offset.
func memBaseOffset(addr rtl.Expr) (rtl.Reg, int64, bool) {
	switch x := addr.(type) {
	case *rtl.RegExpr:
		return x.R, 0, true
	case *rtl.Binary:
		if x.Op != rtl.Plus && x.Op != rtl.Minus {
			return 0, 0, false
		}
		r, regOk := x.A.(*rtl.RegExpr)
		k, kOk := x.B.(*rtl.Const)
		if !regOk || !kOk || k.K != rtl.ConstInteger {
			return 0, 0, false
		}
		off := k.Imm
		if x.Op == rtl.Minus {
			off = -off
		}
		return r.R, off, true
	}
	return 0, 0, false
}
