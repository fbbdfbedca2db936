package state

import (
	"github.com/lxyhome-bit/indirect-jmp/domain"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

// PCAssignHook is invoked whenever Execute evaluates an Assign whose
// destination is the pseudo-register PC, i.e. the point at which a jump
// target expression is discovered. Src is the un-evaluated expression
// (package jumptable walks it structurally) and Val is what it evaluated
// to under the current state.
type PCAssignHook func(src rtl.Expr, val domain.AbsVal)

// Execute evaluates a statement against s, honouring the commit-ordering
// contract: Sequence commits between each child statement, Parallel
// evaluates every child against the same pre-state and only commits once,
// after all children have run. mr resolves static-memory reads and onPC
// receives every pc-register assignment (may be nil).
func Execute(st rtl.Stmt, s *State, mr MemReader, onPC PCAssignHook) {
	switch x := st.(type) {
	case *rtl.Sequence:
		for _, c := range x.Stmts {
			Execute(c, s, mr, onPC)
			s.CommitInsn()
		}
	case *rtl.Parallel:
		// Evaluate every child's RHS against the untouched pre-state first,
		// then apply all writes, so no child observes a sibling's effect.
		type write struct {
			dst  domain.UnitId
			addr *domain.AbsVal // non-nil for a memory destination
			val  domain.AbsVal
		}
		var writes []write
		for _, c := range x.Stmts {
			a, ok := c.(*rtl.Assign)
			if !ok {
				Execute(c, s, mr, onPC)
				continue
			}
			val := Eval(a.Src, s, mr)
			if a.IsPCAssign() {
				if onPC != nil {
					onPC(a.Src, val)
				}
				continue
			}
			switch d := a.Dst.(type) {
			case *rtl.RegExpr:
				writes = append(writes, write{dst: RegUnit(d.R), val: val})
			case *rtl.Mem:
				addr := Eval(d.Addr, s, mr)
				writes = append(writes, write{addr: &addr, val: val})
			}
		}
		for _, w := range writes {
			if w.addr != nil {
				executeMemWrite(*w.addr, w.val, s)
				continue
			}
			s.Update(w.dst, w.val)
		}
	case *rtl.Assign:
		executeAssign(x, s, mr, onPC)
	case *rtl.Call:
		_ = Eval(x.Target, s, mr)
		// Callee-saved registers survive a call; everything else the ABI
		// allows a callee to clobber becomes Top (spec.md 4.1's register
		// initial-value rule, applied at the call boundary too).
		clobberCallClobbered(s)
	case *rtl.Clobber:
		if r, ok := x.E.(*rtl.RegExpr); ok {
			s.Clobber(RegUnit(r.R))
		}
	case *rtl.Exit, *rtl.Nop:
		// no state effect
	}
}

func executeAssign(a *rtl.Assign, s *State, mr MemReader, onPC PCAssignHook) {
	val := Eval(a.Src, s, mr)

	if a.IsPCAssign() {
		if onPC != nil {
			onPC(a.Src, val)
		}
		return
	}

	switch dst := a.Dst.(type) {
	case *rtl.RegExpr:
		// FLAGS keeps its Init-callback initial value available even after
		// a strong update is recorded, per the 4.1 initial-value exception;
		// Read already falls back to Init on first reference so nothing
		// special is needed here beyond a normal strong update.
		s.Update(RegUnit(dst.R), val)
	case *rtl.Mem:
		addr := Eval(dst.Addr, s, mr)
		executeMemWrite(addr, val, s)
	}
}

func executeMemWrite(addr domain.AbsVal, val domain.AbsVal, s *State) {
	if sym, lo, hi := addr.LH.Symbol(); addr.LH.IsSymbolic() && lo == hi {
		region := regionOf(sym.Kind)
		id := domain.UnitId{Region: region, Index: lo}
		s.Update(id, val)
		return
	}
	if addr.LH.IsSymbolic() {
		sym, lo, hi := addr.LH.Symbol()
		region := regionOf(sym.Kind)
		s.UpdateRange(domain.UnitId{Region: region, Index: lo}, domain.UnitId{Region: region, Index: hi}, 0, val)
		return
	}
	// Unbounded address: cannot name a region to weak-update, so the
	// surrounding analysis must treat this conservatively (program package
	// decides whether that forces the block faulty under strict policy).
}

func regionOf(k domain.SymKind) domain.Region {
	switch k {
	case domain.SymStack:
		return domain.STACK
	case domain.SymStatic:
		return domain.STATIC
	case domain.SymHeap:
		return domain.HEAP
	default:
		return domain.STATIC
	}
}

func clobberCallClobbered(s *State) {
	saved := map[rtl.Reg]bool{}
	for _, r := range rtl.CalleeSaved {
		saved[r] = true
	}
	saved[rtl.SP] = true
	for _, r := range []rtl.Reg{rtl.AX, rtl.CX, rtl.DX, rtl.SI, rtl.DI, rtl.R8, rtl.R9, rtl.R10, rtl.R11} {
		if !saved[r] {
			s.Clobber(RegUnit(r))
		}
	}
}
