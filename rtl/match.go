package rtl

// EqualExpr implements structural equality between two expression trees
// under the given MatchKind. PARTIAL treats any Hole() node in pattern as
// matching anything; RELAXED ignores Mode; STRICT requires identical kind,
// mode and operands all the way down; OPCODE compares only the outermost
// tag.
func EqualExpr(kind MatchKind, e, pattern Expr) bool {
	if kind == PARTIAL {
		if c, ok := pattern.(*Const); ok && c.K == ConstAny {
			return true
		}
	}
	if e.kind() != pattern.kind() {
		return false
	}
	if kind == OPCODE {
		return true
	}
	if kind == STRICT && e.Mode() != pattern.Mode() {
		return false
	}

	switch a := e.(type) {
	case *Const:
		b := pattern.(*Const)
		if kind == STRICT || kind == RELAXED {
			return a.K == b.K && a.Imm == b.Imm
		}
		return true
	case *RegExpr:
		b := pattern.(*RegExpr)
		return a.R == b.R
	case *NoType:
		b := pattern.(*NoType)
		return a.Text == b.Text
	}

	ac, bc := e.Children(), pattern.Children()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !EqualExpr(kind, ac[i], bc[i]) {
			return false
		}
	}
	// Node-specific scalar fields beyond children, for STRICT only.
	if kind == STRICT {
		switch a := e.(type) {
		case *SubReg:
			if a.ByteNum != pattern.(*SubReg).ByteNum {
				return false
			}
		case *Conversion:
			b := pattern.(*Conversion)
			if a.Op != b.Op || a.Size != b.Size || a.Pos != b.Pos {
				return false
			}
		case *Unary:
			if a.Op != pattern.(*Unary).Op {
				return false
			}
		case *Binary:
			if a.Op != pattern.(*Binary).Op {
				return false
			}
		case *Compare:
			if a.Op != pattern.(*Compare).Op {
				return false
			}
		}
	}
	return true
}

// FindExpr returns every subtree of e (including e itself) matching pattern
// under kind, in pre-order.
func FindExpr(kind MatchKind, e Expr, pattern Expr) []Expr {
	var out []Expr
	var walk func(Expr)
	walk = func(x Expr) {
		if EqualExpr(kind, x, pattern) {
			out = append(out, x)
		}
		for _, c := range x.Children() {
			walk(c)
		}
	}
	walk(e)
	return out
}

// FindExprInStmt returns every expression subtree anywhere within st
// (assignment operands, call targets, clobber operands, recursing through
// Sequence/Parallel) matching pattern under kind, in statement order.
func FindExprInStmt(kind MatchKind, st Stmt, pattern Expr) []Expr {
	var out []Expr
	var walk func(Stmt)
	walk = func(s Stmt) {
		switch x := s.(type) {
		case *Assign:
			out = append(out, FindExpr(kind, x.Dst, pattern)...)
			out = append(out, FindExpr(kind, x.Src, pattern)...)
		case *Call:
			out = append(out, FindExpr(kind, x.Target, pattern)...)
		case *Clobber:
			out = append(out, FindExpr(kind, x.E, pattern)...)
		}
		for _, c := range s.Children() {
			walk(c)
		}
	}
	walk(st)
	return out
}

// ContainsExpr reports whether sub occurs anywhere within e under STRICT
// equality.
func ContainsExpr(e, sub Expr) bool {
	return len(FindExpr(STRICT, e, sub)) > 0
}

// SimplifyExpr performs constant folding and Conversion normalisation: a
// ZeroExtend/SignExtend/Truncate applied to a Const is replaced by the
// folded Const, and arithmetic on two Consts is folded when the operator is
// defined over integers.
func SimplifyExpr(e Expr) Expr {
	children := e.Children()
	simplified := make([]Expr, len(children))
	changed := false
	for i, c := range children {
		simplified[i] = SimplifyExpr(c)
		if simplified[i] != c {
			changed = true
		}
	}
	var cur Expr = e
	if changed {
		switch x := e.(type) {
		case *Mem:
			cur = &Mem{M: x.M, Addr: simplified[0]}
		case *SubReg:
			cur = &SubReg{M: x.M, Inner: simplified[0], ByteNum: x.ByteNum}
		case *IfElse:
			cur = &IfElse{M: x.M, Cmp: simplified[0], Then: simplified[1], Else: simplified[2]}
		case *Conversion:
			cur = &Conversion{Op: x.Op, M: x.M, Inner: simplified[0], Size: x.Size, Pos: x.Pos}
		case *Unary:
			cur = &Unary{Op: x.Op, M: x.M, E: simplified[0]}
		case *Binary:
			cur = &Binary{Op: x.Op, M: x.M, A: simplified[0], B: simplified[1]}
		case *Compare:
			cur = &Compare{Op: x.Op, M: x.M, E: simplified[0]}
		}
	}

	switch x := cur.(type) {
	case *Binary:
		ac, aok := x.A.(*Const)
		bc, bok := x.B.(*Const)
		if aok && bok && ac.K == ConstInteger && bc.K == ConstInteger {
			if v, ok := foldBinary(x.Op, ac.Imm, bc.Imm); ok {
				return &Const{K: ConstInteger, M: x.M, Imm: v}
			}
		}
	case *Unary:
		ac, ok := x.E.(*Const)
		if ok && ac.K == ConstInteger {
			if v, ok := foldUnary(x.Op, ac.Imm); ok {
				return &Const{K: ConstInteger, M: x.M, Imm: v}
			}
		}
	case *Conversion:
		ac, ok := x.Inner.(*Const)
		if ok && ac.K == ConstInteger {
			switch x.Op {
			case ZeroExtend, SignExtend, Truncate, STruncate, UTruncate:
				return &Const{K: ConstInteger, M: x.M, Imm: truncImm(ac.Imm, x.M)}
			}
		}
	}
	return cur
}

func truncImm(v int64, m Mode) int64 {
	sz := m.Size()
	if sz <= 0 || sz >= 8 {
		return v
	}
	mask := int64(1)<<uint(sz*8) - 1
	return v & mask
}

func foldBinary(op BinaryOp, a, b int64) (int64, bool) {
	switch op {
	case Plus:
		return a + b, true
	case Minus:
		return a - b, true
	case Mult:
		return a * b, true
	case And:
		return a & b, true
	case Ior:
		return a | b, true
	case Xor:
		return a ^ b, true
	case AShift:
		return a << uint(b), true
	case AShiftRT:
		return a >> uint(b), true
	case Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case Mod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	default:
		return 0, false
	}
}

func foldUnary(op UnaryOp, a int64) (int64, bool) {
	switch op {
	case Neg:
		return -a, true
	case Not:
		return ^a, true
	default:
		return 0, false
	}
}
