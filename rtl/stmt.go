package rtl

import "fmt"

// Stmt is an RTL statement node: Parallel, Sequence, Assign, Call, Clobber,
// Exit or Nop.
type Stmt interface {
	kind() string
	Children() []Stmt
	Clone() Stmt
	String() string
	// PresetRegs returns the bitmask of registers this statement (or any
	// statement nested beneath it) may write.
	PresetRegs() uint64
}

// Parallel executes its statements against a single shared pre-state: every
// child observes the same inputs and their effects commit together, after
// all children have been evaluated.
type Parallel struct {
	Stmts []Stmt
}

func NewParallel(stmts ...Stmt) *Parallel { return &Parallel{Stmts: stmts} }
func (p *Parallel) kind() string          { return "Parallel" }
func (p *Parallel) Children() []Stmt      { return p.Stmts }
func (p *Parallel) Clone() Stmt {
	out := make([]Stmt, len(p.Stmts))
	for i, s := range p.Stmts {
		out[i] = s.Clone()
	}
	return &Parallel{Stmts: out}
}
func (p *Parallel) String() string { return fmt.Sprintf("parallel%v", p.Stmts) }
func (p *Parallel) PresetRegs() uint64 {
	var mask uint64
	for _, s := range p.Stmts {
		mask |= s.PresetRegs()
	}
	return mask
}

// Sequence executes its statements in order, committing pending writes
// between each one, so later statements observe earlier effects.
type Sequence struct {
	Stmts []Stmt
}

func NewSequence(stmts ...Stmt) *Sequence { return &Sequence{Stmts: stmts} }
func (s *Sequence) kind() string          { return "Sequence" }
func (s *Sequence) Children() []Stmt      { return s.Stmts }
func (s *Sequence) Clone() Stmt {
	out := make([]Stmt, len(s.Stmts))
	for i, c := range s.Stmts {
		out[i] = c.Clone()
	}
	return &Sequence{Stmts: out}
}
func (s *Sequence) String() string { return fmt.Sprintf("seq%v", s.Stmts) }
func (s *Sequence) PresetRegs() uint64 {
	var mask uint64
	for _, c := range s.Stmts {
		mask |= c.PresetRegs()
	}
	return mask
}

// Assign writes the value of Src to the location named by Dst. Dst is
// always a Reg, a Mem, or the pseudo-register PC (recording an indirect
// jump target rather than any real write).
type Assign struct {
	Dst, Src Expr
}

func NewAssign(dst, src Expr) *Assign {
	if dst == nil || src == nil {
		panic("rtl: Assign requires non-nil dst and src")
	}
	return &Assign{Dst: dst, Src: src}
}
func (a *Assign) kind() string     { return "Assign" }
func (a *Assign) Children() []Stmt { return nil }
func (a *Assign) Clone() Stmt      { return &Assign{Dst: a.Dst.Clone(), Src: a.Src.Clone()} }
func (a *Assign) String() string   { return fmt.Sprintf("%s := %s", a.Dst, a.Src) }
func (a *Assign) PresetRegs() uint64 {
	if r, ok := a.Dst.(*RegExpr); ok {
		return 1 << uint(r.R)
	}
	return 0
}

// IsPCAssign reports whether this assignment targets the pseudo-register
// PC, i.e. it is the statement form that records a jump target.
func (a *Assign) IsPCAssign() bool {
	r, ok := a.Dst.(*RegExpr)
	return ok && r.R == PC
}

// Call represents a control transfer that is expected to return.
type Call struct {
	Target Expr
}

func NewCall(target Expr) *Call    { return &Call{Target: target} }
func (c *Call) kind() string       { return "Call" }
func (c *Call) Children() []Stmt   { return nil }
func (c *Call) Clone() Stmt        { return &Call{Target: c.Target.Clone()} }
func (c *Call) String() string     { return fmt.Sprintf("call %s", c.Target) }
func (c *Call) PresetRegs() uint64 { return 0 }

// Clobber sets an expression's storage location to an unknown (TOP) value,
// used for side effects the lifter cannot express precisely (e.g. flags
// after a variable-shift).
type Clobber struct {
	E Expr
}

func NewClobber(e Expr) *Clobber    { return &Clobber{E: e} }
func (c *Clobber) kind() string     { return "Clobber" }
func (c *Clobber) Children() []Stmt { return nil }
func (c *Clobber) Clone() Stmt      { return &Clobber{E: c.E.Clone()} }
func (c *Clobber) String() string   { return fmt.Sprintf("clobber(%s)", c.E) }
func (c *Clobber) PresetRegs() uint64 {
	if r, ok := c.E.(*RegExpr); ok {
		return 1 << uint(r.R)
	}
	return 0
}

// Exit ends a function's control flow without a successor edge: RET returns
// to the caller, HALT marks unreachable or intentionally-terminal code
// (e.g. a call to a no-return library function rewritten to a stub).
type Exit struct {
	K ExitKind
}

func NewExit(k ExitKind) *Exit   { return &Exit{K: k} }
func (e *Exit) kind() string     { return "Exit" }
func (e *Exit) Children() []Stmt { return nil }
func (e *Exit) Clone() Stmt      { return &Exit{K: e.K} }
func (e *Exit) String() string {
	if e.K == HALT {
		return "halt"
	}
	return "ret"
}
func (e *Exit) PresetRegs() uint64 { return 0 }

// Nop is a no-effect statement (lifted nops, padding, and prefixes the
// lifter chose not to model).
type Nop struct{}

func NewNop() *Nop                { return &Nop{} }
func (n *Nop) kind() string       { return "Nop" }
func (n *Nop) Children() []Stmt   { return nil }
func (n *Nop) Clone() Stmt        { return &Nop{} }
func (n *Nop) String() string     { return "nop" }
func (n *Nop) PresetRegs() uint64 { return 0 }
