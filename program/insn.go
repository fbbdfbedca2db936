// Package program reconstructs a superset CFG from a growing set of
// function entry points: it owns every Insn and Block, resolves direct and
// indirect control flow into block successor edges, and exposes the
// monotone fptr/icf worklists the driver iterates to a fixed point.
package program

import "github.com/lxyhome-bit/indirect-jmp/rtl"

// Cond labels a block successor edge with the condition under which it is
// taken.
type Cond int

const (
	CondNone Cond = iota // unconditional (fall-through, direct jump, call-return)
	CondTrue
	CondFalse
)

// Insn is one lifted instruction, owned by Program and exclusively owning
// its RTL root.
type Insn struct {
	Offset     uint64
	Raw        []byte
	Root       rtl.Stmt
	NextOffset uint64

	Direct       bool
	Indirect     bool
	Call         bool
	Jump         bool
	CondJump     bool
	Transfer     bool
	Halt         bool
	Empty        bool
	Gap          bool
	DirectTarget uint64

	// Parent is the offset of the block this instruction has been placed
	// into; Placed is false until block_dfs assigns it.
	Parent uint64
	Placed bool
}

// ToHalt rewrites this instruction in place to an unconditional halt stub,
// used for a lift failure under lenient policy and for calls to definite
// no-return library functions (spec.md scenario S6).
func (i *Insn) ToHalt() {
	i.Root = rtl.NewExit(rtl.HALT)
	i.Direct = false
	i.Indirect = false
	i.Call = false
	i.Jump = false
	i.CondJump = false
	i.Transfer = true
	i.Halt = true
}
