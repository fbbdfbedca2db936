package domain

// Taint is a 32-bit bitmask tracking which input bits may reach a value.
// Zero means "known to originate from no tracked input" (e.g. a function
// argument, before anything is learned about it); AllOnes means "unknown /
// any input bit may reach here".
type Taint uint32

const AllOnes Taint = 0xffffffff

func TaintBottom() Taint { return 0 }
func TaintTop() Taint    { return AllOnes }

// Join is bitwise OR: the union of bits that might reach the value via
// either path. Commutative, idempotent, and join(x, 0) == x.
func (t Taint) Join(o Taint) Taint { return t | o }

// Widen dominates Join; since Taint's lattice height is fixed at 32, a
// plain join already reaches Top in at most 32 steps, so Widen needs no
// extra promotion.
func (t Taint) Widen(o Taint) Taint { return t.Join(o) }
