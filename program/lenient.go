package program

// LenientPolicy replaces the original engine's five independent
// ABORT_MISSING_* compile-time switches with one configuration record, per
// this project's "lenient vs strict as an explicit config, not a compile
// flag" approach: each field controls one class of missing edge
// independently, since the driver may want a different policy per
// analysis stage.
type LenientPolicy struct {
	// AbortOnMissingDirect: a direct jump/call target outside the
	// instruction map. Strict sets Program.Faulty; lenient marks the
	// source Block Faulty and drops the edge. The instruction itself is not
	// rewritten to HALT.
	AbortOnMissingDirect bool
	// AbortOnMissingFallThrough: the fall-through successor of a
	// non-noreturn call, or of a conditional jump's false edge.
	AbortOnMissingFallThrough bool
	// AbortOnMissingNextInsn: block_dfs walking into an offset that does
	// not correspond to any lifted instruction.
	AbortOnMissingNextInsn bool
	// AbortOnMissingIndirect: an indirect jump with an empty icfs() entry
	// at the time its block is built.
	AbortOnMissingIndirect bool
	// AbortOnMissingFunctionEntry: func() called on an fptr with no block.
	AbortOnMissingFunctionEntry bool
}

// Strict is every abort switch enabled: any missing edge is fatal.
func Strict() LenientPolicy {
	return LenientPolicy{true, true, true, true, true}
}

// Lenient is every abort switch disabled: missing edges are patched with a
// HALT stub and the offending block is kept instead of failing the whole
// program, which is this driver's default per spec.md's "component-local
// recovery is preferred" error-handling policy.
func Lenient() LenientPolicy {
	return LenientPolicy{}
}
