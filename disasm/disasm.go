// Package disasm models the two external collaborators spec.md section 6
// describes only by their contracts: a Disassembler that turns raw code
// bytes into aligned assembly-text/raw-byte files, and a Lifter that turns
// that disassembly into one RTL S-expression per line. Both are traits with
// a production implementation and a fixture-replay implementation for
// tests, per this project's "external lifter coupling" design note.
package disasm

// Disassembler produces two aligned files from a binary's code range:
// fAsm lines have the form ".L<offset> <itc>"; fRaw lines are
// space-separated hex byte pairs; the two files have equal line count.
type Disassembler interface {
	Disassemble(bin, fAsm, fRaw string) error
}

// Lifter consumes an automaton specification once (Load) and then lifts
// disassembly into RTL (Lift), aligned line-by-line with fAsm.
type Lifter interface {
	Load(autoFile string) error
	Lift(fAsm, fRtl string) error
}
