package disasm

import "os/exec"

// SubprocessLifter spawns an external lifter binary, mirroring the
// original framework's process-global OCaml lifter (Framework::setup's
// caml_startup/ocaml_load) but scoped to one explicit handle per spec.md
// section 9's "global state" design note: Load corresponds to
// ocaml_load's one-time automaton initialisation, Lift to ocaml_lift's
// per-function disassembly-to-RTL pass.
type SubprocessLifter struct {
	// Path is the external lifter binary to invoke.
	Path string
	// loaded guards against re-initialisation: the external lifter's
	// automaton state is process-global and does not support being
	// reloaded, matching the original's documented constraint.
	loaded bool
}

func NewSubprocessLifter(path string) *SubprocessLifter {
	return &SubprocessLifter{Path: path}
}

func (l *SubprocessLifter) Load(autoFile string) error {
	if l.loaded {
		return nil
	}
	cmd := exec.Command(l.Path, "-load", autoFile)
	if err := cmd.Run(); err != nil {
		return err
	}
	l.loaded = true
	return nil
}

func (l *SubprocessLifter) Lift(fAsm, fRtl string) error {
	cmd := exec.Command(l.Path, "-lift", fAsm, "-o", fRtl)
	return cmd.Run()
}
