package lift

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lxyhome-bit/indirect-jmp/program"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

func TestParseStmtAssignRegFromConst(t *testing.T) {
	st, err := ParseStmt("(assign (reg DI rax) (const DI 0x2a))")
	if err != nil {
		t.Fatalf("ParseStmt: %v", err)
	}
	a, ok := st.(*rtl.Assign)
	if !ok {
		t.Fatalf("ParseStmt returned %T, want *rtl.Assign", st)
	}
	dst, ok := a.Dst.(*rtl.RegExpr)
	if !ok || dst.R != rtl.AX {
		t.Fatalf("Dst = %v, want reg AX", a.Dst)
	}
	src, ok := a.Src.(*rtl.Const)
	if !ok || src.Imm != 0x2a {
		t.Fatalf("Src = %v, want const 0x2a", a.Src)
	}
}

func TestParseStmtCall(t *testing.T) {
	st, err := ParseStmt("(call (const DI 0x5000))")
	if err != nil {
		t.Fatalf("ParseStmt: %v", err)
	}
	c, ok := st.(*rtl.Call)
	if !ok {
		t.Fatalf("ParseStmt returned %T, want *rtl.Call", st)
	}
	target, ok := c.Target.(*rtl.Const)
	if !ok || target.Imm != 0x5000 {
		t.Fatalf("Target = %v, want const 0x5000", c.Target)
	}
}

func TestParseStmtUnknownHeadIsError(t *testing.T) {
	if _, err := ParseStmt("(frobnicate)"); err == nil {
		t.Fatalf("ParseStmt should reject an unrecognised statement head")
	}
}

func TestParseStmtEmptyLineIsNop(t *testing.T) {
	st, err := ParseStmt("   ")
	if err != nil {
		t.Fatalf("ParseStmt: %v", err)
	}
	if _, ok := st.(*rtl.Nop); !ok {
		t.Fatalf("ParseStmt(blank) = %T, want *rtl.Nop", st)
	}
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var buf []byte
	for _, l := range lines {
		buf = append(buf, []byte(l+"\n")...)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestBuildProgramClassifiesDirectJumpAndCall(t *testing.T) {
	dir := t.TempDir()
	fAsm := filepath.Join(dir, "f.asm")
	fRaw := filepath.Join(dir, "f.raw")
	fRtl := filepath.Join(dir, "f.rtl")

	writeLines(t, fAsm, ".L1000 jmp", ".L1002 call")
	writeLines(t, fRaw, "90 90", "e8 00 00 00 00")
	writeLines(t, fRtl,
		"(assign (reg DI pc) (const DI 0x2000))",
		"(call (const DI 0x5000))",
	)

	prog := program.New(nil, program.Lenient())
	if err := BuildProgram(prog, fAsm, fRaw, fRtl, nil); err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}

	jmp, ok := prog.Insn(0x1000)
	if !ok {
		t.Fatalf("no instruction at 0x1000")
	}
	if !jmp.Transfer || !jmp.Jump || !jmp.Direct || jmp.DirectTarget != 0x2000 {
		t.Fatalf("jmp insn = %+v, want a direct jump to 0x2000", jmp)
	}
	if jmp.NextOffset != 0x1002 {
		t.Fatalf("jmp.NextOffset = %#x, want 0x1002 (2 raw bytes)", jmp.NextOffset)
	}

	call, ok := prog.Insn(0x1002)
	if !ok {
		t.Fatalf("no instruction at 0x1002")
	}
	if !call.Call || !call.Direct || call.DirectTarget != 0x5000 {
		t.Fatalf("call insn = %+v, want a direct call to 0x5000", call)
	}
}

func TestBuildProgramHaltsCallsToNoreturnFunctions(t *testing.T) {
	dir := t.TempDir()
	fAsm := filepath.Join(dir, "f.asm")
	fRaw := filepath.Join(dir, "f.raw")
	fRtl := filepath.Join(dir, "f.rtl")

	writeLines(t, fAsm, ".L1000 call")
	writeLines(t, fRaw, "e8 00 00 00 00")
	writeLines(t, fRtl, "(call (const DI 0x5000))")

	prog := program.New(nil, program.Lenient())
	noreturn := map[uint64]struct{}{0x5000: {}}
	if err := BuildProgram(prog, fAsm, fRaw, fRtl, noreturn); err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}

	insn, ok := prog.Insn(0x1000)
	if !ok {
		t.Fatalf("no instruction at 0x1000")
	}
	if !insn.Halt || insn.Call {
		t.Fatalf("a call to a noreturn function should be rewritten to HALT, got %+v", insn)
	}
}

func TestBuildProgramFallsBackToHaltOnLiftFailure(t *testing.T) {
	dir := t.TempDir()
	fAsm := filepath.Join(dir, "f.asm")
	fRaw := filepath.Join(dir, "f.raw")
	fRtl := filepath.Join(dir, "f.rtl")

	writeLines(t, fAsm, ".L1000 nop")
	writeLines(t, fRaw, "90")
	writeLines(t, fRtl, "(((unbalanced")

	prog := program.New(nil, program.Lenient())
	if err := BuildProgram(prog, fAsm, fRaw, fRtl, nil); err != nil {
		t.Fatalf("a malformed RTL line should fall back to a HALT stub, not fail the build: %v", err)
	}
	insn, ok := prog.Insn(0x1000)
	if !ok || !insn.Halt {
		t.Fatalf("insn at 0x1000 = %+v, want a HALT stub", insn)
	}
}

func TestBuildProgramRejectsMisalignedFiles(t *testing.T) {
	dir := t.TempDir()
	fAsm := filepath.Join(dir, "f.asm")
	fRaw := filepath.Join(dir, "f.raw")
	fRtl := filepath.Join(dir, "f.rtl")

	writeLines(t, fAsm, ".L1000 nop", ".L1001 nop")
	writeLines(t, fRaw, "90")
	writeLines(t, fRtl, "(nop)")

	prog := program.New(nil, program.Lenient())
	if err := BuildProgram(prog, fAsm, fRaw, fRtl, nil); err == nil {
		t.Fatalf("BuildProgram should reject files with mismatched line counts")
	}
}
