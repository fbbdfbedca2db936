package lift

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lxyhome-bit/indirect-jmp/program"
	"github.com/lxyhome-bit/indirect-jmp/rtl"
)

var modeNames = map[string]rtl.Mode{
	"QI": rtl.ModeQI, "HI": rtl.ModeHI, "SI": rtl.ModeSI, "DI": rtl.ModeDI,
	"TI": rtl.ModeTI, "SF": rtl.ModeSF, "DF": rtl.ModeDF, "XF": rtl.ModeXF,
	"CC": rtl.ModeCC, "BLK": rtl.ModeBLK, "none": rtl.ModeNone,
}

var regNames = map[string]rtl.Reg{
	"rax": rtl.AX, "rbx": rtl.BX, "rcx": rtl.CX, "rdx": rtl.DX,
	"rsp": rtl.SP, "rbp": rtl.BP, "rsi": rtl.SI, "rdi": rtl.DI,
	"r8": rtl.R8, "r9": rtl.R9, "r10": rtl.R10, "r11": rtl.R11,
	"r12": rtl.R12, "r13": rtl.R13, "r14": rtl.R14, "r15": rtl.R15,
	"rip": rtl.IP, "flags": rtl.FLAGS, "pc": rtl.PC,
}

// ParseStmt interprets one top-level RTL line as a statement tree.
func ParseStmt(line string) (rtl.Stmt, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return rtl.NewNop(), nil
	}
	n, err := parseSExpr(line)
	if err != nil {
		return nil, err
	}
	return stmtFrom(n)
}

func stmtFrom(n *sexpr) (rtl.Stmt, error) {
	if n.isAtom() {
		return nil, fmt.Errorf("lift: expected statement, got atom %q", n.atom)
	}
	switch n.head() {
	case "parallel":
		var stmts []rtl.Stmt
		for _, c := range n.children[1:] {
			s, err := stmtFrom(c)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
		}
		return rtl.NewParallel(stmts...), nil
	case "seq":
		var stmts []rtl.Stmt
		for _, c := range n.children[1:] {
			s, err := stmtFrom(c)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
		}
		return rtl.NewSequence(stmts...), nil
	case "assign":
		dst, err := exprFrom(n.arg(0))
		if err != nil {
			return nil, err
		}
		src, err := exprFrom(n.arg(1))
		if err != nil {
			return nil, err
		}
		return rtl.NewAssign(dst, src), nil
	case "call":
		t, err := exprFrom(n.arg(0))
		if err != nil {
			return nil, err
		}
		return rtl.NewCall(t), nil
	case "clobber":
		e, err := exprFrom(n.arg(0))
		if err != nil {
			return nil, err
		}
		return rtl.NewClobber(e), nil
	case "exit":
		if n.arg(0) != nil && n.arg(0).atom == "HALT" {
			return rtl.NewExit(rtl.HALT), nil
		}
		return rtl.NewExit(rtl.RET), nil
	case "nop", "":
		return rtl.NewNop(), nil
	default:
		return nil, fmt.Errorf("lift: unknown statement head %q", n.head())
	}
}

func mode(s *sexpr) rtl.Mode {
	if s == nil || s.atom == "" {
		return rtl.ModeNone
	}
	return modeNames[s.atom]
}

func exprFrom(n *sexpr) (rtl.Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("lift: missing expression operand")
	}
	if n.isAtom() {
		return rtl.NewNoType(n.atom), nil
	}
	switch n.head() {
	case "const":
		m := mode(n.arg(0))
		imm, err := parseHexOrDec(n.arg(1).atom)
		if err != nil {
			return nil, err
		}
		return rtl.NewConst(m, imm), nil
	case "reg":
		m := mode(n.arg(0))
		r, ok := regNames[n.arg(1).atom]
		if !ok {
			return nil, fmt.Errorf("lift: unknown register %q", n.arg(1).atom)
		}
		return rtl.NewReg(m, r), nil
	case "mem":
		m := mode(n.arg(0))
		addr, err := exprFrom(n.arg(1))
		if err != nil {
			return nil, err
		}
		return rtl.NewMem(m, addr), nil
	case "subreg":
		m := mode(n.arg(0))
		inner, err := exprFrom(n.arg(1))
		if err != nil {
			return nil, err
		}
		byteNum, _ := strconv.Atoi(n.arg(2).atom)
		return rtl.NewSubReg(m, inner, byteNum), nil
	case "ifelse":
		cmp, err := exprFrom(n.arg(0))
		if err != nil {
			return nil, err
		}
		then, err := exprFrom(n.arg(1))
		if err != nil {
			return nil, err
		}
		els, err := exprFrom(n.arg(2))
		if err != nil {
			return nil, err
		}
		return rtl.NewIfElse(rtl.ModeNone, cmp, then, els), nil
	case "binary":
		op := binaryOp(n.arg(0).atom)
		m := mode(n.arg(1))
		a, err := exprFrom(n.arg(2))
		if err != nil {
			return nil, err
		}
		b, err := exprFrom(n.arg(3))
		if err != nil {
			return nil, err
		}
		return rtl.NewBinary(op, m, a, b), nil
	case "unary":
		op := unaryOp(n.arg(0).atom)
		m := mode(n.arg(1))
		e, err := exprFrom(n.arg(2))
		if err != nil {
			return nil, err
		}
		return rtl.NewUnary(op, m, e), nil
	case "compare":
		op := compareOp(n.arg(0).atom)
		m := mode(n.arg(1))
		e, err := exprFrom(n.arg(2))
		if err != nil {
			return nil, err
		}
		return rtl.NewCompare(op, m, e), nil
	case "notype":
		return rtl.NewNoType(n.arg(0).atom), nil
	default:
		return rtl.NewNoType(n.head()), nil
	}
}

func binaryOp(s string) rtl.BinaryOp {
	switch s {
	case "+":
		return rtl.Plus
	case "-":
		return rtl.Minus
	case "*":
		return rtl.Mult
	case "&":
		return rtl.And
	case "|":
		return rtl.Ior
	case "^":
		return rtl.Xor
	case "<<":
		return rtl.AShift
	case ">>":
		return rtl.AShiftRT
	default:
		return rtl.BinaryAny
	}
}

func unaryOp(s string) rtl.UnaryOp {
	switch s {
	case "neg":
		return rtl.Neg
	case "not":
		return rtl.Not
	default:
		return rtl.UnaryAny
	}
}

func compareOp(s string) rtl.CompareOp {
	switch s {
	case "==":
		return rtl.EQ
	case "!=":
		return rtl.NE
	default:
		return rtl.CompareAny
	}
}

// BuildProgram reads the three aligned files a Disassembler/Lifter pair
// produced and populates prog with one Insn per line, replacing any
// direct call whose target address is in noreturnCalls (a definite
// no-return library function) with a HALT stub -- the direct analogue of the
// original `load()` free function's noreturn-substitution step.
func BuildProgram(prog *program.Program, fAsm, fRaw, fRtl string, noreturnCalls map[uint64]struct{}) error {
	asmLines, err := readLines(fAsm)
	if err != nil {
		return err
	}
	rawLines, err := readLines(fRaw)
	if err != nil {
		return err
	}
	rtlLines, err := readLines(fRtl)
	if err != nil {
		return err
	}
	if len(asmLines) != len(rawLines) || len(asmLines) != len(rtlLines) {
		return fmt.Errorf("lift: misaligned disassembly/RTL files (%d/%d/%d lines)", len(asmLines), len(rawLines), len(rtlLines))
	}

	for i, asmLine := range asmLines {
		offset, mnemonic, err := parseAsmLine(asmLine)
		if err != nil {
			return err
		}
		raw := parseRawLine(rawLines[i])

		stmt, err := ParseStmt(rtlLines[i])
		if err != nil {
			stmt = rtl.NewExit(rtl.HALT) // lift failure: lenient HALT stub
		}

		insn := &program.Insn{Offset: offset, Raw: raw, Root: stmt, NextOffset: offset + uint64(len(raw))}
		classify(insn, mnemonic, stmt)

		if _, isNoreturn := noreturnCalls[insn.DirectTarget]; isNoreturn && insn.Call {
			insn.ToHalt()
		}

		prog.AddInsn(insn)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func parseAsmLine(line string) (offset uint64, mnemonic string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], ".L") {
		return 0, "", fmt.Errorf("lift: malformed asm line %q", line)
	}
	off, err := strconv.ParseUint(strings.TrimPrefix(fields[0], ".L"), 16, 64)
	if err != nil {
		return 0, "", err
	}
	if len(fields) > 1 {
		mnemonic = fields[1]
	}
	return off, mnemonic, nil
}

func parseRawLine(line string) []byte {
	fields := strings.Fields(line)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	if len(out) == 0 {
		out = []byte{0x90}
	}
	return out
}

// classify derives the Insn control-flow flags from the lifted RTL root
// and, heuristically, the disassembler's mnemonic (since the RTL tree
// alone does not distinguish "call" from "jump" once both are `Call`/pc
// assignments without extra tagging).
func classify(insn *program.Insn, mnemonic string, stmt rtl.Stmt) {
	insn.Empty = mnemonic == "nop" || mnemonic == ""

	var pcTarget *int64
	var hasCall, hasHalt bool
	var walk func(rtl.Stmt)
	walk = func(s rtl.Stmt) {
		switch x := s.(type) {
		case *rtl.Assign:
			if x.IsPCAssign() {
				if c, ok := x.Src.(*rtl.Const); ok && c.K == rtl.ConstInteger {
					v := c.Imm
					pcTarget = &v
				}
			}
		case *rtl.Call:
			hasCall = true
			if c, ok := x.Target.(*rtl.Const); ok && c.K == rtl.ConstInteger {
				v := c.Imm
				pcTarget = &v
			}
		case *rtl.Exit:
			if x.K == rtl.HALT {
				hasHalt = true
			}
		}
		for _, c := range s.Children() {
			walk(c)
		}
	}
	walk(stmt)

	insn.Gap = insn.Empty

	switch {
	case hasHalt:
		insn.Halt = true
		insn.Transfer = true
	case hasCall:
		insn.Call = true
		insn.Transfer = true
		insn.Direct = pcTarget != nil
		insn.Indirect = pcTarget == nil
		if pcTarget != nil {
			insn.DirectTarget = uint64(*pcTarget)
		}
	case pcTarget != nil || strings.HasPrefix(mnemonic, "j"):
		insn.Transfer = true
		insn.Jump = true
		insn.CondJump = mnemonic != "jmp" && mnemonic != ""
		if pcTarget != nil {
			insn.Direct = true
			insn.DirectTarget = uint64(*pcTarget)
		} else {
			insn.Indirect = true
		}
	case mnemonic == "ret":
		insn.Halt = true
		insn.Transfer = true
	}
}
