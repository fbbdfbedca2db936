package disasm

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bnagy/gapstone"
	"github.com/lxyhome-bit/indirect-jmp/elfx"
)

// X86Disassembler is the production Disassembler: a linear sweep over the
// image's code range using capstone (via gapstone), writing the two
// aligned files spec.md section 6 requires. It is grounded on the
// teacher's own gapstone-based instruction reader, adapted from a live
// workspace address space to a static elfx.Image.
type X86Disassembler struct {
	Image *elfx.Image
}

func NewX86Disassembler(img *elfx.Image) *X86Disassembler {
	return &X86Disassembler{Image: img}
}

func (d *X86Disassembler) Disassemble(bin, fAsm, fRaw string) error {
	engine, err := gapstone.New(gapstone.CS_ARCH_X86, gapstone.CS_MODE_64)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.SetOption(gapstone.CS_OPT_DETAIL, gapstone.CS_OPT_ON); err != nil {
		return err
	}

	asmF, err := os.Create(fAsm)
	if err != nil {
		return err
	}
	defer asmF.Close()
	rawF, err := os.Create(fRaw)
	if err != nil {
		return err
	}
	defer rawF.Close()

	asmW := bufio.NewWriter(asmF)
	rawW := bufio.NewWriter(rawF)
	defer asmW.Flush()
	defer rawW.Flush()

	lo, hi := d.Image.TextRange()
	for off := lo; off < hi; {
		buf, ok := d.Image.ReadBytes(off, 16)
		if !ok {
			if remaining, ok2 := d.Image.ReadBytes(off, int(hi-off)); ok2 && len(remaining) > 0 {
				buf = remaining
			} else {
				break
			}
		}
		insns, err := engine.Disasm(buf, off, 1)
		if err != nil || len(insns) == 0 {
			off++
			continue
		}
		insn := insns[0]
		fmt.Fprintf(asmW, ".L%x %s %s\n", off, insn.Mnemonic, insn.OpStr)
		fmt.Fprintf(rawW, "%s\n", hexBytes(insn.Bytes))
		off += uint64(insn.Size)
	}
	return nil
}

func hexBytes(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigit(v>>4), hexDigit(v&0xf))
	}
	return string(out)
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'a' + v - 10
}
