package disasm

import "io"
import "os"

// FixtureDisassembler replays a pre-recorded pair of aligned files instead
// of actually invoking a disassembler, for deterministic tests.
type FixtureDisassembler struct {
	AsmFixture, RawFixture string
}

func (d *FixtureDisassembler) Disassemble(bin, fAsm, fRaw string) error {
	if err := copyFile(d.AsmFixture, fAsm); err != nil {
		return err
	}
	return copyFile(d.RawFixture, fRaw)
}

// FixtureLifter replays a pre-recorded RTL file instead of spawning a real
// lifter subprocess.
type FixtureLifter struct {
	RtlFixture string
}

func (l *FixtureLifter) Load(autoFile string) error { return nil }

func (l *FixtureLifter) Lift(fAsm, fRtl string) error {
	return copyFile(l.RtlFixture, fRtl)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
