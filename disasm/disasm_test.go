package disasm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHexBytesFormatsSpaceSeparatedPairs(t *testing.T) {
	got := hexBytes([]byte{0xde, 0xad, 0x0f})
	if got != "de ad 0f" {
		t.Fatalf("hexBytes = %q, want %q", got, "de ad 0f")
	}
	if hexBytes(nil) != "" {
		t.Fatalf("hexBytes(nil) should be empty")
	}
}

func TestFixtureDisassemblerCopiesBothFiles(t *testing.T) {
	dir := t.TempDir()
	asmFixture := filepath.Join(dir, "fixture.asm")
	rawFixture := filepath.Join(dir, "fixture.raw")
	if err := os.WriteFile(asmFixture, []byte(".L0 nop\n"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(rawFixture, []byte("90\n"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	d := &FixtureDisassembler{AsmFixture: asmFixture, RawFixture: rawFixture}
	fAsm := filepath.Join(dir, "out.asm")
	fRaw := filepath.Join(dir, "out.raw")
	if err := d.Disassemble("unused.bin", fAsm, fRaw); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	gotAsm, err := os.ReadFile(fAsm)
	if err != nil || string(gotAsm) != ".L0 nop\n" {
		t.Fatalf("fAsm = %q, err=%v, want fixture contents copied verbatim", gotAsm, err)
	}
	gotRaw, err := os.ReadFile(fRaw)
	if err != nil || string(gotRaw) != "90\n" {
		t.Fatalf("fRaw = %q, err=%v, want fixture contents copied verbatim", gotRaw, err)
	}
}

func TestFixtureLifterLoadIsANoOpAndLiftCopiesFixture(t *testing.T) {
	dir := t.TempDir()
	rtlFixture := filepath.Join(dir, "fixture.rtl")
	if err := os.WriteFile(rtlFixture, []byte("(halt)\n"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	l := &FixtureLifter{RtlFixture: rtlFixture}
	if err := l.Load("ignored.auto"); err != nil {
		t.Fatalf("Load should always succeed, got %v", err)
	}

	fRtl := filepath.Join(dir, "out.rtl")
	if err := l.Lift("ignored.asm", fRtl); err != nil {
		t.Fatalf("Lift: %v", err)
	}
	got, err := os.ReadFile(fRtl)
	if err != nil || string(got) != "(halt)\n" {
		t.Fatalf("fRtl = %q, err=%v, want the fixture contents", got, err)
	}
}

func TestSubprocessLifterLoadGuardsAgainstReload(t *testing.T) {
	l := NewSubprocessLifter("true")
	if err := l.Load(""); err != nil {
		t.Fatalf("first Load should succeed via the `true` binary, got %v", err)
	}
	if !l.loaded {
		t.Fatalf("loaded flag should be set after a successful Load")
	}

	// A path that would fail if actually invoked again -- the guard must
	// short-circuit before exec.Command ever runs.
	l.Path = "/does/not/exist"
	if err := l.Load("ignored.auto"); err != nil {
		t.Fatalf("Load should be a no-op once already loaded, got %v", err)
	}
}
