// Package driver runs the outer fixed-point loop spec.md section 4.8
// describes: seed function-pointer candidates, grow the superset CFG,
// analyze and resolve indirect control flow until nothing new appears, then
// recover virtual-function dispatch tables over the whole program.
package driver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lxyhome-bit/indirect-jmp/artifacts"
	"github.com/lxyhome-bit/indirect-jmp/disasm"
	"github.com/lxyhome-bit/indirect-jmp/elfx"
	"github.com/lxyhome-bit/indirect-jmp/errs"
	"github.com/lxyhome-bit/indirect-jmp/function"
	"github.com/lxyhome-bit/indirect-jmp/jumptable"
	"github.com/lxyhome-bit/indirect-jmp/lift"
	"github.com/lxyhome-bit/indirect-jmp/persistence"
	"github.com/lxyhome-bit/indirect-jmp/program"
	"github.com/lxyhome-bit/indirect-jmp/session"
	"github.com/lxyhome-bit/indirect-jmp/state"
	"github.com/lxyhome-bit/indirect-jmp/vtable"
)

// Config gathers every tunable spec.md names, in one record rather than
// compile-time constants, per this project's general "policy as
// configuration" realization.
type Config struct {
	// RecurLimit bounds the outer loop's iteration counter (spec.md
	// section 6: RECUR_LIMIT = 200).
	RecurLimit int
	// LimitJtable bounds jump-table/unbounded-scan enumeration.
	LimitJtable int
	// IterationLimit is the reference driver's per-function SCC
	// iteration_limit (spec.md section 6 default: 1).
	IterationLimit int

	// Policy governs how program construction reacts to a missing edge.
	Policy program.LenientPolicy

	// BaseDir is the scratch directory under which a session.Session is
	// created for intermediate disassembly/lift files.
	BaseDir string
	// LifterPath is the external lifter binary invoked by the default
	// disasm.SubprocessLifter. Ignored if Disassembler/Lifter are set.
	LifterPath string

	// Disassembler/Lifter override the production gapstone/subprocess
	// implementations -- tests inject disasm.FixtureDisassembler/
	// FixtureLifter here.
	Disassembler disasm.Disassembler
	Lifter       disasm.Lifter

	// ScanCodePointers enables Program.ScanCptrs as an additional fptr
	// seed source each outer iteration (spec.md section 9 supplemented
	// feature; on by default, matching the original's always-on scan).
	ScanCodePointers bool

	// DetectUpdatedFunctions skips re-analysis of functions whose
	// reachable block graph did not change since the last Program.Update
	// (on by default). Purely a performance gate: resolution is monotone,
	// so an unchanged function cannot produce new targets.
	DetectUpdatedFunctions bool

	// FixHexStringDebugArtifact reproduces the reference driver's inert
	// `fptr == 5242` branch (spec.md section 9, open question (a)): a
	// documented no-op kept so a reader asking "where did that branch go"
	// finds an explicit answer instead of a silent deletion.
	FixHexStringDebugArtifact bool
	// StripedIsAssignment resolves spec.md section 9 open question (b):
	// when true, Program.Striped is reassigned from the vtable pass's
	// result on every run (a literal reading of `striped = striped;` as a
	// typo'd reassignment); when false (the default) Striped is latched:
	// a vtable pass sets it only while it is still false, so once true it
	// is never reset, matching the comparison-that-does-nothing reading.
	StripedIsAssignment bool

	// Store, if set, receives every resolved indirect-jump, jump-table and
	// vfunc edge once the run completes -- an optional collaborator, never
	// required for Run to succeed.
	Store persistence.Store

	// Artifacts, if set, is notified once per resolved edge after the run
	// completes, replaying the same edges the final Result holds.
	Artifacts artifacts.ArtifactCollection

	Log *logrus.Logger
}

// DefaultConfig returns the reference driver's configuration defaults
// (spec.md section 6).
func DefaultConfig() Config {
	return Config{
		RecurLimit:             200,
		LimitJtable:            4096,
		IterationLimit:         1,
		Policy:                 program.Lenient(),
		ScanCodePointers:       true,
		DetectUpdatedFunctions: true,
		Log:                    logrus.StandardLogger(),
	}
}

// Result is the driver's final answer: the three maps spec.md section 6's
// JSON output serializes directly.
type Result struct {
	IndirectJumpLocations map[uint64][]uint64
	JumpTableLocations    map[uint64][]uint64
	VfuncLocations        map[uint64]uint64
}

// Run opens binPath, drives it through the external disassembler/lifter,
// reconstructs its superset CFG to a fixed point, and recovers vtables,
// tearing down every owned resource (ELF image, scratch session) on every
// exit path.
func Run(cfg Config, binPath, autoPath string) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	img, err := elfx.Open(binPath)
	if err != nil {
		return nil, errs.New(errs.ErrFileMissing, 0, fmt.Errorf("open binary %s: %w", binPath, err))
	}
	defer img.Close()

	sess, err := session.New(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("driver: create session: %w", err)
	}
	defer sess.Clean()

	d := cfg.Disassembler
	if d == nil {
		d = disasm.NewX86Disassembler(img)
	}
	l := cfg.Lifter
	if l == nil {
		l = disasm.NewSubprocessLifter(cfg.LifterPath)
	}

	fAsm := sess.Path("f_asm")
	fRaw := sess.Path("f_raw")
	fRtl := sess.Path("f_rtl")

	if err := d.Disassemble(binPath, fAsm, fRaw); err != nil {
		return nil, fmt.Errorf("driver: disassemble: %w", err)
	}
	if err := l.Load(autoPath); err != nil {
		return nil, fmt.Errorf("driver: load automaton: %w", err)
	}
	if err := l.Lift(fAsm, fRtl); err != nil {
		return nil, errs.New(errs.ErrLiftFailure, 0, err)
	}

	prog := program.New(img, cfg.Policy)
	if err := lift.BuildProgram(prog, fAsm, fRaw, fRtl, img.NoreturnCalls()); err != nil {
		return nil, errs.New(errs.ErrMissingEdge, 0, err)
	}

	if cfg.FixHexStringDebugArtifact {
		// Mirrors the reference driver's unreachable `fptr == 5242` branch
		// (spec.md section 9, open question (a)): recomputing a hex string
		// that is never used. Kept inert on purpose.
		for _, f := range prog.AllFptrs() {
			if f == 5242 {
				_ = fmt.Sprintf("%x", f)
			}
		}
	}

	seed := make(map[uint64]struct{})
	for f := range img.DefiniteFptrs() {
		seed[f] = struct{}{}
	}
	for _, f := range img.PrologFptrs() {
		seed[f] = struct{}{}
	}
	next := setToSlice(seed)

	scfg := state.Config{
		TrackMemory:    true,
		Widen:          true,
		Taint:          true,
		IterationLimit: cfg.IterationLimit,
		Init:           state.DefaultInit,
	}
	jcfg := jumptable.Config{LimitJtable: cfg.LimitJtable}

	dataflowVtables := make(map[uint64]uint64)

	for len(next) > 0 && prog.UpdateNum <= cfg.RecurLimit {
		prog.Fptrs(next)
		prog.Update()
		if prog.Faulty {
			log.Error("driver: program construction faulted, tearing down")
			return nil, errs.New(errs.ErrMissingEdge, 0, fmt.Errorf("faulty program at update %d", prog.UpdateNum))
		}

		for entry, vaddr := range runInnerLoop(prog, scfg, jcfg, cfg.DetectUpdatedFunctions) {
			dataflowVtables[entry] = vaddr
		}

		var gap []uint64
		gap = append(gap, prog.ScanFptrsInGap()...)
		if cfg.ScanCodePointers {
			gap = append(gap, prog.ScanCptrs()...)
		}
		next = gap
	}

	// One more pass over every known fptr for virtual-function tracking:
	// entries the update gate skipped (or that were discovered in the very
	// last iteration) still get their dataflow scan before the vtable walk.
	for _, entry := range prog.AllFptrs() {
		if _, done := dataflowVtables[entry]; done {
			continue
		}
		f, ok := function.Build(prog, entry)
		if !ok {
			continue
		}
		f.TrackVtableDataflow()
		if f.VfuncTable != 0 {
			dataflowVtables[entry] = f.VfuncTable
		}
	}

	finalizeVtables(img, prog, cfg, dataflowVtables)

	result := &Result{
		IndirectJumpLocations: snapshotIcfs(prog),
		JumpTableLocations:    snapshotJtables(prog),
		VfuncLocations:        copyUint64Map(prog.Vfunc()),
	}

	if cfg.Store != nil {
		persistResult(cfg.Store, result, log)
	}
	if cfg.Artifacts != nil {
		reportArtifacts(cfg.Artifacts, result, log)
	}

	return result, nil
}

// reportArtifacts replays the final result through an ArtifactCollection,
// logging (rather than failing the run) on a per-entry error.
func reportArtifacts(coll artifacts.ArtifactCollection, result *Result, log *logrus.Logger) {
	for loc, targets := range result.IndirectJumpLocations {
		for _, target := range targets {
			if err := coll.AddIndirectJump(loc, target); err != nil {
				log.WithError(err).WithField("loc", loc).Warn("driver: report indirect jump")
			}
		}
	}
	for base, targets := range result.JumpTableLocations {
		for i, target := range targets {
			if err := coll.AddJumpTableEntry(base, i, target); err != nil {
				log.WithError(err).WithField("base", base).Warn("driver: report jump table entry")
			}
		}
	}
	for slot, target := range result.VfuncLocations {
		if err := coll.AddVfuncEdge(slot, target); err != nil {
			log.WithError(err).WithField("slot", slot).Warn("driver: report vfunc edge")
		}
	}
}

// persistResult records every resolved edge in result into store, logging
// (rather than failing the run) on a per-entry error.
func persistResult(store persistence.Store, result *Result, log *logrus.Logger) {
	for loc, targets := range result.IndirectJumpLocations {
		if err := store.Set(persistence.IndirectJump, loc, targets); err != nil {
			log.WithError(err).WithField("loc", loc).Warn("driver: persist indirect jump")
		}
	}
	for base, targets := range result.JumpTableLocations {
		if err := store.Set(persistence.JumpTable, base, targets); err != nil {
			log.WithError(err).WithField("base", base).Warn("driver: persist jump table")
		}
	}
	for slot, target := range result.VfuncLocations {
		if err := store.Set(persistence.Vfunc, slot, []uint64{target}); err != nil {
			log.WithError(err).WithField("slot", slot).Warn("driver: persist vfunc")
		}
	}
}

// runInnerLoop is the driver's step 2: for every known function entry
// whose block graph changed since the last update, build its Function, run
// the vtable dataflow scan unconditionally, then analyze and resolve only
// if it still has an unresolved indirect jump, repeating while the total
// resolved (loc,target) count grows (spec.md section 4.8). It returns
// every vfunc_table address the dataflow scan latched, keyed by function
// entry, for finalizeVtables to fold into its constructor candidates.
func runInnerLoop(prog *program.Program, scfg state.Config, jcfg jumptable.Config, gateUpdated bool) map[uint64]uint64 {
	dataflowVtables := make(map[uint64]uint64)
	for {
		prevCount := prog.IcfCount()

		for _, entry := range prog.AllFptrs() {
			if gateUpdated && !prog.Updated(entry) {
				continue
			}
			f, ok := function.Build(prog, entry)
			if !ok {
				continue
			}
			f.TrackVtableDataflow()
			if f.VfuncTable != 0 {
				dataflowVtables[entry] = f.VfuncTable
			}
			if f.HasUnresolvedIndirectJump() {
				f.Analyze(scfg)
				jumptable.Resolve(jcfg, prog, f)
			}
		}
		prog.ResolveUnboundedICF()

		if prog.IcfCount() == prevCount {
			return dataflowVtables
		}
		// Newly resolved targets must be connected into the block graph
		// before the next round re-analyzes anything, or the functions
		// containing those jumps would keep analyzing the stale CFG.
		prog.Update()
	}
}

// finalizeVtables is the driver's post-loop pass (spec.md section 4.8,
// last sentence): every known fptr is a constructor candidate, and every
// dataflow-latched vfunc_table address (spec.md section 4.7) is folded in
// as an additional constructor candidate alongside the byte-pattern stage.
func finalizeVtables(img *elfx.Image, prog *program.Program, cfg Config, dataflowVtables map[uint64]uint64) {
	ctors := vtable.FindConstructors(img, prog.AllFptrs())
	for entry, vaddr := range dataflowVtables {
		ctors = append(ctors, vtable.Constructor{Entry: entry, VtableAddr: vaddr})
	}
	slots := vtable.Recover(img, ctors)
	striped := len(slots) > 0
	for slot, target := range slots {
		prog.RegisterVfunc(slot, target)
	}
	if cfg.StripedIsAssignment {
		prog.Striped = striped
	} else if !prog.Striped {
		// Latched once, per the comparison-that-does-nothing reading: the
		// first finalize pass may set it, later passes never touch it.
		prog.Striped = striped
	}
}

func setToSlice(s map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	return out
}

func snapshotIcfs(prog *program.Program) map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	for _, loc := range prog.IcfLocs() {
		targets := prog.Icfs(loc)
		if len(targets) == 0 {
			continue
		}
		out[loc] = setToSlice(targets)
	}
	return out
}

func snapshotJtables(prog *program.Program) map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	for _, base := range prog.JtableBases() {
		targets := prog.JtableTargets(base)
		if len(targets) == 0 {
			continue
		}
		out[base] = setToSlice(targets)
	}
	return out
}

func copyUint64Map(m map[uint64]uint64) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
