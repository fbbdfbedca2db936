// Package errs is the small error-kind vocabulary the driver and its
// collaborators wrap concrete failures in, matched with errors.Is rather
// than string comparison, following this project's general "wrap with
// fmt.Errorf(...: %w...)" idiom.
package errs

import "errors"

var (
	// ErrFileMissing is returned when a required input file (the target
	// binary or its .auto side-car) cannot be opened.
	ErrFileMissing = errors.New("errs: required file missing")

	// ErrLiftFailure is returned when the external lifter exits non-zero
	// or produces output this engine cannot parse.
	ErrLiftFailure = errors.New("errs: lift failure")

	// ErrMissingEdge is returned when program construction encounters a
	// direct jump/call whose target instruction was never disassembled,
	// under a strict LenientPolicy.
	ErrMissingEdge = errors.New("errs: missing edge")

	// ErrAnalysisDivergence names an abstract-interpretation fixed point
	// that fails to stabilize within its configured iteration bound. No
	// function in this module returns it: analysis is bounded by the SCC
	// iteration policy and never reports divergence.
	ErrAnalysisDivergence = errors.New("errs: analysis did not converge")

	// ErrRelocationInconsistency names a RELA entry whose offset or addend
	// is inconsistent with the section it targets. No function in this
	// module returns it: vtable.Recover skips such entries instead.
	ErrRelocationInconsistency = errors.New("errs: relocation inconsistency")
)

// Kind is one of the five sentinel errors above, recorded alongside the
// address or file it concerns.
type Kind = error

// AnalysisError pairs a Kind sentinel with the address it concerns and
// carries an optional underlying cause in Err. Unwrap returns the Kind, so
// callers can errors.Is against it; the cause is read from Err directly.
type AnalysisError struct {
	Kind Kind
	Addr uint64
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Kind
}

// New constructs an AnalysisError for addr, wrapping cause (which may be
// nil).
func New(kind Kind, addr uint64, cause error) *AnalysisError {
	return &AnalysisError{Kind: kind, Addr: addr, Err: cause}
}
