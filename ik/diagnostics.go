package ik

import "log"

// DiagnosticKind classifies a non-fatal condition surfaced during Execute.
type DiagnosticKind int

const (
	// DiagMissingBone reports a configured target or root bone that the
	// host no longer has.
	DiagMissingBone DiagnosticKind = iota
	// DiagDegenerateQCP reports a QCP fit the solver rejected with an
	// error (e.g. zero total heading weight); the bone is left unrotated
	// for that step. A fit that falls back to the identity rotation
	// because every adjoint-column eigenvector candidate was degenerate
	// returns no error and is not reported.
	DiagDegenerateQCP
	// DiagNonFiniteInput reports a bone transform with a NaN/Inf
	// component; the affected bone is skipped for the tick and its MSD
	// gate is reset.
	DiagNonFiniteInput
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagMissingBone:
		return "missing-bone"
	case DiagDegenerateQCP:
		return "degenerate-qcp"
	case DiagNonFiniteInput:
		return "non-finite-input"
	default:
		return "unknown"
	}
}

// Diagnostic is a single non-fatal condition recorded during a tick.
type Diagnostic struct {
	Kind    DiagnosticKind
	BoneID  BoneId
	Message string
}

// diagnosticLog accumulates diagnostics for the current tick and emits
// them via stdlib log, in the style of engine/profiler.Profiler.Tick's
// bracketed-tag log.Printf reporting — the teacher's only runtime
// diagnostics precedent.
type diagnosticLog struct {
	entries []Diagnostic
}

func (d *diagnosticLog) reset() {
	d.entries = d.entries[:0]
}

func (d *diagnosticLog) record(kind DiagnosticKind, bone BoneId, message string) {
	d.entries = append(d.entries, Diagnostic{Kind: kind, BoneID: bone, Message: message})
	log.Printf("[ewbik] %s (bone %d): %s", kind, bone, message)
}
