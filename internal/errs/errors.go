// Package errs defines the typed failure values surfaced by every stage of
// the compile pipeline (GPX decode, XML mapping, timeline/SNG compilation,
// PSARC archive I/O).
package errs

import "fmt"

// Kind classifies a CompileError. Every error the pipeline returns is fatal
// to the file being processed; Kind exists so callers can decide whether to
// abort a batch or continue with the next input.
type Kind int

const (
	// MalformedContainer covers wrong magic bytes, impossible declared
	// lengths, and truncated streams.
	MalformedContainer Kind = iota
	// MalformedReference covers dangling ids: a back-reference with
	// offset == 0, a missing sector chain, an unresolved rhythm/voice/
	// bar/track id, a chord-template index out of range.
	MalformedReference
	// MalformedXml covers unparsable XML or a shape violation where a
	// {count, children} sequence or a specific attribute was required.
	MalformedXml
	// CryptoFailure covers TOC decryption size mismatches and profile
	// decompressed-length mismatches.
	CryptoFailure
	// Unsupported covers note values, harmonic types, or rhythm
	// modifiers outside the enumerated set this pipeline understands.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case MalformedContainer:
		return "malformed container"
	case MalformedReference:
		return "malformed reference"
	case MalformedXml:
		return "malformed xml"
	case CryptoFailure:
		return "crypto failure"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown error kind"
	}
}

// CompileError is the typed failure every pipeline stage returns. Path is
// the input file being processed when the failure occurred; Reason is a
// one-line human description; Err, when present, is the underlying cause
// and is reachable via errors.Unwrap/errors.As.
type CompileError struct {
	Kind   Kind
	Path   string
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Kind, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// New builds a CompileError without an underlying cause.
func New(kind Kind, path, reason string) error {
	return &CompileError{Kind: kind, Path: path, Reason: reason}
}

// Wrap builds a CompileError around an underlying cause.
func Wrap(kind Kind, path, reason string, err error) error {
	return &CompileError{Kind: kind, Path: path, Reason: reason, Err: err}
}
