// Package patcherr defines the error taxonomy surfaced at the patch
// engine's boundary: a small, closed set of kinds a caller can switch on
// with errors.As, each optionally wrapping the underlying cause for
// logging.
package patcherr

import "fmt"

// Kind is one of the terminal outcomes a patch run can report.
type Kind int

const (
	// OK is not actually returned as an error — callers check for a nil
	// error to mean PATCH_OK — but it's named here to keep the kind
	// strings complete.
	OK Kind = iota
	// IO covers any OS-level open/read/write/seek failure.
	IO
	// UnknownType means neither the IPS nor the BPS marker matched.
	UnknownType
	// FailedToStart means the decoder-specific start phase failed (BPS
	// header unreadable, IPS initial copy failed).
	FailedToStart
	// InvalidOutputSize means a BPS patch wrote a different number of
	// bytes than its header's target_size promised.
	InvalidOutputSize
	// InvalidOutputChecksum means one of the three BPS CRC32 checks
	// failed verification.
	InvalidOutputChecksum
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "PATCH_OK"
	case IO:
		return "PATCH_ERR_IO"
	case UnknownType:
		return "PATCH_UNKNOWN_TYPE"
	case FailedToStart:
		return "PATCH_FAILED_TO_START"
	case InvalidOutputSize:
		return "PATCH_INVALID_OUTPUT_SIZE"
	case InvalidOutputChecksum:
		return "PATCH_INVALID_OUTPUT_CHECKSUM"
	default:
		return "PATCH_ERR_UNKNOWN"
	}
}

// Error is the concrete error type returned at the patch engine's
// boundary: a Kind a caller can switch on with errors.As, wrapping the
// underlying cause (already pkg/errors-annotated with context) for logs.
type Error struct {
	Kind Kind
	Err  error
}

// New constructs an Error of the given kind wrapping err. err may be nil
// for kinds that are self-explanatory (UnknownType, InvalidOutputSize).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}
