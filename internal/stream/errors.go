package stream

import "fmt"

// Kind identifies one of the fixed error conditions a Stream can produce.
// It is a code, not a Go type — comparisons go through Kind, never through
// pointer identity, so a Kind survives being wrapped.
type Kind int

const (
	// KindNone means "no error" — used as the zero value of closeReason.
	KindNone Kind = iota
	// KindInvalidArgument marks a malformed user call: zero length, a
	// buffer smaller than the claimed size, or a nil callback.
	KindInvalidArgument
	// KindStreamIsReading marks a read issued while another is pending.
	KindStreamIsReading
	// KindStreamNotReadable marks an operation on a read-half-closed stream.
	KindStreamNotReadable
	// KindStreamNotWritable marks an operation on a write-half-closed stream.
	KindStreamNotWritable
	// KindStreamWriteBufferOverflow marks a write the WriteQueue could not
	// accept without exceeding its limit.
	KindStreamWriteBufferOverflow
	// KindInvalidWindowSize marks an AdjustWindowSize call outside bounds.
	KindInvalidWindowSize
	// KindReceiveWindowOverflow marks the peer exceeding its send credit;
	// fatal for the stream.
	KindReceiveWindowOverflow
	// KindStreamClosedByHost marks a clean local close. It surfaces as
	// success to the close callback and as an error to pending reads/writes.
	KindStreamClosedByHost
	// KindStreamResetByHost marks a local Reset().
	KindStreamResetByHost
	// KindStreamResetByPeer marks an RST received from the peer.
	KindStreamResetByPeer
	// KindInternalError marks a broken accounting invariant.
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidArgument:
		return "invalid argument"
	case KindStreamIsReading:
		return "stream is reading"
	case KindStreamNotReadable:
		return "stream not readable"
	case KindStreamNotWritable:
		return "stream not writable"
	case KindStreamWriteBufferOverflow:
		return "stream write buffer overflow"
	case KindInvalidWindowSize:
		return "invalid window size"
	case KindReceiveWindowOverflow:
		return "receive window overflow"
	case KindStreamClosedByHost:
		return "stream closed by host"
	case KindStreamResetByHost:
		return "stream reset by host"
	case KindStreamResetByPeer:
		return "stream reset by peer"
	case KindInternalError:
		return "internal error"
	default:
		return "unknown stream error"
	}
}

// Error is the concrete error type produced by this package. Compare
// against a Kind with errors.Is, never with ==.
type Error struct {
	Kind Kind
	err  error // optional wrapped cause, for KindInternalError et al.
}

func newErr(k Kind) *Error { return &Error{Kind: k} }

func wrapErr(k Kind, cause error) *Error { return &Error{Kind: k, err: cause} }

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is a *Error with the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, k Kind) bool {
	se, ok := err.(*Error)
	if !ok {
		return false
	}
	return se.Kind == k
}
