// Package pytrainerr defines the error taxonomy shared across the PyTrain
// core: wire codecs, the dispatcher, the synchronizer, and the control
// plane all classify failures against these sentinels so callers can use
// errors.Is/errors.As instead of string matching.
package pytrainerr

import "errors"

var (
	// ErrInvalidFrame covers SOP/EOP mismatch, bad checksum, or a truncated
	// packet. Callers discard the frame and re-sync on the next SOP.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnknownOpcode covers a leading byte the codec does not recognize.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrOutOfRange covers an address or data value outside a catalog
	// entry's declared bounds on an outbound request. Requests that fail
	// this check are never queued.
	ErrOutOfRange = errors.New("value out of range")

	// ErrBrokenLink covers a serial device unplugged or a TCP peer closed.
	ErrBrokenLink = errors.New("link broken")

	// ErrTimeout covers a startup record request left unanswered after
	// retries are exhausted.
	ErrTimeout = errors.New("timeout")

	// ErrClientEvicted covers a server accepting a REGISTER with a new
	// UUID for an (ip, port) pair it already has a session for.
	ErrClientEvicted = errors.New("client evicted")
)

// FrameError wraps ErrInvalidFrame with the offending reason and raw bytes,
// mirroring the sentinel+wrapper convention used throughout the codec and
// synchronizer packages.
type FrameError struct {
	Reason string
	Bytes  []byte
}

func (e *FrameError) Error() string {
	if e == nil {
		return ErrInvalidFrame.Error()
	}
	return "invalid frame: " + e.Reason
}

func (e *FrameError) Unwrap() error { return ErrInvalidFrame }

// NewFrameError builds a FrameError, copying the offending bytes so the
// caller's buffer can be reused immediately.
func NewFrameError(reason string, raw []byte) *FrameError {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &FrameError{Reason: reason, Bytes: cp}
}

// RangeError wraps ErrOutOfRange with the field and legal bounds.
type RangeError struct {
	Field      string
	Value      int
	Min, Max   int
}

func (e *RangeError) Error() string {
	return "out of range: " + e.Field
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// TimeoutError wraps ErrTimeout with the key that never got a reply.
type TimeoutError struct {
	Key     string
	Retries int
}

func (e *TimeoutError) Error() string {
	return "timeout: " + e.Key
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
