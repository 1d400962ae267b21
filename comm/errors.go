package comm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("comm: closed")
	// ErrMismatch is returned when a received frame does not match the expected
	// operation, sequence number or size. Ranks issued collectives in different orders.
	ErrMismatch = errors.New("comm: frame mismatch")
	// ErrChecksum is returned by transports when a frame fails its integrity check.
	ErrChecksum = errors.New("comm: checksum mismatch")
	// ErrInvalidRank is returned for peer or root ranks outside the communicator.
	ErrInvalidRank = errors.New("comm: invalid rank")
)

// Code classifies an Error.
type Code int

const (
	// CodeIO is any transport failure not covered by another code.
	CodeIO Code = iota + 1
	// CodeClosed means the local or remote transport was closed.
	CodeClosed
	// CodeMismatch means the peers disagree on the operation sequence.
	CodeMismatch
	// CodeChecksum means a frame was corrupted in transit.
	CodeChecksum
	// CodeCanceled means the context ended first.
	CodeCanceled
)

func (c Code) String() string {
	switch c {
	case CodeIO:
		return "io"
	case CodeClosed:
		return "closed"
	case CodeMismatch:
		return "mismatch"
	case CodeChecksum:
		return "checksum"
	case CodeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error describes a failed communication step. Errors are never retried.
type Error struct {
	Op   string
	Peer int
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("comm: %s with rank %d: %s: %v", e.Op, e.Peer, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(err error) Code {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrMismatch):
		return CodeMismatch
	case errors.Is(err, ErrChecksum):
		return CodeChecksum
	default:
		return CodeIO
	}
}

func wrap(op string, peer int, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Peer: peer, Code: classify(err), Err: err}
}
