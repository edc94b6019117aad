package remux

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/muxarr/internal/media"
)

// Kind classifies a session failure.
type Kind int

// Failure kinds.
const (
	// KindUsage is a missing input or output URL, reported before anything is opened.
	KindUsage Kind = iota + 1
	// KindOpen is an input probe or output allocation failure.
	KindOpen
	// KindSetup is a stream, decoder or encoder resolution/configuration failure.
	KindSetup
	// KindIO is a read or write failure.
	KindIO
	// KindCodec is a decode or encode failure.
	KindCodec
)

// String returns the kind name as used in logs.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindOpen:
		return "open"
	case KindSetup:
		return "setup"
	case KindIO:
		return "io"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Integer results of Execute and Status. Collaborator failures report their
// own negative codes.
const (
	StatusOK      = 0
	StatusUsage   = 1
	StatusStopped = 2
	StatusFailed  = -1
)

// ErrStopped is returned by Run when the session was force-stopped, either by
// Stop or by cancellation of the run context.
var ErrStopped = errors.New("session stopped")

// ErrMissingURL is the usage failure for an empty input or output URL.
var ErrMissingURL = errors.New("input and output URLs are required")

// Error is a classified session failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the failure kind of err, 0 when err is not a classified failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Status maps a Run result to the integer status: 0 on success, StatusUsage
// for missing URLs, StatusStopped for a forced stop, the collaborator's
// negative error code when it carries one, StatusFailed otherwise.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrStopped) {
		return StatusStopped
	}
	if KindOf(err) == KindUsage {
		return StatusUsage
	}
	if code, ok := media.ErrorCode(err); ok && code < 0 {
		return code
	}
	return StatusFailed
}
