// Package errors provides typed error handling for distccd.
//
// Every error raised inside the server is classified by a Kind, and every
// Kind carries a fixed process exit code in [100,255], matching the
// historical distccd exit status contract. All errors support errors.Is()
// and errors.As() for inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of a distccd error, and determines the
// process exit code when the error reaches main().
type Kind int

const (
	// General is an unclassified failure.
	General Kind = iota
	// BadArguments indicates a malformed command line or request.
	BadArguments
	// BindFailed indicates the listener could not bind its address.
	BindFailed
	// ConnectFailed indicates an outbound connection attempt failed.
	ConnectFailed
	// CompilerCrashed indicates the spawned compiler died on a signal.
	CompilerCrashed
	// OutOfMemory indicates an allocation failure.
	OutOfMemory
	// BadHostspec indicates a malformed host/mask specification.
	BadHostspec
	// IOError indicates a read or write on a socket or file failed.
	IOError
	// Truncated indicates a peer closed the connection mid-frame.
	Truncated
	// ProtocolError indicates the wire protocol was violated.
	ProtocolError
	// CompilerMissing indicates the requested compiler could not be found.
	CompilerMissing
	// Recursion indicates distccd was asked to recurse into itself.
	Recursion
	// SetuidFailed indicates privilege drop failed.
	SetuidFailed
	// AccessDenied indicates the access filter or auth layer rejected a peer.
	AccessDenied
	// Busy indicates the worker pool had no capacity for a new job.
	Busy
	// NoSuchFile indicates a referenced path does not exist.
	NoSuchFile
	// NoHosts indicates no usable worker was available.
	NoHosts
	// Gone indicates a peer or job disappeared mid-operation.
	Gone
	// Timeout indicates an I/O deadline was exceeded.
	Timeout
)

// ExitCode returns the process exit status for a Kind, matching distccd's
// historical enum dcc_exitcode. General maps to 100; all others are
// 101-118 in enum declaration order.
func (k Kind) ExitCode() int {
	if k == General {
		return 100
	}
	return 100 + int(k)
}

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case General:
		return "general failure"
	case BadArguments:
		return "bad arguments"
	case BindFailed:
		return "bind failed"
	case ConnectFailed:
		return "connect failed"
	case CompilerCrashed:
		return "compiler crashed"
	case OutOfMemory:
		return "out of memory"
	case BadHostspec:
		return "bad host specification"
	case IOError:
		return "i/o error"
	case Truncated:
		return "truncated input"
	case ProtocolError:
		return "protocol error"
	case CompilerMissing:
		return "compiler not found"
	case Recursion:
		return "recursive invocation"
	case SetuidFailed:
		return "setuid failed"
	case AccessDenied:
		return "access denied"
	case Busy:
		return "server busy"
	case NoSuchFile:
		return "no such file"
	case NoHosts:
		return "no hosts available"
	case Gone:
		return "peer gone"
	case Timeout:
		return "timed out"
	default:
		return "unknown error"
	}
}

// DistccError is the error type carried through every distccd operation.
type DistccError struct {
	// Op is the operation that failed (e.g. "accept", "compile", "auth").
	Op string
	// Peer is the remote address associated with the error, if any.
	Peer string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional human-readable context.
	Detail string
}

func (e *DistccError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var msg string
	if e.Peer != "" {
		msg = fmt.Sprintf("%s: ", e.Peer)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *DistccError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *DistccError with the same Kind.
func (e *DistccError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*DistccError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a DistccError with no underlying cause.
func New(kind Kind, op, detail string) *DistccError {
	return &DistccError{Op: op, Kind: kind, Detail: detail}
}

// Wrap attaches an operation and kind to an underlying error.
func Wrap(err error, kind Kind, op string) *DistccError {
	return &DistccError{Op: op, Err: err, Kind: kind}
}

// WrapWithPeer attaches peer context to a wrapped error.
func WrapWithPeer(err error, kind Kind, op, peer string) *DistccError {
	return &DistccError{Op: op, Peer: peer, Err: err, Kind: kind}
}

// WrapWithDetail attaches human-readable detail to a wrapped error.
func WrapWithDetail(err error, kind Kind, op, detail string) *DistccError {
	return &DistccError{Op: op, Err: err, Kind: kind, Detail: detail}
}

// IsKind reports whether err is a DistccError of the given Kind.
func IsKind(err error, kind Kind) bool {
	var derr *DistccError
	if errors.As(err, &derr) {
		return derr.Kind == kind
	}
	return false
}

// GetKind extracts the Kind from err, if it is a DistccError.
func GetKind(err error) (Kind, bool) {
	var derr *DistccError
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return 0, false
}

// ExitCode returns the process exit code that should be used for err: the
// Kind's code if err is a DistccError, or 100 (general failure) otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := GetKind(err); ok {
		return kind.ExitCode()
	}
	return General.ExitCode()
}

// Re-exported for convenience so callers need not import errors twice.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
