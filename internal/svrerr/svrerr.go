// Package svrerr implements the closed error taxonomy of the wire protocol
// (spec §7): every request/response verb returns one of these codes, and
// every code round-trips as a signed integer on the wire (§6).
package svrerr

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// Code is the wire-transmissible error code. 0 is reserved for success and
// is never constructed by this package (callers send it directly).
type Code int32

const (
	CodeSuccess          Code = 0
	CodeParseError       Code = 1
	CodeNoSuchEncoding   Code = 2
	CodeNoSuchSource     Code = 3
	CodeNoSuchStream     Code = 4
	CodeNameInUse        Code = 5
	CodeInvalidState     Code = 6
	CodeInvalidArgument  Code = 7
	CodeUnauthorized     Code = 8
	CodeTimeout          Code = 9
	CodePeerDisconnected Code = 10
	CodeInternal         Code = 11
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeParseError:
		return "ParseError"
	case CodeNoSuchEncoding:
		return "NoSuchEncoding"
	case CodeNoSuchSource:
		return "NoSuchSource"
	case CodeNoSuchStream:
		return "NoSuchStream"
	case CodeNameInUse:
		return "NameInUse"
	case CodeInvalidState:
		return "InvalidState"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeTimeout:
		return "Timeout"
	case CodePeerDisconnected:
		return "PeerDisconnected"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", int32(c))
	}
}

// codedMarker is implemented by every error type in this package so callers
// can recover the wire code from an arbitrary error chain via errors.As.
type codedMarker interface {
	error
	Code() Code
}

// Error is the concrete type behind every constructor below. Op names the
// high-level operation (e.g. "source.setEncoding"), Err is the optional
// underlying cause.
type Error struct {
	code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.code, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.Op, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Code() Code    { return e.code }

func newErr(code Code, op string, cause error) error { return &Error{code: code, Op: op, Err: cause} }

func NewParseError(op string, cause error) error  { return newErr(CodeParseError, op, cause) }
func NewNoSuchEncoding(op string, cause error) error {
	return newErr(CodeNoSuchEncoding, op, cause)
}
func NewNoSuchSource(op string, cause error) error { return newErr(CodeNoSuchSource, op, cause) }
func NewNoSuchStream(op string, cause error) error { return newErr(CodeNoSuchStream, op, cause) }
func NewNameInUse(op string, cause error) error    { return newErr(CodeNameInUse, op, cause) }
func NewInvalidState(op string, cause error) error { return newErr(CodeInvalidState, op, cause) }
func NewInvalidArgument(op string, cause error) error {
	return newErr(CodeInvalidArgument, op, cause)
}
func NewUnauthorized(op string, cause error) error { return newErr(CodeUnauthorized, op, cause) }
func NewPeerDisconnected(op string, cause error) error {
	return newErr(CodePeerDisconnected, op, cause)
}
func NewInternal(op string, cause error) error { return newErr(CodeInternal, op, cause) }

// TimeoutError is distinct because it also carries the exceeded duration,
// used for both request/response waits and the block drop policy (§5).
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("Timeout: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Code() Code    { return CodeTimeout }

func NewTimeout(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}

// IsTimeout reports whether err is (or wraps) a Timeout-coded error, a
// context deadline, or any error exposing Timeout() bool that returns true.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toErr interface{ Timeout() bool }
	if stdErrors.As(err, &toErr) && toErr.Timeout() {
		return true
	}
	return false
}

// CodeOf extracts the wire code from err, defaulting to Internal when err
// does not carry one (an invariant violation per §7's fatal-path policy
// callers should have already handled before reaching here).
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var cm codedMarker
	if stdErrors.As(err, &cm) {
		return cm.Code()
	}
	return CodeInternal
}

// Usage pattern:
//  if !ok { return NewNoSuchSource("source.open", fmt.Errorf("name %q", name)) }
// Keep layering context with fmt.Errorf("...: %w", err) under Err.
