package bex

import (
	"errors"
	"fmt"
)

// Error is a structured bex error: an operation, a high-level kind the
// caller can branch on, a human message, and an optionally wrapped
// cause.
type Error struct {
	Op    string // operation that failed, e.g. "GetWriteBuffer", "Post"
	Kind  ErrorKind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("bex: %s: %s (%s)", e.Op, e.Msg, e.Kind)
	}
	return fmt.Sprintf("bex: %s (%s)", e.Msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is lets errors.Is match on Kind alone, e.g. errors.Is(err, ErrOverflow).
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// ErrorKind is the high-level error category of spec §7.
type ErrorKind string

const (
	// KindIllegalState covers any operation attempted from a Buffer
	// state that doesn't permit it (spec §7.1).
	KindIllegalState ErrorKind = "illegal state"

	// KindOverflow covers a valid incoming region arriving when no local
	// slot is NOT_AVAILABLE to receive it (spec §7.2). An Exchange with
	// no AVAILABLE slot to hand out is back-pressure (GetWriteBuffer
	// returns nil), not an overflow.
	KindOverflow ErrorKind = "overflow"

	// KindProtocolMismatch covers an incoming envelope whose identifier
	// doesn't match the expected protocol magic (spec §7.3).
	KindProtocolMismatch ErrorKind = "protocol mismatch"

	// KindSetupMissing covers use of a component before its required
	// setup step (codec compilation, transport binding) ran.
	KindSetupMissing ErrorKind = "setup missing"
)

// Sentinel *Error values for errors.Is comparisons against a kind,
// e.g. errors.Is(err, ErrOverflow).
var (
	ErrIllegalState     = &Error{Kind: KindIllegalState, Msg: "illegal state"}
	ErrOverflow         = &Error{Kind: KindOverflow, Msg: "overflow"}
	ErrProtocolMismatch = &Error{Kind: KindProtocolMismatch, Msg: "protocol mismatch"}
	ErrSetupMissing     = &Error{Kind: KindSetupMissing, Msg: "setup missing"}
)

// NewError builds a structured error for op/kind/msg.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapError attaches op/kind context to an existing error, preserving it
// as Inner for Unwrap. When inner is itself a *Error with no Op, the
// result copies inner's Kind, Msg and Inner and only sets Op; kind is
// then ignored.
func WrapError(op string, kind ErrorKind, inner error) *Error {
	if inner == nil {
		return nil
	}
	if be, ok := inner.(*Error); ok && be.Op == "" {
		return &Error{Op: op, Kind: be.Kind, Msg: be.Msg, Inner: be.Inner}
	}
	return &Error{Op: op, Kind: kind, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a *Error of the given kind, anywhere in
// its Unwrap chain.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}
