package bex

import (
	"github.com/bexproto/bex/internal/codec"
	"github.com/bexproto/bex/internal/proc"
)

// Value is a tagged procedure argument (spec §1's three primitive
// kinds: INT, FLOAT, STR). Re-exported from internal/codec so callers
// building Call/CallInstance arguments don't need an internal import.
type Value = codec.Value

// Int, Float, and Str build argument Values of each wire kind.
func Int(v int32) Value     { return codec.Int(v) }
func Float(v float32) Value { return codec.Float(v) }
func Str(v string) Value    { return codec.Str(v) }

// HandlerFunc is a non-instanced procedure's receive-side callback.
type HandlerFunc = codec.HandlerFunc

// InstanceHandlerFunc is an instanced procedure's receive-side
// callback; instanceID is the per-call instance id encoded with the
// call, selecting an element of the named registry (not the envelope's
// exchange Instance).
type InstanceHandlerFunc = codec.InstanceHandlerFunc

// Table and Entry re-export the procedure table types (component C of
// spec §3.3) so Config.Table can be built without an internal import.
type Table = proc.Table
type Entry = proc.Entry

// ArgKind is a procedure parameter's wire type.
type ArgKind = proc.ArgKind

// Wire type constants for building Entry.Args.
const (
	KindInt    = proc.Int
	KindFloat  = proc.Float
	KindString = proc.String
)
