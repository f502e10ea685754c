package bex

import "github.com/bexproto/bex/internal/exchange"

// BufferState is a Buffer's position in the five-state lifecycle of
// spec §3.1: NOT_AVAILABLE -> RECEIVED -> AVAILABLE -> RESERVED ->
// OUTGOING -> NOT_AVAILABLE.
type BufferState = exchange.State

const (
	BufferNotAvailable = exchange.NotAvailable
	BufferReceived     = exchange.Received
	BufferAvailable    = exchange.Available
	BufferReserved     = exchange.Reserved
	BufferOutgoing     = exchange.Outgoing
)

// Buffer is a single transfer region plus its ownership state (spec
// §3.1/§4.1). Re-exported from internal/exchange so callers working
// directly with the low-level primitives (rather than through Endpoint)
// don't need an internal import.
//
// Buffer's own operations return exchange.ErrIllegalState directly
// (not the root *Error type); match it with errors.Is, not IsKind.
type Buffer = exchange.Buffer

// NewBuffer constructs a Buffer directly: size > 0 starts it AVAILABLE
// with a freshly allocated region, size == 0 starts it NOT_AVAILABLE
// with no region, awaiting SetReceived. Most callers get Buffers from
// an Exchange's GetWriteBuffer or data callback instead; this is for
// tests and callers driving the state machine standalone.
func NewBuffer(size int) *Buffer { return exchange.NewBuffer(size) }
