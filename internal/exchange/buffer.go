// Package exchange implements the Buffer (spec §3.1/§4.1) and Buffer
// Exchange (spec §3.2/§4.2) components: the five-state ownership
// machine for a single transfer region, and the pool/flow-control
// logic that moves regions between a local slot pool and a remote
// peer through a Transport.
package exchange

import (
	"errors"
	"fmt"
)

// State is a Buffer's position in the five-state lifecycle ring of
// spec §3.1.
type State int

const (
	NotAvailable State = iota
	Received
	Available
	Reserved
	Outgoing
)

func (s State) String() string {
	switch s {
	case NotAvailable:
		return "NOT_AVAILABLE"
	case Received:
		return "RECEIVED"
	case Available:
		return "AVAILABLE"
	case Reserved:
		return "RESERVED"
	case Outgoing:
		return "OUTGOING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrIllegalState is returned whenever an operation is attempted from a
// Buffer state that doesn't permit it (spec §7.1). Use errors.Is.
var ErrIllegalState = errors.New("exchange: illegal buffer state")

func illegalState(op string, s State) error {
	return fmt.Errorf("%w: %s on %s", ErrIllegalState, op, s)
}

// Buffer is a single transfer region plus its ownership state. It has
// no internal synchronization: per spec §5, each side of an Exchange is
// single-threaded cooperative, and a Buffer is never shared across
// goroutines without external coordination.
type Buffer struct {
	state  State
	region []byte

	// onOutgoing is invoked synchronously, inside Release, the instant
	// the buffer transitions to Outgoing. The Exchange wires this to
	// its flow-control gate (spec §4.2's onBufferOutgoing).
	onOutgoing func(*Buffer)

	// onAvailable mirrors the "available" event of spec §6.4; unused by
	// Exchange today but kept symmetric with onOutgoing for callers
	// that want to observe the full Buffer event surface.
	onAvailable func(*Buffer)
}

// NewBuffer constructs a Buffer. size > 0 starts it AVAILABLE with a
// freshly allocated region; size == 0 starts it NOT_AVAILABLE with no
// region, awaiting SetReceived.
func NewBuffer(size int) *Buffer {
	if size > 0 {
		return &Buffer{state: Available, region: make([]byte, size)}
	}
	return &Buffer{state: NotAvailable}
}

// State reports the buffer's current lifecycle state.
func (b *Buffer) State() State { return b.state }

// Region returns the buffer's current region, or nil in NOT_AVAILABLE.
func (b *Buffer) Region() []byte { return b.region }

// Reserve hands the buffer to the application for writing: requires
// AVAILABLE, transitions to RESERVED, returns the raw region.
func (b *Buffer) Reserve() ([]byte, error) {
	if b.state != Available {
		return nil, illegalState("Reserve", b.state)
	}
	b.state = Reserved
	return b.region, nil
}

// Release requires RECEIVED or RESERVED. From RECEIVED it moves to
// AVAILABLE and fires onAvailable; from RESERVED it moves to OUTGOING
// and fires onOutgoing. Any other state is IllegalState.
func (b *Buffer) Release() error {
	switch b.state {
	case Received:
		b.state = Available
		if b.onAvailable != nil {
			b.onAvailable(b)
		}
		return nil
	case Reserved:
		b.state = Outgoing
		if b.onOutgoing != nil {
			b.onOutgoing(b)
		}
		return nil
	default:
		return illegalState("Release", b.state)
	}
}

// Send requires OUTGOING; transitions to NOT_AVAILABLE and returns the
// region so the caller can hand it to the transport. The buffer's own
// region reference is cleared — per spec §5, the sender must not
// retain it after send.
func (b *Buffer) Send() ([]byte, error) {
	if b.state != Outgoing {
		return nil, illegalState("Send", b.state)
	}
	region := b.region
	b.region = nil
	b.state = NotAvailable
	return region, nil
}

// SetReceived requires NOT_AVAILABLE; attaches region and transitions
// to RECEIVED.
func (b *Buffer) SetReceived(region []byte) error {
	if b.state != NotAvailable {
		return illegalState("SetReceived", b.state)
	}
	b.region = region
	b.state = Received
	return nil
}
