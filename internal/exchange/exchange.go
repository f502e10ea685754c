package exchange

import (
	"errors"
	"fmt"

	"github.com/bexproto/bex/internal/constants"
	"github.com/bexproto/bex/internal/interfaces"
)

// ErrOverflow is returned from onDataReceived when a valid envelope
// arrived but every local slot is holding a region — the remote
// violated the slot-accounting contract (spec §7.2).
var ErrOverflow = errors.New("exchange: overflow, no free slot for incoming buffer")

// Config parameterizes a new Exchange.
type Config struct {
	Transport interfaces.Transport

	// RegionSize is the byte size of each Buffer's region. 0 selects
	// the spec default (32*1024 cells * 4 bytes).
	RegionSize int

	// BufferCount is N; the pool holds 2*N slots. 0 selects the
	// default of 4.
	BufferCount int

	// InstanceID is this exchange's process-unique id. 0 means "adopt
	// the remote's id from the first valid message" (spec §3.2).
	InstanceID uint32

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Exchange is the Buffer Exchange of spec §3.2/§4.2: a pool of 2*N
// Buffers, a transport binding, slot accounting, and the flow-control
// gate that decides whether an OUTGOING buffer sends immediately or
// waits for an opportunistic flush.
type Exchange struct {
	transport interfaces.Transport
	n         int
	total     int
	slots     []*Buffer

	instanceID uint32

	// numSlotsAvailable per spec §3.2: incremented on send, decremented
	// on receive. Starts at n (the n NOT_AVAILABLE slots able to
	// receive an incoming region).
	numSlotsAvailable int

	logger   interfaces.Logger
	observer interfaces.Observer

	onData      func(buf *Buffer, sourceID *uint32)
	unsubscribe func()
}

// NewExchange builds the 2*N Buffer pool (N AVAILABLE with fresh
// regions, N NOT_AVAILABLE with none), wires each Buffer's onOutgoing
// callback to the flow-control gate, and registers a message listener
// on the transport (spec §4.2).
func NewExchange(cfg Config) (*Exchange, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("exchange: Transport is required")
	}

	n := cfg.BufferCount
	if n <= 0 {
		n = constants.DefaultBufferCount
	}
	size := cfg.RegionSize
	if size <= 0 {
		size = constants.DefaultChannelSize * constants.CellSize
	}
	total := 2 * n

	slots := make([]*Buffer, total)
	for i := 0; i < n; i++ {
		slots[i] = NewBuffer(size)
	}
	for i := n; i < total; i++ {
		slots[i] = NewBuffer(0)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}

	e := &Exchange{
		transport:         cfg.Transport,
		n:                 n,
		total:             total,
		slots:             slots,
		instanceID:        cfg.InstanceID,
		numSlotsAvailable: n,
		logger:            cfg.Logger,
		observer:          observer,
	}

	for _, buf := range slots {
		buf.onOutgoing = e.onBufferOutgoing
	}

	e.unsubscribe = cfg.Transport.Listen(e.handleEnvelope)
	return e, nil
}

// InstanceID returns the exchange's current instance id (0 if not yet
// adopted from a remote message).
func (e *Exchange) InstanceID() uint32 { return e.instanceID }

// NumSlotsAvailable returns the current slot-accounting counter (spec
// §8 property 5).
func (e *Exchange) NumSlotsAvailable() int { return e.numSlotsAvailable }

// Total returns 2*N, the pool size.
func (e *Exchange) Total() int { return e.total }

// OnData registers the handler invoked when a new batch arrives (spec
// §6.4's data(buffer, sourceId) event).
func (e *Exchange) OnData(handler func(buf *Buffer, sourceID *uint32)) {
	e.onData = handler
}

// GetWriteBuffer scans slots in insertion order for the first AVAILABLE
// one, reserves it, and returns it. Returns nil if none is available
// (back-pressure, not an error, per spec §7).
func (e *Exchange) GetWriteBuffer() *Buffer {
	for _, buf := range e.slots {
		if buf.State() == Available {
			if _, err := buf.Reserve(); err != nil {
				// Unreachable: we just observed Available under the
				// single-threaded cooperative model of spec §5.
				continue
			}
			return buf
		}
	}
	e.observer.ObserveSlotWait()
	return nil
}

// onBufferOutgoing is the flow-control gate of spec §4.2: send
// immediately if the remote currently holds at least one slot
// (total - numSlotsAvailable >= 1); otherwise leave the buffer OUTGOING
// for a later opportunistic flush.
func (e *Exchange) onBufferOutgoing(buf *Buffer) {
	if e.total-e.numSlotsAvailable >= 1 {
		if err := e.send(buf); err != nil && e.logger != nil {
			e.logger.Errorf("exchange: send failed: %v", err)
		}
	}
}

// send yields buf's region via Send, posts it through the transport,
// and increments numSlotsAvailable.
func (e *Exchange) send(buf *Buffer) error {
	region, err := buf.Send()
	if err != nil {
		return err
	}
	if err := e.transport.Post(interfaces.Envelope{
		Identifier: constants.ProtocolMagic,
		Instance:   e.instanceID,
		Buffer:     region,
	}); err != nil {
		return err
	}
	e.numSlotsAvailable++
	e.observer.ObserveSend(len(region))
	return nil
}

// handleEnvelope is the transport listener callback: onMessageReceived
// of spec §4.2.
func (e *Exchange) handleEnvelope(env interfaces.Envelope) {
	if err := e.onMessageReceived(env); err != nil && e.logger != nil {
		e.logger.Errorf("exchange: %v", err)
	}
}

// onMessageReceived validates the envelope and, once accepted, calls
// onDataReceived. A wrong protocol identifier is a silent drop (spec
// §7's ProtocolMismatch carve-out), not an error.
//
// Instance binding: instanceID == 0 means this exchange hasn't adopted
// a remote id yet, so the first valid envelope's Instance is adopted
// (spec §3.2's "binding the pair"). Once adopted, an envelope carrying
// a different Instance belongs to a different pairing and is dropped
// the same way a bad identifier is.
func (e *Exchange) onMessageReceived(env interfaces.Envelope) error {
	if env.Identifier != constants.ProtocolMagic {
		return nil
	}
	if e.instanceID == 0 {
		e.instanceID = env.Instance
	} else if env.Instance != e.instanceID {
		return nil
	}
	return e.onDataReceived(env.Buffer, env.SourceID)
}

// onDataReceived implements spec §4.2 in one pass over all slots: every
// OUTGOING slot is opportunistically flushed via send (which frees it
// to NOT_AVAILABLE), and the first NOT_AVAILABLE slot encountered is
// the placement candidate for the incoming region. If no candidate
// exists, the remote has violated slot accounting: ErrOverflow.
func (e *Exchange) onDataReceived(region []byte, sourceID *uint32) error {
	candidate := -1
	for i, buf := range e.slots {
		if buf.State() == Outgoing {
			if err := e.send(buf); err != nil {
				return err
			}
		}
		if candidate == -1 && buf.State() == NotAvailable {
			candidate = i
		}
	}
	if candidate == -1 {
		e.observer.ObserveOverflow()
		return ErrOverflow
	}

	buf := e.slots[candidate]
	if err := buf.SetReceived(region); err != nil {
		return err
	}
	e.numSlotsAvailable--
	e.observer.ObserveReceive(len(region))

	if e.onData != nil {
		e.onData(buf, sourceID)
	}
	return nil
}

// Destroy removes the transport listener. After Destroy, no further
// envelopes are delivered to this exchange.
func (e *Exchange) Destroy() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}
