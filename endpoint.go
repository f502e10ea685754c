package bex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bexproto/bex/internal/codec"
	"github.com/bexproto/bex/internal/exchange"
	"github.com/bexproto/bex/internal/proc"
)

// Config parameterizes a new Endpoint, mirroring the shape of the
// teacher's DeviceParams: every field has a sensible default via
// DefaultConfig, and the caller only sets what differs.
type Config struct {
	// Table is the procedure table (component C) shared by both sides
	// of the connection; see internal/proc.Table / proc.Validate.
	Table proc.Table

	// Local is this endpoint's Endpoint value in Table's entries — the
	// side it plays when deciding reader vs writer for each procedure.
	Local string

	// ChannelSize is the batch capacity in cells. 0 selects the spec
	// default (32*1024 cells).
	ChannelSize int

	// BufferCount is N; the underlying Exchange keeps 2*N regions.
	// 0 selects the default of 4.
	BufferCount int

	// InstanceID seeds this endpoint's instance id. 0 means "adopt from
	// the first valid message" per spec §3.2.
	InstanceID uint32

	Transport Transport
	Logger    Logger
	Observer  Observer
}

// DefaultConfig returns a Config with every size/count field at the
// spec defaults; Table, Local, and Transport are still required.
func DefaultConfig() Config {
	return Config{
		ChannelSize: 0,
		BufferCount: 0,
	}
}

// Endpoint wires a compiled codec.Schema to an exchange.Exchange the
// way the teacher's root Device wires ctrl + queue.Runner + a Backend:
// a consumer calls Call/CallInstance and registers handlers without
// manually threading GetWriteBuffer -> Codec.WriteBuffer -> Release ->
// wait-for-data -> Codec.ReadBuffer -> dispatch -> Release themselves.
type Endpoint struct {
	schema   *codec.Schema
	exchange *exchange.Exchange
	observer Observer
	logger   Logger

	mu           sync.Mutex
	handlerCodec *codec.Codec

	writeBuf   *exchange.Buffer
	writeCodec *codec.Codec

	closed bool
}

// NewEndpoint compiles cfg.Table for cfg.Local, builds the underlying
// Exchange, and wires buffer-received events to batch decode.
func NewEndpoint(cfg Config) (*Endpoint, error) {
	if cfg.Local == "" {
		return nil, fmt.Errorf("bex: Config.Local is required")
	}
	schema, err := codec.Compile(cfg.Table, cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("bex: compile: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	ex, err := exchange.NewExchange(exchange.Config{
		Transport:   cfg.Transport,
		RegionSize:  cfg.ChannelSize * 4,
		BufferCount: cfg.BufferCount,
		InstanceID:  cfg.InstanceID,
		Logger:      cfg.Logger,
		Observer:    observer,
	})
	if err != nil {
		return nil, fmt.Errorf("bex: %w", err)
	}

	e := &Endpoint{
		schema:   schema,
		exchange: ex,
		observer: observer,
		logger:   cfg.Logger,
	}
	ex.OnData(e.onBufferReceived)
	return e, nil
}

// BindHandler registers a direct (non-instanced) procedure handler, the
// same way the teacher's Backend implementation is plugged into a
// Device: business logic lives behind a small named surface, wired in
// once at setup.
func (e *Endpoint) BindHandler(name string, h codec.HandlerFunc) error {
	c, err := e.readerCodec()
	if err != nil {
		return err
	}
	c.BindHandler(name, h)
	return nil
}

// BindInstanceHandler registers an instanced procedure handler.
func (e *Endpoint) BindInstanceHandler(instance, name string, h codec.InstanceHandlerFunc) error {
	c, err := e.readerCodec()
	if err != nil {
		return err
	}
	c.BindInstanceHandler(instance, name, h)
	return nil
}

// readerCodec lazily builds the reader-side Codec that holds the
// registered handlers. onBufferReceived reuses this same Codec to decode
// every received region; ReadBuffer resets its read cursor per region.
func (e *Endpoint) readerCodec() (*codec.Codec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlerCodec == nil {
		c, err := codec.NewCodec(e.schema, 0)
		if err != nil {
			return nil, err
		}
		e.handlerCodec = c
	}
	return e.handlerCodec, nil
}

// Call encodes a non-instanced procedure call into the endpoint's
// currently-accumulating outgoing batch, opening one if none is open.
// The batch is not sent until Flush (or an automatic flush triggered by
// the batch filling up); this mirrors spec §4.4's batch codec, where
// many calls share one region before a single release/send, rather
// than one buffer per call.
func (e *Endpoint) Call(name string, args ...codec.Value) error {
	return e.enqueue(func(c *codec.Codec) error {
		return c.Call(name, args...)
	})
}

// CallInstance encodes a single instanced procedure call into the
// current outgoing batch.
func (e *Endpoint) CallInstance(instance string, instanceID int32, name string, args ...codec.Value) error {
	return e.enqueue(func(c *codec.Codec) error {
		return c.CallInstance(instance, instanceID, name, args...)
	})
}

func (e *Endpoint) enqueue(write func(*codec.Codec) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writeCodec == nil {
		if err := e.openWriteBufferLocked(); err != nil {
			return err
		}
	}

	if err := write(e.writeCodec); err != nil {
		if errors.Is(err, codec.ErrBufferTooSmall) {
			// Batch full: flush what's accumulated and retry against a
			// freshly opened one.
			if ferr := e.flushLocked(); ferr != nil {
				return ferr
			}
			if err := e.openWriteBufferLocked(); err != nil {
				return err
			}
			if err := write(e.writeCodec); err != nil {
				return err
			}
			e.observer.ObserveBatch(1, true)
			return nil
		}
		return err
	}
	e.observer.ObserveBatch(1, true)
	return nil
}

// openWriteBufferLocked reserves a fresh write buffer from the Exchange
// and binds a new write-side Codec to it. Callers hold e.mu.
func (e *Endpoint) openWriteBufferLocked() error {
	buf := e.exchange.GetWriteBuffer()
	if buf == nil {
		return fmt.Errorf("bex: no write buffer available (back-pressure)")
	}
	c, err := codec.NewCodec(e.schema, 0)
	if err != nil {
		return err
	}
	if err := c.WriteBuffer(buf.Region()); err != nil {
		return err
	}
	e.writeBuf = buf
	e.writeCodec = c
	return nil
}

// Flush releases the currently-accumulating outgoing batch, if any,
// handing it to the Exchange for send (immediate or deferred per the
// flow-control gate). A no-op when nothing is pending.
func (e *Endpoint) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Endpoint) flushLocked() error {
	if e.writeBuf == nil {
		return nil
	}
	buf := e.writeBuf
	e.writeBuf, e.writeCodec = nil, nil
	return buf.Release()
}

// onBufferReceived is the Exchange's data(buffer, sourceId) callback
// (spec §6.4): it binds a read-side Codec to the newly RECEIVED region,
// decodes and dispatches every call in the batch via the handlers
// registered through BindHandler/BindInstanceHandler, then releases the
// buffer back to the pool.
func (e *Endpoint) onBufferReceived(buf *exchange.Buffer, sourceID *uint32) {
	c, err := e.readerCodec()
	if err != nil {
		return
	}
	if err := c.ReadBuffer(buf.Region()); err != nil {
		if e.logger != nil {
			e.logger.Errorf("bex: decode failed: %v", err)
		}
	}
	buf.Release()
}

// Close flushes any pending outgoing batch and tears down the
// underlying Exchange's transport subscription.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.flushLocked()
	e.exchange.Destroy()
}
