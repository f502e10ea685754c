// Package interfaces provides internal interface definitions for bex.
// These are separate from the root package's re-exports to avoid
// circular imports between the root package and internal/exchange.
package interfaces

// Envelope is the transport-level message carrying one transferred
// buffer region between two exchange instances (spec §6.1).
type Envelope struct {
	// Identifier must equal the protocol magic or the receiver drops
	// the envelope without touching its state.
	Identifier uint32

	// Instance is the sending exchange's instanceId.
	Instance uint32

	// SourceID is an optional caller-supplied routing tag.
	SourceID *uint32

	// Buffer is the moved payload. The sender must not retain or
	// mutate it after the envelope is posted.
	Buffer []byte
}

// Transport is the collaborator contract of spec §6.2: something that
// can deliver Envelopes to a registered listener and post Envelopes to
// the remote side, moving ownership of the Buffer rather than copying
// it. Any transport satisfying this (in-process channel, shared-memory
// ring with fd passing, domain socket, ...) can back an Exchange.
type Transport interface {
	// Listen registers handler to be called for every Envelope arriving
	// from the remote side. Returns an unsubscribe func.
	Listen(handler func(Envelope)) (unsubscribe func())

	// Post hands ownership of env.Buffer to the transport for delivery
	// to the remote side's registered listener.
	Post(env Envelope) error
}

// Logger is the optional logging interface Exchange and Endpoint accept.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Observer is the optional metrics-collection interface. Implementations
// must be safe to call from whatever goroutine drives the Exchange's
// event loop.
type Observer interface {
	ObserveSend(bytes int)
	ObserveReceive(bytes int)
	ObserveOverflow()
	ObserveSlotWait()
	ObserveBatch(calls int, encode bool)
}

// NoOpObserver discards every observation. It lives here (rather than
// in the root package) so internal/exchange can default to it without
// importing the root package and creating an import cycle.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(int)        {}
func (NoOpObserver) ObserveReceive(int)     {}
func (NoOpObserver) ObserveOverflow()       {}
func (NoOpObserver) ObserveSlotWait()       {}
func (NoOpObserver) ObserveBatch(int, bool) {}

var _ Observer = NoOpObserver{}
