package bex

import "github.com/bexproto/bex/internal/interfaces"

// Envelope is one posted message: the wire-level magic identifier, the
// instance id pairing two endpoints, an optional multi-source id, and
// the transferred region.
type Envelope = interfaces.Envelope

// Transport is the pluggable delivery mechanism an Exchange posts
// Envelopes through and listens on. transport/loopback and
// transport/shm are the two implementations this module ships.
type Transport = interfaces.Transport

// Logger is the leveled logging collaborator taken by Endpoint and the
// lower-level Exchange; internal/logging.Logger satisfies it, and so
// can any caller-supplied type with the same methods.
type Logger = interfaces.Logger

// Observer is the metrics collaborator taken by Endpoint and Exchange.
// *Metrics (via NewMetricsObserver) and NoOpObserver both satisfy it.
type Observer = interfaces.Observer
