// Package constants holds wire- and protocol-level constants shared
// across the internal packages, kept separate from the root package so
// internal/proc and internal/codec don't need to import it.
package constants

// ProtocolMagic is the constant bexIdentifier every exchanged envelope
// must carry. Receivers drop any envelope whose identifier doesn't match.
const ProtocolMagic uint32 = 2504718562

// CellSize is the width in bytes of one wire cell (one I or F slot).
const CellSize = 4

// DefaultChannelSize is the default batch capacity in 32-bit cells.
const DefaultChannelSize = 32 * 1024

// DefaultBufferCount is the default number of live buffer regions N
// an Exchange keeps in each direction (pool holds 2*N slots).
const DefaultBufferCount = 4

// CallCountCell is the index of the call-count cell within a batch.
const CallCountCell = 0

// FirstCallCell is the index at which the first call record begins.
const FirstCallCell = 1

// ProcedureIDReserved is the reserved procedure id occupying cell 0's role;
// real procedure ids are 1-based, so 0 is never assigned to a table entry.
const ProcedureIDReserved = 0
