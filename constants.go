package bex

import "github.com/bexproto/bex/internal/constants"

// Re-exported wire/protocol constants, kept here so callers need only
// import the root package.
const (
	ProtocolMagic      = constants.ProtocolMagic
	CellSize           = constants.CellSize
	DefaultChannelSize = constants.DefaultChannelSize
	DefaultBufferCount = constants.DefaultBufferCount
)
