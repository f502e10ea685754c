package bex

import "github.com/bexproto/bex/internal/exchange"

// Exchange is the Buffer Exchange of spec §3.2/§4.2: a 2*N Buffer pool
// bound to a Transport, with slot accounting and the flow-control gate
// that decides whether an OUTGOING buffer sends immediately or waits
// for an opportunistic flush. Re-exported from internal/exchange for
// callers working directly with the low-level primitives.
type Exchange = exchange.Exchange

// ExchangeConfig parameterizes NewExchange.
type ExchangeConfig = exchange.Config

// NewExchange builds an Exchange directly, bypassing Endpoint's codec
// wiring — the entry point the scenario tests use to exercise Buffer
// Exchange behavior (flow control, slot accounting, overflow) without a
// procedure table in the way.
func NewExchange(cfg ExchangeConfig) (*Exchange, error) {
	return exchange.NewExchange(cfg)
}
