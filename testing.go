package bex

import (
	"sync"

	"github.com/bexproto/bex/internal/codec"
	"github.com/bexproto/bex/internal/interfaces"
	"github.com/bexproto/bex/transport/loopback"
)

// NewLoopbackTransport returns a connected pair of in-process
// Transports, the same first-class public test double the teacher
// exports as MockBackend: a consumer writing tests for a procedure
// table doesn't need a real transport/shm socketpair to exercise
// Endpoint/Exchange round trips.
func NewLoopbackTransport() (a, b Transport) {
	return loopback.NewPair()
}

// RecordingHandler is a HandlerFunc test double that records every call
// it receives, for assertions like "was this procedure invoked, and
// with what arguments".
type RecordingHandler struct {
	mu    sync.Mutex
	calls [][]codec.Value
}

// NewRecordingHandler returns an empty recorder; its Bind method yields
// the HandlerFunc that records into it.
func NewRecordingHandler() *RecordingHandler {
	return &RecordingHandler{}
}

// Bind returns the codec.HandlerFunc to pass to Endpoint.BindHandler.
func (r *RecordingHandler) Bind() codec.HandlerFunc {
	return func(args []codec.Value) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		cp := make([]codec.Value, len(args))
		copy(cp, args)
		r.calls = append(r.calls, cp)
		return nil
	}
}

// Calls returns a snapshot of every call's argument list, in order.
func (r *RecordingHandler) Calls() [][]codec.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]codec.Value, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns the number of times the handler was invoked.
func (r *RecordingHandler) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// RecordingInstanceHandler is RecordingHandler's instanced counterpart.
type RecordingInstanceHandler struct {
	mu    sync.Mutex
	calls []InstanceCall
}

// InstanceCall is one recorded instanced invocation.
type InstanceCall struct {
	InstanceID int32
	Args       []codec.Value
}

// NewRecordingInstanceHandler returns a new recorder.
func NewRecordingInstanceHandler() *RecordingInstanceHandler {
	return &RecordingInstanceHandler{}
}

// Bind returns the codec.InstanceHandlerFunc to pass to
// Endpoint.BindInstanceHandler.
func (r *RecordingInstanceHandler) Bind() codec.InstanceHandlerFunc {
	return func(instanceID int32, args []codec.Value) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		cp := make([]codec.Value, len(args))
		copy(cp, args)
		r.calls = append(r.calls, InstanceCall{InstanceID: instanceID, Args: cp})
		return nil
	}
}

// Calls returns a snapshot of every recorded instanced call, in order.
func (r *RecordingInstanceHandler) Calls() []InstanceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]InstanceCall, len(r.calls))
	copy(out, r.calls)
	return out
}

var _ interfaces.Transport = (*loopback.Transport)(nil)
