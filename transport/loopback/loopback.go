// Package loopback implements an in-process Transport pair connected by
// buffered channels. It exercises the same Listen/Post contract a real
// transport does, without any OS facility underneath — the role the
// teacher's NewStubRunner/stubLoop simulation path plays for a queue
// runner that has no character device to talk to.
package loopback

import (
	"sync"

	"github.com/bexproto/bex/internal/interfaces"
)

// Transport is one end of a loopback pair. Post on one end delivers to
// the peer's registered Listen handler; there is no network, kernel
// queue, or framing involved.
type Transport struct {
	mu       sync.Mutex
	handler  func(interfaces.Envelope)
	peer     *Transport
	inbox    chan interfaces.Envelope
	done     chan struct{}
	closeOne sync.Once
}

// NewPair builds two connected Transports: envelopes Posted on a are
// delivered to b's handler and vice versa. Delivery happens on a
// dedicated goroutine per transport so Post never blocks on the peer's
// handler.
func NewPair() (a, b *Transport) {
	a = &Transport{inbox: make(chan interfaces.Envelope, 64), done: make(chan struct{})}
	b = &Transport{inbox: make(chan interfaces.Envelope, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func (t *Transport) deliverLoop() {
	for {
		select {
		case env := <-t.inbox:
			t.mu.Lock()
			h := t.handler
			t.mu.Unlock()
			if h != nil {
				h(env)
			}
		case <-t.done:
			return
		}
	}
}

// Listen registers the handler invoked for every envelope the peer
// Posts. Only one handler is active at a time; a later call replaces
// the previous one. The returned func unregisters it.
func (t *Transport) Listen(handler func(interfaces.Envelope)) func() {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		if t.handler != nil {
			t.handler = nil
		}
		t.mu.Unlock()
	}
}

// Post hands env to the peer's inbox for asynchronous delivery.
func (t *Transport) Post(env interfaces.Envelope) error {
	t.peer.inbox <- env
	return nil
}

// Close stops this transport's delivery goroutine. Safe to call more
// than once.
func (t *Transport) Close() {
	t.closeOne.Do(func() { close(t.done) })
}

var _ interfaces.Transport = (*Transport)(nil)
