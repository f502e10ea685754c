package exchange

import (
	"errors"
	"testing"

	"github.com/bexproto/bex/internal/interfaces"
)

type fakeTransport struct {
	posted   []interfaces.Envelope
	listener func(interfaces.Envelope)
}

func (f *fakeTransport) Listen(handler func(interfaces.Envelope)) func() {
	f.listener = handler
	return func() { f.listener = nil }
}

func (f *fakeTransport) Post(env interfaces.Envelope) error {
	f.posted = append(f.posted, env)
	return nil
}

func (f *fakeTransport) deliver(env interfaces.Envelope) {
	if f.listener != nil {
		f.listener(env)
	}
}

func newTestExchange(t *testing.T, n int, instanceID uint32) (*Exchange, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	ex, err := NewExchange(Config{
		Transport:   tr,
		RegionSize:  16,
		BufferCount: n,
		InstanceID:  instanceID,
	})
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}
	return ex, tr
}

func TestGetWriteBufferBackpressure(t *testing.T) {
	ex, _ := newTestExchange(t, 2, 1)

	b1 := ex.GetWriteBuffer()
	b2 := ex.GetWriteBuffer()
	b3 := ex.GetWriteBuffer()

	if b1 == nil || b2 == nil {
		t.Fatalf("expected first two GetWriteBuffer calls to succeed, got %v, %v", b1, b2)
	}
	if b3 != nil {
		t.Fatalf("expected third GetWriteBuffer to return nil (S4 backpressure), got %v", b3)
	}
}

func TestPoolConservation(t *testing.T) {
	ex, _ := newTestExchange(t, 3, 1)
	total := ex.Total()
	if total != 6 {
		t.Fatalf("Total() = %d, want 6", total)
	}

	live, empty := 0, 0
	for _, buf := range ex.slots {
		if buf.Region() != nil {
			live++
		} else {
			empty++
		}
	}
	if live+empty != total {
		t.Errorf("live+empty = %d, want %d", live+empty, total)
	}
}

func TestOnBufferOutgoingSendsImmediatelyWhenRemoteHasRoom(t *testing.T) {
	ex, tr := newTestExchange(t, 2, 1)

	buf := ex.GetWriteBuffer()
	if buf == nil {
		t.Fatal("expected a write buffer")
	}
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if len(tr.posted) != 1 {
		t.Fatalf("expected immediate send, got %d posts", len(tr.posted))
	}
	if buf.State() != NotAvailable {
		t.Fatalf("state after immediate send = %s, want NOT_AVAILABLE", buf.State())
	}
	if ex.NumSlotsAvailable() != 3 {
		t.Errorf("NumSlotsAvailable() = %d, want 3 (started at 2, +1 on send)", ex.NumSlotsAvailable())
	}
}

func TestOnBufferOutgoingDefersWhenRemoteHasNoRoom(t *testing.T) {
	ex, tr := newTestExchange(t, 2, 1)
	// Simulate "remote holds nothing": total - numSlotsAvailable == 0.
	ex.numSlotsAvailable = ex.total

	buf := ex.GetWriteBuffer()
	if buf == nil {
		t.Fatal("expected a write buffer")
	}
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if len(tr.posted) != 0 {
		t.Fatalf("expected deferred send, got %d posts", len(tr.posted))
	}
	if buf.State() != Outgoing {
		t.Fatalf("state after deferred release = %s, want OUTGOING", buf.State())
	}
}

func TestOnDataReceivedPlacesRegionAndFlushesOutgoing(t *testing.T) {
	ex, tr := newTestExchange(t, 2, 1)
	ex.numSlotsAvailable = ex.total // force deferral

	buf := ex.GetWriteBuffer()
	buf.Release() // deferred, stays OUTGOING

	var gotBuf *Buffer
	var gotSource *uint32
	ex.OnData(func(b *Buffer, sourceID *uint32) {
		gotBuf = b
		gotSource = sourceID
	})

	src := uint32(42)
	tr.deliver(interfaces.Envelope{
		Identifier: 2504718562,
		Instance:   1,
		SourceID:   &src,
		Buffer:     make([]byte, 16),
	})

	if len(tr.posted) != 1 {
		t.Fatalf("expected the deferred OUTGOING buffer to flush on receive, got %d posts", len(tr.posted))
	}
	if gotBuf == nil {
		t.Fatal("expected OnData handler to fire")
	}
	if gotBuf.State() != Received {
		t.Fatalf("placed buffer state = %s, want RECEIVED", gotBuf.State())
	}
	if gotSource == nil || *gotSource != 42 {
		t.Errorf("sourceID = %v, want 42", gotSource)
	}
}

func TestOnMessageReceivedAdoptsInstanceOnFirstMessage(t *testing.T) {
	ex, _ := newTestExchange(t, 2, 0)
	if ex.InstanceID() != 0 {
		t.Fatal("expected instance id to start at 0")
	}

	err := ex.onMessageReceived(interfaces.Envelope{
		Identifier: 2504718562,
		Instance:   77,
		Buffer:     make([]byte, 16),
	})
	if err != nil {
		t.Fatalf("onMessageReceived: %v", err)
	}
	if ex.InstanceID() != 77 {
		t.Errorf("InstanceID() = %d, want 77 (adopted)", ex.InstanceID())
	}
}

func TestOnMessageReceivedDropsForeignMagic(t *testing.T) {
	ex, _ := newTestExchange(t, 2, 1)
	before := ex.NumSlotsAvailable()

	fired := false
	ex.OnData(func(*Buffer, *uint32) { fired = true })

	err := ex.onMessageReceived(interfaces.Envelope{
		Identifier: 0xDEADBEEF,
		Instance:   1,
		Buffer:     make([]byte, 16),
	})
	if err != nil {
		t.Fatalf("expected silent drop, got error: %v", err)
	}
	if fired {
		t.Error("expected no OnData invocation for a foreign magic")
	}
	if ex.NumSlotsAvailable() != before {
		t.Errorf("NumSlotsAvailable changed on a dropped message: %d -> %d", before, ex.NumSlotsAvailable())
	}
}

func TestOnDataReceivedOverflow(t *testing.T) {
	ex, _ := newTestExchange(t, 1, 1)
	// n=1: total=2, one AVAILABLE, one NOT_AVAILABLE. Consume the
	// NOT_AVAILABLE candidate by delivering once...
	err := ex.onMessageReceived(interfaces.Envelope{
		Identifier: 2504718562,
		Instance:   1,
		Buffer:     make([]byte, 16),
	})
	if err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	// ...then deliver again: no NOT_AVAILABLE slot left (one AVAILABLE,
	// one RECEIVED), so this must overflow.
	err = ex.onMessageReceived(interfaces.Envelope{
		Identifier: 2504718562,
		Instance:   1,
		Buffer:     make([]byte, 16),
	})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
}

func TestDestroyUnsubscribes(t *testing.T) {
	ex, tr := newTestExchange(t, 1, 1)
	ex.Destroy()
	if tr.listener != nil {
		t.Error("expected Destroy to clear the transport listener")
	}
}
