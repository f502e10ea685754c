// Package integration drives bex.Endpoint and bex.Exchange pairs over
// an in-process loopback Transport end to end, covering the scenarios
// of spec §8: full round trips through the codec and buffer exchange
// together, rather than either layer in isolation (see test/unit for
// that).
package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bexproto/bex"
)

// waitFor polls cond until it returns true or the deadline passes,
// failing the test otherwise. Endpoint/Exchange delivery runs on the
// loopback transport's own goroutine (spec §5 models delivery as
// asynchronous relative to the two single-threaded sides), so
// assertions on the receiving side's state must poll rather than read
// immediately after a send.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), msg)
}

// TestS1SimpleRoundAccumulates sends a non-instanced two-INT procedure
// 1000 times in a single accumulating batch, then flushes once; the
// worker side's handler sums both arguments across every call.
func TestS1SimpleRoundAccumulates(t *testing.T) {
	table := bex.Table{
		{Name: "add", Args: []bex.ArgKind{bex.KindInt, bex.KindInt}, Endpoint: "worker"},
	}

	clientTransport, workerTransport := bex.NewLoopbackTransport()

	main, err := bex.NewEndpoint(bex.Config{Table: table, Local: "main", Transport: clientTransport})
	require.NoError(t, err)
	defer main.Close()

	worker, err := bex.NewEndpoint(bex.Config{Table: table, Local: "worker", Transport: workerTransport})
	require.NoError(t, err)
	defer worker.Close()

	var mu sync.Mutex
	var sum int64
	require.NoError(t, worker.BindHandler("add", func(args []bex.Value) error {
		mu.Lock()
		defer mu.Unlock()
		sum += int64(args[0].I) + int64(args[1].I)
		return nil
	}))

	for i := 0; i < 1000; i++ {
		require.NoError(t, main.Call("add", bex.Int(12), bex.Int(11)))
	}
	require.NoError(t, main.Flush())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sum == 23000
	}, "worker accumulator did not reach 23000")
}

// TestS2MixedArgTypesRoundTrip sends one call mixing all three
// primitive kinds (STR, INT, FLOAT) and checks the worker side decodes
// them in declaration order with the right values.
func TestS2MixedArgTypesRoundTrip(t *testing.T) {
	table := bex.Table{
		{Name: "config", Args: []bex.ArgKind{bex.KindString, bex.KindInt, bex.KindFloat}, Endpoint: "worker"},
	}

	clientTransport, workerTransport := bex.NewLoopbackTransport()

	main, err := bex.NewEndpoint(bex.Config{Table: table, Local: "main", Transport: clientTransport})
	require.NoError(t, err)
	defer main.Close()

	worker, err := bex.NewEndpoint(bex.Config{Table: table, Local: "worker", Transport: workerTransport})
	require.NoError(t, err)
	defer worker.Close()

	var mu sync.Mutex
	var got []bex.Value
	require.NoError(t, worker.BindHandler("config", func(args []bex.Value) error {
		mu.Lock()
		defer mu.Unlock()
		got = append([]bex.Value(nil), args...)
		return nil
	}))

	require.NoError(t, main.Call("config", bex.Str("hi"), bex.Int(-7), bex.Float(1.5)))
	require.NoError(t, main.Flush())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, "worker never received the config call")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "hi", got[0].S)
	require.Equal(t, int32(-7), got[1].I)
	require.InDelta(t, 1.5, float64(got[2].F), 1e-6)
}

// TestS3InstanceDispatchRoutesByID checks that two CallInstance
// invocations against different instance ids in the same batch are
// each routed to the correct per-entity state by the single registered
// InstanceHandlerFunc, which receives the wire instanceID and must
// branch on it itself (spec §4.3's instanced dispatch).
func TestS3InstanceDispatchRoutesByID(t *testing.T) {
	table := bex.Table{
		{Name: "tick", Args: []bex.ArgKind{bex.KindInt}, Instance: "ents", Endpoint: "worker"},
	}

	clientTransport, workerTransport := bex.NewLoopbackTransport()

	main, err := bex.NewEndpoint(bex.Config{Table: table, Local: "main", Transport: clientTransport})
	require.NoError(t, err)
	defer main.Close()

	worker, err := bex.NewEndpoint(bex.Config{Table: table, Local: "worker", Transport: workerTransport})
	require.NoError(t, err)
	defer worker.Close()

	var mu sync.Mutex
	ticks := make(map[int32][]int32)
	require.NoError(t, worker.BindInstanceHandler("ents", "tick", func(instanceID int32, args []bex.Value) error {
		mu.Lock()
		defer mu.Unlock()
		ticks[instanceID] = append(ticks[instanceID], args[0].I)
		return nil
	}))

	require.NoError(t, main.CallInstance("ents", 0, "tick", bex.Int(3)))
	require.NoError(t, main.CallInstance("ents", 2, "tick", bex.Int(5)))
	require.NoError(t, main.Flush())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks[0]) == 1 && len(ticks[2]) == 1
	}, "worker did not receive both instanced ticks")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int32{3}, ticks[0])
	require.Empty(t, ticks[1])
	require.Equal(t, []int32{5}, ticks[2])
}

// TestS4SlotSaturationReturnsNil checks that with N=2 (total 4 slots, 2
// AVAILABLE), a third GetWriteBuffer call returns nil without blocking
// or erroring — back-pressure, not failure (spec §7, §8 S4).
func TestS4SlotSaturationReturnsNil(t *testing.T) {
	transportA, _ := bex.NewLoopbackTransport()

	ex, err := bex.NewExchange(bex.ExchangeConfig{Transport: transportA, BufferCount: 2})
	require.NoError(t, err)

	first := ex.GetWriteBuffer()
	require.NotNil(t, first, "first GetWriteBuffer")

	second := ex.GetWriteBuffer()
	require.NotNil(t, second, "second GetWriteBuffer")

	third := ex.GetWriteBuffer()
	require.Nil(t, third, "third GetWriteBuffer should be nil: pool exhausted")
}

// TestS5InterleavedSendReceiveConservesSlots runs 100 ping-pong rounds
// between two N=2 Exchanges and asserts numSlotsAvailable returns to N
// on both sides after every round (spec §8 property 5 / scenario S5).
func TestS5InterleavedSendReceiveConservesSlots(t *testing.T) {
	const n = 2
	transportA, transportB := bex.NewLoopbackTransport()

	exA, err := bex.NewExchange(bex.ExchangeConfig{Transport: transportA, BufferCount: n})
	require.NoError(t, err)
	exB, err := bex.NewExchange(bex.ExchangeConfig{Transport: transportB, BufferCount: n})
	require.NoError(t, err)

	recvA := make(chan *bex.Buffer, n)
	recvB := make(chan *bex.Buffer, n)
	exA.OnData(func(buf *bex.Buffer, _ *uint32) { recvA <- buf })
	exB.OnData(func(buf *bex.Buffer, _ *uint32) { recvB <- buf })

	for round := 0; round < 100; round++ {
		bufA := exA.GetWriteBuffer()
		require.NotNilf(t, bufA, "round %d: A has no write buffer", round)
		require.NoError(t, bufA.Release())

		select {
		case received := <-recvB:
			require.NoError(t, received.Release())
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: B never received A's buffer", round)
		}

		bufB := exB.GetWriteBuffer()
		require.NotNilf(t, bufB, "round %d: B has no write buffer", round)
		require.NoError(t, bufB.Release())

		select {
		case received := <-recvA:
			require.NoError(t, received.Release())
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: A never received B's buffer", round)
		}

		require.Equalf(t, n, exA.NumSlotsAvailable(), "round %d: A's slot count drifted", round)
		require.Equalf(t, n, exB.NumSlotsAvailable(), "round %d: B's slot count drifted", round)
	}
}

// TestS6ForeignMagicRejected checks that an envelope whose Identifier
// doesn't match the protocol magic is dropped silently: no data
// callback fires, no instance id is adopted, and slot accounting is
// untouched (spec §7.3, §8 scenario S6).
func TestS6ForeignMagicRejected(t *testing.T) {
	transportA, transportB := bex.NewLoopbackTransport()

	ex, err := bex.NewExchange(bex.ExchangeConfig{Transport: transportA, BufferCount: 2})
	require.NoError(t, err)

	var mu sync.Mutex
	fired := false
	ex.OnData(func(buf *bex.Buffer, _ *uint32) {
		mu.Lock()
		defer mu.Unlock()
		fired = true
	})

	before := ex.NumSlotsAvailable()

	require.NoError(t, transportB.Post(bex.Envelope{
		Identifier: 0xDEADBEEF,
		Instance:   1,
		Buffer:     make([]byte, 4*32*1024),
	}))

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, fired, "data callback fired for a foreign-magic envelope")
	require.Equal(t, before, ex.NumSlotsAvailable(), "slot accounting changed for a rejected envelope")
	require.Equal(t, uint32(0), ex.InstanceID(), "instance id was adopted from a rejected envelope")
}

// TestS7BatchOrderingUnderFlush checks spec §8 property 7: when main
// flushes batch X and then batch Y, the worker dispatches every call of
// X before any call of Y.
func TestS7BatchOrderingUnderFlush(t *testing.T) {
	table := bex.Table{
		{Name: "mark", Args: []bex.ArgKind{bex.KindInt}, Endpoint: "worker"},
	}

	clientTransport, workerTransport := bex.NewLoopbackTransport()

	main, err := bex.NewEndpoint(bex.Config{Table: table, Local: "main", Transport: clientTransport, BufferCount: 2})
	require.NoError(t, err)
	defer main.Close()

	worker, err := bex.NewEndpoint(bex.Config{Table: table, Local: "worker", Transport: workerTransport, BufferCount: 2})
	require.NoError(t, err)
	defer worker.Close()

	var mu sync.Mutex
	var order []int32
	require.NoError(t, worker.BindHandler("mark", func(args []bex.Value) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, args[0].I)
		return nil
	}))

	// The worker never sends back, so main's regions do not return: with
	// BufferCount 2, main has exactly one write buffer for batch X
	// (mark=1) and one for batch Y (mark=2), and each Flush sends at once.
	require.NoError(t, main.Call("mark", bex.Int(1)))
	require.NoError(t, main.Flush())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 1
	}, "first batch never arrived")

	require.NoError(t, main.Call("mark", bex.Int(2)))
	require.NoError(t, main.Flush())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	}, "second batch never arrived")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int32{1, 2}, order)
}
