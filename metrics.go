package bex

import (
	"sync/atomic"
	"time"

	"github.com/bexproto/bex/internal/interfaces"
)

// LatencyBuckets are the hold-time histogram buckets in nanoseconds,
// measuring how long a buffer stays RESERVED before being committed.
// Logarithmic spacing from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks exchange-level operational statistics: buffer flow in
// both directions, overflow/backpressure events, and batch throughput.
type Metrics struct {
	SendOps    atomic.Uint64
	ReceiveOps atomic.Uint64

	SendBytes    atomic.Uint64
	ReceiveBytes atomic.Uint64

	Overflows atomic.Uint64
	SlotWaits atomic.Uint64

	BatchesEncoded atomic.Uint64
	BatchesDecoded atomic.Uint64
	CallsEncoded   atomic.Uint64
	CallsDecoded   atomic.Uint64

	TotalHoldNs atomic.Uint64
	HoldCount   atomic.Uint64

	HoldHistogram [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a started metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records one outgoing buffer transfer.
func (m *Metrics) RecordSend(bytes int) {
	m.SendOps.Add(1)
	m.SendBytes.Add(uint64(bytes))
}

// RecordReceive records one incoming buffer transfer.
func (m *Metrics) RecordReceive(bytes int) {
	m.ReceiveOps.Add(1)
	m.ReceiveBytes.Add(uint64(bytes))
}

// RecordOverflow records an incoming region that found no NOT_AVAILABLE
// slot to land in.
func (m *Metrics) RecordOverflow() { m.Overflows.Add(1) }

// RecordSlotWait records a GetWriteBuffer call that found no AVAILABLE
// slot and returned nil.
func (m *Metrics) RecordSlotWait() { m.SlotWaits.Add(1) }

// RecordBatch records one encoded or decoded batch and its call count.
func (m *Metrics) RecordBatch(calls int, encode bool) {
	if encode {
		m.BatchesEncoded.Add(1)
		m.CallsEncoded.Add(uint64(calls))
		return
	}
	m.BatchesDecoded.Add(1)
	m.CallsDecoded.Add(uint64(calls))
}

// RecordHoldDuration records how long a buffer stayed RESERVED before
// commit, updating the cumulative histogram.
func (m *Metrics) RecordHoldDuration(d time.Duration) {
	ns := uint64(d.Nanoseconds())
	m.TotalHoldNs.Add(ns)
	m.HoldCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if ns <= bucket {
			m.HoldHistogram[i].Add(1)
		}
	}
}

// Stop marks the exchange as stopped for uptime accounting.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting.
type MetricsSnapshot struct {
	SendOps    uint64
	ReceiveOps uint64

	SendBytes    uint64
	ReceiveBytes uint64

	Overflows uint64
	SlotWaits uint64

	BatchesEncoded uint64
	BatchesDecoded uint64
	CallsEncoded   uint64
	CallsDecoded   uint64

	AvgHoldNs uint64
	UptimeNs  uint64

	HoldHistogram [numLatencyBuckets]uint64

	SendBandwidth    float64 // bytes/sec
	ReceiveBandwidth float64
}

// Snapshot captures the current state of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SendOps:        m.SendOps.Load(),
		ReceiveOps:     m.ReceiveOps.Load(),
		SendBytes:      m.SendBytes.Load(),
		ReceiveBytes:   m.ReceiveBytes.Load(),
		Overflows:      m.Overflows.Load(),
		SlotWaits:      m.SlotWaits.Load(),
		BatchesEncoded: m.BatchesEncoded.Load(),
		BatchesDecoded: m.BatchesDecoded.Load(),
		CallsEncoded:   m.CallsEncoded.Load(),
		CallsDecoded:   m.CallsDecoded.Load(),
	}

	if count := m.HoldCount.Load(); count > 0 {
		snap.AvgHoldNs = m.TotalHoldNs.Load() / count
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		seconds := float64(snap.UptimeNs) / 1e9
		snap.SendBandwidth = float64(snap.SendBytes) / seconds
		snap.ReceiveBandwidth = float64(snap.ReceiveBytes) / seconds
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.HoldHistogram[i] = m.HoldHistogram[i].Load()
	}

	return snap
}

// Reset zeroes all counters; useful for tests.
func (m *Metrics) Reset() {
	m.SendOps.Store(0)
	m.ReceiveOps.Store(0)
	m.SendBytes.Store(0)
	m.ReceiveBytes.Store(0)
	m.Overflows.Store(0)
	m.SlotWaits.Store(0)
	m.BatchesEncoded.Store(0)
	m.BatchesDecoded.Store(0)
	m.CallsEncoded.Store(0)
	m.CallsDecoded.Store(0)
	m.TotalHoldNs.Store(0)
	m.HoldCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.HoldHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements the exchange's Observer collaborator
// interface (internal/interfaces.Observer) by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveSend(bytes int)    { o.metrics.RecordSend(bytes) }
func (o *MetricsObserver) ObserveReceive(bytes int) { o.metrics.RecordReceive(bytes) }
func (o *MetricsObserver) ObserveOverflow()         { o.metrics.RecordOverflow() }
func (o *MetricsObserver) ObserveSlotWait()         { o.metrics.RecordSlotWait() }
func (o *MetricsObserver) ObserveBatch(calls int, encode bool) {
	o.metrics.RecordBatch(calls, encode)
}

// NoOpObserver discards every observation; Endpoint and Exchange default
// to it when no Observer is supplied.
type NoOpObserver = interfaces.NoOpObserver

var _ interfaces.Observer = (*MetricsObserver)(nil)
