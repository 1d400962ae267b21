package ketgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prommetrics package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordApply is called after each gate application.
	// path is the executor that ran the kernel ("local", "page", "mixed",
	// "staged"), or empty if the gate failed before dispatch.
	RecordApply(path string, duration time.Duration, err error)

	// RecordInterchange is called after each interchange that moved data.
	// swaps is the number of operands made local, bytes the amplitude bytes sent.
	RecordInterchange(swaps int, bytes int64, duration time.Duration, err error)

	// RecordMeasure is called after each projective measurement.
	// outcome is 0 or 1, and -1 on error.
	RecordMeasure(outcome int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordApply(string, time.Duration, error)           {}
func (NoopMetricsCollector) RecordInterchange(int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordMeasure(int, time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ApplyCount            atomic.Int64
	ApplyErrors           atomic.Int64
	ApplyTotalNanos       atomic.Int64
	StagedCount           atomic.Int64
	InterchangeCount      atomic.Int64
	InterchangeErrors     atomic.Int64
	InterchangeSwaps      atomic.Int64
	InterchangeBytes      atomic.Int64
	InterchangeTotalNanos atomic.Int64
	MeasureCount          atomic.Int64
	MeasureErrors         atomic.Int64
	MeasureOnes           atomic.Int64
}

// RecordApply implements MetricsCollector.
func (b *BasicMetricsCollector) RecordApply(path string, duration time.Duration, err error) {
	b.ApplyCount.Add(1)
	b.ApplyTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ApplyErrors.Add(1)
	}
	if path == "staged" {
		b.StagedCount.Add(1)
	}
}

// RecordInterchange implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInterchange(swaps int, bytes int64, duration time.Duration, err error) {
	b.InterchangeCount.Add(1)
	b.InterchangeSwaps.Add(int64(swaps))
	b.InterchangeBytes.Add(bytes)
	b.InterchangeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InterchangeErrors.Add(1)
	}
}

// RecordMeasure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMeasure(outcome int, duration time.Duration, err error) {
	b.MeasureCount.Add(1)
	if err != nil {
		b.MeasureErrors.Add(1)
		return
	}
	if outcome == 1 {
		b.MeasureOnes.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ApplyCount:          b.ApplyCount.Load(),
		ApplyErrors:         b.ApplyErrors.Load(),
		ApplyAvgNanos:       avg(b.ApplyTotalNanos.Load(), b.ApplyCount.Load()),
		StagedCount:         b.StagedCount.Load(),
		InterchangeCount:    b.InterchangeCount.Load(),
		InterchangeErrors:   b.InterchangeErrors.Load(),
		InterchangeSwaps:    b.InterchangeSwaps.Load(),
		InterchangeBytes:    b.InterchangeBytes.Load(),
		InterchangeAvgNanos: avg(b.InterchangeTotalNanos.Load(), b.InterchangeCount.Load()),
		MeasureCount:        b.MeasureCount.Load(),
		MeasureErrors:       b.MeasureErrors.Load(),
		MeasureOnes:         b.MeasureOnes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ApplyCount          int64
	ApplyErrors         int64
	ApplyAvgNanos       int64
	StagedCount         int64
	InterchangeCount    int64
	InterchangeErrors   int64
	InterchangeSwaps    int64
	InterchangeBytes    int64
	InterchangeAvgNanos int64
	MeasureCount        int64
	MeasureErrors       int64
	MeasureOnes         int64
}
