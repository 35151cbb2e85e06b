package pipeline

import "sync/atomic"

// CancellationToken is a set-once flag shared between the presentation
// layer and a running ingestion attempt.
type CancellationToken struct {
	set atomic.Bool
}

// Cancel requests cancellation. Further calls have no effect.
func (t *CancellationToken) Cancel() { t.set.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *CancellationToken) Cancelled() bool { return t.set.Load() }

// Limits bounds how much of a trace an attempt will ingest.
type Limits struct {
	// StreamCeiling stops a streaming parse once this many bytes were read.
	StreamCeiling int64
	// BufferedCeiling is the same for the read-everything fallback.
	BufferedCeiling int64
	// ProgressEvery is the number of lines between progress reports.
	ProgressEvery int64
}

// DefaultLimits returns 1 GiB streaming, 512 MiB buffered and a progress
// report every 100,000 lines.
func DefaultLimits() Limits {
	return Limits{
		StreamCeiling:   1 << 30,
		BufferedCeiling: 512 << 20,
		ProgressEvery:   100_000,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.StreamCeiling <= 0 {
		l.StreamCeiling = d.StreamCeiling
	}
	if l.BufferedCeiling <= 0 {
		l.BufferedCeiling = d.BufferedCeiling
	}
	if l.ProgressEvery <= 0 {
		l.ProgressEvery = d.ProgressEvery
	}
	return l
}
