package pipeline

import "time"

// SpeedSmoothing is the weight K given to the previous speed in the
// moving average (instant + K*previous) / (K+1).
const SpeedSmoothing = 10

// ProgressSnapshot is what the parser had consumed at one cadence point.
type ProgressSnapshot struct {
	LinesRead int64     `json:"lines_read"`
	BytesRead int64     `json:"bytes_read"`
	FileSize  int64     `json:"file_size"`
	Time      time.Time `json:"time"`
}

// SpeedEstimate is the throughput derived from two consecutive snapshots.
type SpeedEstimate struct {
	BytesDelta int64         `json:"bytes_delta"`
	TimeDelta  time.Duration `json:"time_delta"`
	// Speed is the smoothed rate in bytes per second.
	Speed float64 `json:"speed"`
	Known bool    `json:"known"`
}

// Progress is a snapshot together with its speed estimate.
type Progress struct {
	ProgressSnapshot
	SpeedEstimate
}

// Update derives the progress for cur given the previous progress, or nil
// for the first snapshot. The first measured instantaneous speed seeds the
// average. A snapshot whose BytesRead went backwards is discarded and prev
// is returned unchanged.
func Update(cur ProgressSnapshot, prev *Progress) Progress {
	if prev == nil {
		return Progress{ProgressSnapshot: cur}
	}
	if cur.BytesRead < prev.BytesRead {
		return *prev
	}
	next := Progress{
		ProgressSnapshot: cur,
		SpeedEstimate: SpeedEstimate{
			BytesDelta: cur.BytesRead - prev.BytesRead,
			TimeDelta:  cur.Time.Sub(prev.Time),
			Speed:      prev.Speed,
			Known:      prev.Known,
		},
	}
	if next.TimeDelta <= 0 {
		return next
	}
	instant := float64(next.BytesDelta) / next.TimeDelta.Seconds()
	if prev.Known {
		next.Speed = (instant + SpeedSmoothing*prev.Speed) / (SpeedSmoothing + 1)
	} else {
		next.Speed = instant
	}
	next.Known = true
	return next
}

// Fraction returns how much of the file has been read, in [0, 1], or -1
// when the size is unknown.
func (p Progress) Fraction() float64 {
	if p.FileSize <= 0 {
		return -1
	}
	f := float64(p.BytesRead) / float64(p.FileSize)
	if f > 1 {
		f = 1
	}
	return f
}

// Remaining estimates the time left at the current speed. ok is false when
// either the size or the speed is unknown.
func (p Progress) Remaining() (d time.Duration, ok bool) {
	if p.FileSize <= 0 || !p.Known || p.Speed <= 0 {
		return 0, false
	}
	left := p.FileSize - p.BytesRead
	if left < 0 {
		left = 0
	}
	return time.Duration(float64(left) / p.Speed * float64(time.Second)), true
}
