package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic logical clock that stamps emitted events.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The engine mutex means only one goroutine calls Next() at a time anyway.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
// Used when reopening a persisted event log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Height is the global time index vault windows are measured in.
type Height uint64

// HeightSource supplies the current time index. Implementations must be
// monotonic: Height never decreases between calls.
type HeightSource interface {
	Height() Height
}

// FixedHeight is a HeightSource pinned to one value.
type FixedHeight Height

// Height implements HeightSource.
func (h FixedHeight) Height() Height {
	return Height(h)
}

// WallHeight derives a height from wall-clock time: one unit per Interval
// elapsed since Genesis.
type WallHeight struct {
	Genesis  time.Time
	Interval time.Duration
	Now      func() time.Time // nil means time.Now
}

// Height implements HeightSource.
func (w WallHeight) Height() Height {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	elapsed := now().Sub(w.Genesis)
	if elapsed <= 0 || w.Interval <= 0 {
		return 0
	}
	return Height(elapsed / w.Interval)
}
