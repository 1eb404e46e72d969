// Package barrier coordinates threads that make two passes over one shared,
// numbered work range. No thread starts the second pass until every thread
// has exhausted the first.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrDesync means the arrival counter reached a state no correct sequence of
// arrivals can produce. Phase 2 may have opened with phase-1 work pending.
var ErrDesync = errors.New("barrier: arrival counter desynchronized")

// Cursor hands out the integers of [lower, upper] once each.
type Cursor struct {
	next  atomic.Int64
	lower int64
	upper int64
}

func NewCursor(lower, upper int64) *Cursor {
	c := &Cursor{lower: lower, upper: upper}
	c.next.Store(lower)
	return c
}

// Next returns the next unclaimed item, or false once the range is exhausted.
func (c *Cursor) Next() (int64, bool) {
	v := c.next.Add(1) - 1
	if v > c.upper {
		return 0, false
	}
	return v, true
}

// Reset rewinds the cursor to the start of the range.
func (c *Cursor) Reset() { c.next.Store(c.lower) }

// Barrier is an atomic countdown over the participating threads. The thread
// whose arrival takes the counter to exactly zero rewinds the cursor and
// decrements once more, leaving the counter at -1 while phase 2 is open.
type Barrier struct {
	parties   int64
	remaining atomic.Int64
	cursor    *Cursor
	open      chan struct{}
	openedAt  atomic.Int64
}

// New returns a barrier for parties threads sharing [lower, upper].
func New(parties int, lower, upper int64) (*Barrier, error) {
	if parties < 1 {
		return nil, fmt.Errorf("barrier: parties must be >= 1, got %d", parties)
	}
	if upper < lower {
		return nil, fmt.Errorf("barrier: empty range [%d, %d]", lower, upper)
	}
	b := &Barrier{
		parties: int64(parties),
		cursor:  NewCursor(lower, upper),
		open:    make(chan struct{}),
	}
	b.remaining.Store(int64(parties))
	return b, nil
}

// Next claims the next item of the current phase.
func (b *Barrier) Next() (int64, bool) { return b.cursor.Next() }

// ErrStopped means the stop signal was raised while the thread waited for
// phase 2. The thread has still been counted as arrived.
var ErrStopped = errors.New("barrier: stopped before phase 2 opened")

// stopPoll is how often a waiting thread checks its stop signal.
const stopPoll = 5 * time.Millisecond

// countDown removes one thread from phase 1 and opens phase 2 when it was
// the last.
func (b *Barrier) countDown() (opened bool, err error) {
	n := b.remaining.Add(-1)
	switch {
	case n == 0:
		b.cursor.Reset()
		if b.remaining.Add(-1) != -1 {
			return false, ErrDesync
		}
		b.openedAt.Store(time.Now().UnixNano())
		close(b.open)
		return true, nil
	case n > 0:
		return false, nil
	default:
		return false, ErrDesync
	}
}

// Arrive records that the calling thread has exhausted phase 1 and blocks
// until phase 2 opens. stop, when non-nil, is polled while waiting and
// Arrive returns ErrStopped once it reports true. Each thread must arrive or
// leave at most once.
func (b *Barrier) Arrive(ctx context.Context, stop func() bool) error {
	opened, err := b.countDown()
	if err != nil || opened {
		return err
	}

	var poll <-chan time.Time
	if stop != nil {
		ticker := time.NewTicker(stopPoll)
		defer ticker.Stop()
		poll = ticker.C
	}
	for {
		select {
		case <-b.open:
			if b.remaining.Load() >= 0 {
				return ErrDesync
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-poll:
			if stop() {
				return ErrStopped
			}
		}
	}
}

// Leave counts out a thread that stops before finishing phase 1, without
// waiting. If it was the last thread outstanding, phase 2 opens for the
// threads already waiting.
func (b *Barrier) Leave() error {
	_, err := b.countDown()
	return err
}

// Phase returns 1 until every thread has arrived, then 2.
func (b *Barrier) Phase() int {
	if b.remaining.Load() < 0 {
		return 2
	}
	return 1
}

// Opened is closed when phase 2 begins.
func (b *Barrier) Opened() <-chan struct{} { return b.open }

// OpenedAt returns when phase 2 began, or the zero time.
func (b *Barrier) OpenedAt() time.Time {
	ns := b.openedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Parties returns the number of participating threads.
func (b *Barrier) Parties() int { return int(b.parties) }
