// Package permit bounds the number of asynchronous operations a thread may
// have in flight.
package permit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrOverRelease is returned when a release has no matching acquire.
var ErrOverRelease = errors.New("permit: release without matching acquire")

const drainPoll = 5 * time.Millisecond

// Pool is a counting permit pool. A Pool built with a non-positive size never
// blocks but still tracks outstanding permits.
type Pool struct {
	sem         *semaphore.Weighted
	size        int64
	outstanding atomic.Int64
	peak        atomic.Int64
	acquired    atomic.Int64
	released    atomic.Int64
}

// New returns a pool of size permits, or an unbounded pool when size <= 0.
func New(size int) *Pool {
	p := &Pool{}
	if size > 0 {
		p.size = int64(size)
		p.sem = semaphore.NewWeighted(p.size)
	}
	return p
}

// Size returns the configured bound, or 0 for an unbounded pool.
func (p *Pool) Size() int { return int(p.size) }

// Bounded reports whether acquisition can block.
func (p *Pool) Bounded() bool { return p.sem != nil }

// Acquire blocks until a permit is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	p.hold()
	return nil
}

// TryAcquire takes a permit without blocking.
func (p *Pool) TryAcquire() bool {
	if p.sem != nil && !p.sem.TryAcquire(1) {
		return false
	}
	p.hold()
	return true
}

func (p *Pool) hold() {
	p.acquired.Add(1)
	n := p.outstanding.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Release returns one permit. Releasing more permits than were acquired
// fails with ErrOverRelease and leaves the pool unchanged.
func (p *Pool) Release() error {
	for {
		cur := p.outstanding.Load()
		if cur <= 0 {
			return ErrOverRelease
		}
		if p.outstanding.CompareAndSwap(cur, cur-1) {
			break
		}
	}
	p.released.Add(1)
	if p.sem != nil {
		p.sem.Release(1)
	}
	return nil
}

// Outstanding returns the number of permits currently held.
func (p *Pool) Outstanding() int { return int(p.outstanding.Load()) }

// Peak returns the highest number of permits held at once.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Size        int
	Outstanding int
	Peak        int
	Acquired    int64
	Released    int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:        int(p.size),
		Outstanding: p.Outstanding(),
		Peak:        p.Peak(),
		Acquired:    p.acquired.Load(),
		Released:    p.released.Load(),
	}
}

// Wait blocks until every held permit has been released or ctx is done.
// Permits are never force-released.
func (p *Pool) Wait(ctx context.Context) error {
	if p.outstanding.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.outstanding.Load() == 0 {
				return nil
			}
		}
	}
}
