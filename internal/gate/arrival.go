package gate

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type arrivalController interface {
	Wait(ctx context.Context) error
	SetRate(perSecond float64)
}

func burstFor(perSecond float64) int {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return burst
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}

func (u *uniformArrival) SetRate(perSecond float64) {
	if u == nil || u.limiter == nil {
		return
	}
	if perSecond <= 0 {
		u.limiter.SetLimit(rate.Inf)
		u.limiter.SetBurst(0)
		return
	}
	u.limiter.SetLimit(rate.Limit(perSecond))
	u.limiter.SetBurst(burstFor(perSecond))
}

// poissonArrival spaces arrivals by exponential inter-arrival times. Slots
// are reserved on one shared timeline so the combined rate across threads
// matches the configured rate.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
	now    func() time.Time
	next   time.Time
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	delay := p.reserve()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) SetRate(perSecond float64) {
	if perSecond < 0 {
		perSecond = 0
	}
	p.mu.Lock()
	p.rate = perSecond
	p.mu.Unlock()
}

// reserve claims the next arrival slot and returns how long to wait for it.
func (p *poissonArrival) reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.rate <= 0 || p.sample == nil {
		p.next = now
		return 0
	}
	if p.next.Before(now) {
		p.next = now
	}
	p.next = p.next.Add(p.nextDelayLocked())
	return p.next.Sub(now)
}

func (p *poissonArrival) nextDelayLocked() time.Duration {
	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
