// Package gate paces job iterations across all threads of a job.
//
// A [Gate] is consulted once per loop iteration. AwaitPermission blocks until
// the next operation may run and returns true when the iteration must be
// skipped instead, for example because the job is stopping.
package gate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate decides whether a thread may perform its next operation.
type Gate interface {
	// AwaitPermission returns true when the caller must not proceed this
	// iteration and should try again.
	AwaitPermission(ctx context.Context) bool
}

// None never delays. It only refuses once ctx is done.
type None struct{}

func (None) AwaitPermission(ctx context.Context) bool { return ctx.Err() != nil }

// Model selects how arrivals are spaced.
type Model string

const (
	ModelUniform Model = "uniform"
	ModelPoisson Model = "poisson"
)

// Options configure a rate gate.
type Options struct {
	// OpsPerInterval operations are allowed per Interval across all threads.
	OpsPerInterval int
	Interval       time.Duration
	Model          Model
	// Patterns override the fixed rate with a time-varying plan.
	Patterns []Pattern
	Seed     int64
	// Sampler returns exponential variates for the Poisson model; tests inject it.
	Sampler func() float64
	// LimiterFactory builds the uniform limiter; tests inject it.
	LimiterFactory func(perSecond float64) *rate.Limiter
	Now            func() time.Time
}

// PerSecond converts the configured quota into operations per second.
func (o Options) PerSecond() float64 {
	if o.OpsPerInterval <= 0 {
		return 0
	}
	interval := o.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return float64(o.OpsPerInterval) / interval.Seconds()
}

func (o *Options) normalize() {
	if o.Model == "" {
		o.Model = ModelUniform
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			if perSecond <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(perSecond), burstFor(perSecond))
		}
	}
	if o.Sampler == nil {
		seeded := rand.New(rand.NewSource(o.Seed))
		var mu sync.Mutex
		o.Sampler = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return seeded.ExpFloat64()
		}
	}
}

// New returns a gate enforcing opt. Without a rate or patterns it returns None.
func New(opt Options) Gate {
	plan := compilePlan(opt.Patterns)
	if opt.PerSecond() <= 0 && plan == nil {
		return None{}
	}
	opt.normalize()

	base := opt.PerSecond()
	if plan != nil {
		base, _ = plan.rateAt(0)
	}

	var arrival arrivalController
	switch opt.Model {
	case ModelPoisson:
		p := &poissonArrival{sample: opt.Sampler, now: opt.Now}
		p.SetRate(base)
		arrival = p
	default:
		u := &uniformArrival{limiter: opt.LimiterFactory(base)}
		if plan != nil {
			u.SetRate(base)
		}
		arrival = u
	}
	return &Rated{arrival: arrival, plan: plan, now: opt.Now, start: opt.Now(), current: base}
}

// Rated paces arrivals at a fixed or pattern-driven rate.
type Rated struct {
	arrival arrivalController
	plan    *plan
	now     func() time.Time
	start   time.Time

	mu      sync.Mutex
	current float64
}

func (r *Rated) AwaitPermission(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if r.plan != nil {
		r.follow()
	}
	return r.arrival.Wait(ctx) != nil
}

// Rate returns the operations per second currently enforced.
func (r *Rated) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// follow applies the plan's rate for the elapsed time. Once the plan is over
// the last rate stays in force.
func (r *Rated) follow() {
	target, ok := r.plan.rateAt(r.now().Sub(r.start))
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if target == r.current {
		return
	}
	r.current = target
	r.arrival.SetRate(target)
}
