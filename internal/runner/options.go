package runner

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/gate"
	"github.com/torosent/loadcore/internal/stat"
)

// DefaultDrainTimeout bounds how long FinalizeThread may wait for in-flight work.
const DefaultDrainTimeout = 30 * time.Second

// Options configure the Runner.
type Options struct {
	JobID    string
	ClientID string
	Threads  int           // number of worker goroutines
	Duration time.Duration // run length; 0 means until the job or caller stops it
	StopAt   time.Time     // explicit scheduled stop, overrides Duration
	WarmUp   time.Duration
	CoolDown time.Duration
	Interval time.Duration // collection interval for every tracker

	DrainTimeout time.Duration
	Gate         gate.Gate
	Reporter     stat.Reporter // receives interval snapshots when set
	ShouldStop   func() bool   // cooperative stop polled once per iteration and by blocking jobs

	Factory *stat.Factory
	Logger  *zap.Logger
	Tracer  trace.Tracer
}

func (o *Options) normalize() {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.Interval <= 0 {
		o.Interval = stat.DefaultInterval
	}
	if o.WarmUp < 0 {
		o.WarmUp = 0
	}
	if o.CoolDown < 0 {
		o.CoolDown = 0
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.Gate == nil {
		o.Gate = gate.None{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Factory == nil {
		o.Factory = stat.NewFactory(stat.WithLogger(o.Logger))
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("loadcore")
	}
}

// stopAt resolves the scheduled stop for a run starting at start.
func (o Options) stopAt(start time.Time) time.Time {
	if !o.StopAt.IsZero() {
		return o.StopAt
	}
	if o.Duration > 0 {
		return start.Add(o.Duration)
	}
	return time.Time{}
}
