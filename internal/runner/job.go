package runner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/window"
)

// Job is the workload executed by every thread of a run.
type Job interface {
	// InitializeThread prepares per-thread state and registers trackers.
	InitializeThread(ctx context.Context, tc *ThreadContext) error
	// RunIteration performs one unit of work. done ends the thread's loop
	// normally; a non-nil error stops the whole run.
	RunIteration(ctx context.Context, tc *ThreadContext) (done bool, err error)
	// FinalizeThread releases per-thread resources. ctx is not cancelled by
	// the run stopping; it expires after the drain timeout.
	FinalizeThread(ctx context.Context, tc *ThreadContext) error
}

// ClientInfo describes the run to a ClientInitializer.
type ClientInfo struct {
	JobID    string
	ClientID string
	Threads  int
	Start    time.Time
	StopAt   time.Time
	Logger   *zap.Logger
}

// ClientInitializer is implemented by jobs that need state shared by all
// threads, set up once before any thread starts.
type ClientInitializer interface {
	InitializeClient(ctx context.Context, info ClientInfo) error
}

// Classifier lets a job derive the run status from its aggregated trackers.
type Classifier interface {
	Classify(trackers []stat.Tracker) Status
}

// ThreadContext is handed to every Job call made on one thread.
type ThreadContext struct {
	JobID    string
	ClientID string
	ThreadID string
	Index    int
	Interval time.Duration
	Factory  *stat.Factory
	Logger   *zap.Logger
	Tracer   trace.Tracer

	// Value holds job-local state for this thread.
	Value any

	trackers   []stat.Tracker
	window     *window.Window
	shouldStop func() bool
}

// Register adds trackers to the thread's measurement window. Only trackers
// registered during InitializeThread are started and stopped by the window.
func (tc *ThreadContext) Register(trackers ...stat.Tracker) {
	tc.trackers = append(tc.trackers, trackers...)
}

// Trackers returns the trackers registered so far.
func (tc *ThreadContext) Trackers() []stat.Tracker {
	return append([]stat.Tracker(nil), tc.trackers...)
}

// Collecting reports whether the thread is inside its measurement window.
func (tc *ThreadContext) Collecting() bool {
	return tc.window != nil && tc.window.Collecting()
}

// ShouldStop reports whether the run has been asked to stop. Jobs that block
// inside an iteration poll it so they exit with the other threads.
func (tc *ThreadContext) ShouldStop() bool {
	return tc.shouldStop != nil && tc.shouldStop()
}

// Identity returns the identity for a statistic attributed to this thread,
// or to subOwner when one is given.
func (tc *ThreadContext) Identity(name, subOwner string) stat.Identity {
	if subOwner == "" {
		subOwner = tc.ThreadID
	}
	return stat.Identity{OwnerID: tc.ClientID, SubOwnerID: subOwner, Name: name, Interval: tc.Interval}
}

func (tc *ThreadContext) NewCounter(name, subOwner string) *stat.Counter {
	c := tc.Factory.Counter(tc.Identity(name, subOwner))
	tc.Register(c)
	return c
}

func (tc *ThreadContext) NewDuration(name, subOwner string) *stat.Duration {
	d := tc.Factory.Duration(tc.Identity(name, subOwner))
	tc.Register(d)
	return d
}

func (tc *ThreadContext) NewCategorical(name, subOwner string) *stat.Categorical {
	c := tc.Factory.Categorical(tc.Identity(name, subOwner))
	tc.Register(c)
	return c
}

func (tc *ThreadContext) NewValue(name, subOwner string) *stat.Value {
	v := tc.Factory.Value(tc.Identity(name, subOwner))
	tc.Register(v)
	return v
}

func (tc *ThreadContext) NewAccumulator(name, subOwner string) *stat.Accumulator {
	a := tc.Factory.Accumulator(tc.Identity(name, subOwner))
	tc.Register(a)
	return a
}

// Status is the outcome of a run.
type Status int

const (
	Success Status = iota
	CompletedWithErrors
	StoppedDueToError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case CompletedWithErrors:
		return "completed_with_errors"
	case StoppedDueToError:
		return "stopped_due_to_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Worse returns the more severe of s and o.
func (s Status) Worse(o Status) Status {
	if o > s {
		return o
	}
	return s
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
