package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/window"
)

// Result captures the outcome of one run.
type Result struct {
	JobID     string
	Status    Status
	Trackers  []stat.Tracker   // aggregated across threads
	PerThread [][]stat.Tracker // as registered, indexed by thread
	Errors    []error
	StartTime time.Time
	Duration  time.Duration
}

// Err joins every error the run collected.
func (r Result) Err() error { return errors.Join(r.Errors...) }

// Runner executes a Job on a fixed number of threads.
type Runner struct {
	job Job
	opt Options
	log *zap.Logger
}

func New(job Job, opt Options) *Runner {
	opt.normalize()
	return &Runner{job: job, opt: opt, log: opt.Logger.With(zap.String("job_id", opt.JobID))}
}

func (r *Runner) Run(ctx context.Context) Result {
	clock := r.opt.Factory.Clock()
	start := clock.Now()
	stopAt := r.opt.stopAt(start)
	res := Result{JobID: r.opt.JobID, StartTime: start}

	cfg := window.Config{Start: start, StopAt: stopAt, WarmUp: r.opt.WarmUp, CoolDown: r.opt.CoolDown}
	if cfg.Unbounded() {
		r.log.Warn("cool-down requested without a scheduled stop; collection will run until the job ends",
			zap.Duration("cool_down", r.opt.CoolDown))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !stopAt.IsZero() {
		// The deadline is wall-clock even with an injected tracker clock.
		deadline := time.Now().Add(stopAt.Sub(start))
		var deadlineCancel context.CancelFunc
		runCtx, deadlineCancel = context.WithDeadline(runCtx, deadline)
		defer deadlineCancel()
	}

	if ci, ok := r.job.(ClientInitializer); ok {
		info := ClientInfo{
			JobID: r.opt.JobID, ClientID: r.opt.ClientID, Threads: r.opt.Threads,
			Start: start, StopAt: stopAt, Logger: r.log,
		}
		if err := ci.InitializeClient(runCtx, info); err != nil {
			res.Status = StoppedDueToError
			res.Errors = append(res.Errors, fmt.Errorf("initialize client: %w", err))
			res.Duration = clock.Now().Sub(start)
			return res
		}
	}

	var mu sync.Mutex
	perThread := make([][]stat.Tracker, r.opt.Threads)
	fatal := false

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < r.opt.Threads; i++ {
		idx := i
		g.Go(func() error {
			trackers, err := r.runThread(gctx, idx, cfg)
			// Finalize errors are reported but do not stop sibling threads.
			var fin *finalizeError

			mu.Lock()
			perThread[idx] = trackers
			if err != nil {
				res.Errors = append(res.Errors, err)
				if !errors.As(err, &fin) {
					fatal = true
				}
			}
			mu.Unlock()

			if fin != nil {
				return nil
			}
			return err
		})
	}
	_ = g.Wait()

	res.PerThread = perThread
	res.Duration = clock.Now().Sub(start)

	var all []stat.Tracker
	for _, ts := range perThread {
		all = append(all, ts...)
	}
	aggregated, err := stat.AggregateAll(all)
	if err != nil && !errors.Is(err, stat.ErrNoTrackers) {
		res.Errors = append(res.Errors, fmt.Errorf("aggregate: %w", err))
		fatal = true
	}
	res.Trackers = aggregated

	switch {
	case fatal:
		res.Status = StoppedDueToError
	default:
		if c, ok := r.job.(Classifier); ok {
			res.Status = c.Classify(aggregated)
		}
		if len(res.Errors) > 0 {
			res.Status = res.Status.Worse(CompletedWithErrors)
		}
	}

	r.log.Info("run finished",
		zap.Stringer("status", res.Status),
		zap.Int("threads", r.opt.Threads),
		zap.Int("trackers", len(res.Trackers)),
		zap.Duration("elapsed", res.Duration))
	return res
}

type finalizeError struct {
	thread string
	err    error
}

func (e *finalizeError) Error() string {
	return fmt.Sprintf("thread %s: finalize: %v", e.thread, e.err)
}

func (e *finalizeError) Unwrap() error { return e.err }

func (r *Runner) runThread(ctx context.Context, idx int, cfg window.Config) ([]stat.Tracker, error) {
	tc := &ThreadContext{
		JobID:    r.opt.JobID,
		ClientID: r.opt.ClientID,
		ThreadID: strconv.Itoa(idx),
		Index:    idx,
		Interval: r.opt.Interval,
		Factory:  r.opt.Factory,
		Tracer:   r.opt.Tracer,

		shouldStop: r.opt.ShouldStop,
	}
	tc.Logger = r.log.With(zap.String("thread", tc.ThreadID))

	initErr := r.job.InitializeThread(ctx, tc)
	if r.opt.Reporter != nil {
		for _, t := range tc.trackers {
			t.EnableRealTimeReporting(r.opt.Reporter, r.opt.JobID)
		}
	}
	tc.window = window.New(cfg, tc.trackers...)
	if initErr != nil {
		tc.window.Finish()
		return tc.trackers, fmt.Errorf("thread %s: initialize: %w", tc.ThreadID, initErr)
	}

	loopErr := r.loop(ctx, tc)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opt.DrainTimeout)
	finErr := r.job.FinalizeThread(drainCtx, tc)
	cancel()
	tc.window.Finish()

	if loopErr != nil {
		return tc.trackers, fmt.Errorf("thread %s: %w", tc.ThreadID, loopErr)
	}
	if finErr != nil {
		return tc.trackers, &finalizeError{thread: tc.ThreadID, err: finErr}
	}
	return tc.trackers, nil
}

func (r *Runner) loop(ctx context.Context, tc *ThreadContext) error {
	clock := r.opt.Factory.Clock()
	for {
		if ctx.Err() != nil || tc.ShouldStop() {
			return nil
		}
		if r.opt.Gate.AwaitPermission(ctx) {
			continue
		}
		tc.window.Observe(clock.Now())

		done, err := r.job.RunIteration(ctx, tc)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if done {
			return nil
		}
	}
}
