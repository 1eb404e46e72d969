// Package report streams interval snapshots of running trackers to a sink.
//
// A Reporter implements stat.Reporter. Trackers call it while holding their
// own locks, so every method only appends to a pending list; a background
// goroutine flushes that list to the configured Sink on a fixed interval.
package report

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/stat"
)

// Op identifies what a snapshot carries.
type Op string

const (
	OpRegister Op = "register"
	OpAdd      Op = "add"
	OpAverage  Op = "average"
	OpDone     Op = "done"
)

// Snapshot is one real-time update for a single statistic.
type Snapshot struct {
	JobID      string    `json:"job_id"`
	OwnerID    string    `json:"owner_id"`
	SubOwnerID string    `json:"sub_owner_id,omitempty"`
	Stat       string    `json:"stat"`
	Op         Op        `json:"op"`
	Interval   int       `json:"interval"`
	Value      float64   `json:"value"`
	At         time.Time `json:"at"`
}

// Sink delivers batches of snapshots somewhere outside the process.
type Sink interface {
	Send(ctx context.Context, batch []Snapshot) error
	Close() error
}

const (
	DefaultInterval   = 5 * time.Second
	DefaultMaxPending = 10000
)

// Options configure a Reporter.
type Options struct {
	Interval   time.Duration
	JobID      string
	Logger     *zap.Logger
	MaxPending int
	Now        func() time.Time
}

// Reporter buffers tracker updates and flushes them periodically.
type Reporter struct {
	sink Sink
	opt  Options
	log  *zap.Logger

	mu      sync.Mutex
	pending []Snapshot
	jobs    map[stat.Identity]string

	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64

	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	active   int32
}

func New(sink Sink, opt Options) *Reporter {
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if opt.MaxPending <= 0 {
		opt.MaxPending = DefaultMaxPending
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Reporter{
		sink:     sink,
		opt:      opt,
		log:      opt.Logger.With(zap.String("component", "reporter")),
		jobs:     make(map[stat.Identity]string),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (r *Reporter) Register(jobID string, id stat.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jobID == "" {
		jobID = r.opt.JobID
	}
	r.jobs[id] = jobID
	r.appendLocked(id, OpRegister, 0, 0)
}

func (r *Reporter) ReportAdd(id stat.Identity, interval int, value float64) {
	r.enqueue(id, OpAdd, interval, value)
}

func (r *Reporter) ReportAverage(id stat.Identity, interval int, value float64) {
	r.enqueue(id, OpAverage, interval, value)
}

func (r *Reporter) Done(id stat.Identity, interval int) {
	r.enqueue(id, OpDone, interval, 0)
}

func (r *Reporter) enqueue(id stat.Identity, op Op, interval int, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(id, op, interval, value)
}

func (r *Reporter) appendLocked(id stat.Identity, op Op, interval int, value float64) {
	job, ok := r.jobs[id]
	if !ok {
		job = r.opt.JobID
	}
	r.pending = append(r.pending, Snapshot{
		JobID:      job,
		OwnerID:    id.OwnerID,
		SubOwnerID: id.SubOwnerID,
		Stat:       id.Name,
		Op:         op,
		Interval:   interval,
		Value:      value,
		At:         r.opt.Now(),
	})
	if over := len(r.pending) - r.opt.MaxPending; over > 0 {
		r.pending = append(r.pending[:0], r.pending[over:]...)
		r.dropped.Add(int64(over))
	}
}

// Start begins flushing in a background goroutine.
func (r *Reporter) Start() {
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return
	}
	r.ticker = time.NewTicker(r.opt.Interval)
	go r.run()
}

// Stop halts the flush loop, sends whatever is still pending and closes the sink.
func (r *Reporter) Stop() error {
	if atomic.CompareAndSwapInt32(&r.active, 1, 0) {
		close(r.done)
		r.ticker.Stop()
		<-r.finished
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opt.Interval)
	defer cancel()
	r.Flush(ctx)
	return r.sink.Close()
}

func (r *Reporter) run() {
	defer close(r.finished)
	for {
		select {
		case <-r.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.opt.Interval)
			r.Flush(ctx)
			cancel()
		case <-r.done:
			return
		}
	}
}

// Flush sends the pending batch now. A failed batch is dropped so that a
// sink that is down cannot grow memory without bound.
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := r.sink.Send(ctx, batch); err != nil {
		r.failed.Add(int64(len(batch)))
		r.log.Warn("dropping real-time batch", zap.Int("snapshots", len(batch)), zap.Error(err))
		return
	}
	r.sent.Add(int64(len(batch)))
}

// Stats describes delivery so far.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
	Pending int
}

func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	return Stats{Sent: r.sent.Load(), Failed: r.failed.Load(), Dropped: r.dropped.Load(), Pending: pending}
}
