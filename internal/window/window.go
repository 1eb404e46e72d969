// Package window decides when a thread's statistics are being measured.
//
// A Window starts its trackers once the warm-up has elapsed and stops them
// when the cool-down before the scheduled stop begins. Work keeps running
// outside the window; it is simply not recorded.
package window

import (
	"fmt"
	"time"

	"github.com/torosent/loadcore/internal/stat"
)

// State is the measurement state of one thread run.
type State int

const (
	NotCollecting State = iota
	Collecting
	DoneCollecting
)

func (s State) String() string {
	switch s {
	case NotCollecting:
		return "not_collecting"
	case Collecting:
		return "collecting"
	case DoneCollecting:
		return "done_collecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config carries the schedule supplied at thread initialization.
type Config struct {
	Start    time.Time     // job start
	StopAt   time.Time     // scheduled stop; zero when the run is open-ended
	WarmUp   time.Duration // unmeasured time after Start
	CoolDown time.Duration // unmeasured time before StopAt
}

// StartCollecting returns the moment measurement begins.
func (c Config) StartCollecting() time.Time {
	return c.Start.Add(c.WarmUp)
}

// StopCollecting returns the moment measurement ends. ok is false when no
// cool-down applies, either because none is configured or because the run
// has no scheduled stop.
func (c Config) StopCollecting() (t time.Time, ok bool) {
	if c.CoolDown <= 0 || c.StopAt.IsZero() {
		return time.Time{}, false
	}
	return c.StopAt.Add(-c.CoolDown), true
}

// Unbounded reports whether a cool-down was requested but cannot be honored
// because the run has no scheduled stop.
func (c Config) Unbounded() bool {
	return c.CoolDown > 0 && c.StopAt.IsZero()
}

// Window drives tracker start and stop for one thread. It is not safe for
// concurrent use; each thread owns its own.
type Window struct {
	cfg      Config
	state    State
	trackers []stat.Tracker

	stopAt   time.Time
	hasStop  bool
	started  bool
	finished bool
}

// New returns a window over trackers. With no warm-up the trackers start
// immediately.
func New(cfg Config, trackers ...stat.Tracker) *Window {
	w := &Window{cfg: cfg, trackers: trackers}
	w.stopAt, w.hasStop = cfg.StopCollecting()
	if cfg.WarmUp <= 0 {
		w.begin()
	}
	return w
}

// Observe advances the state machine to now and returns the resulting state.
func (w *Window) Observe(now time.Time) State {
	switch w.state {
	case Collecting:
		if w.hasStop && !now.Before(w.stopAt) {
			w.end()
		}
	case NotCollecting:
		if !now.Before(w.cfg.StartCollecting()) {
			w.begin()
			if w.hasStop && !now.Before(w.stopAt) {
				w.end()
			}
		}
	}
	return w.state
}

// State returns the current state without advancing it.
func (w *Window) State() State { return w.state }

// Collecting reports whether records made now are measured.
func (w *Window) Collecting() bool { return w.state == Collecting }

// Config returns the schedule the window was built with.
func (w *Window) Config() Config { return w.cfg }

// Finish closes the window at the end of a run. Trackers that never started
// are started and stopped so that every tracker ends the run paired.
func (w *Window) Finish() {
	if w.finished {
		return
	}
	w.finished = true
	if !w.started {
		w.begin()
	}
	if w.state == Collecting {
		w.end()
	}
}

func (w *Window) begin() {
	w.started = true
	w.state = Collecting
	for _, t := range w.trackers {
		t.Start()
	}
}

func (w *Window) end() {
	w.state = DoneCollecting
	for _, t := range w.trackers {
		t.Stop()
	}
}
