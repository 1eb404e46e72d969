package stat

import (
	"fmt"
	"time"
)

// DefaultInterval is the collection interval used when an Identity leaves it unset.
const DefaultInterval = 60 * time.Second

// Kind names a tracker shape.
type Kind string

const (
	KindCounter     Kind = "counter"
	KindDuration    Kind = "duration"
	KindCategorical Kind = "categorical"
	KindValue       Kind = "value"
	KindAccumulator Kind = "accumulator"
)

// Identity binds a tracker to its owner and statistic.
type Identity struct {
	OwnerID    string        // client that runs the job
	SubOwnerID string        // thread, or thread plus connection
	Name       string        // display name, shared by all instances of the statistic
	Interval   time.Duration // collection interval
}

func (id Identity) String() string {
	if id.SubOwnerID == "" {
		return fmt.Sprintf("%s/%s", id.OwnerID, id.Name)
	}
	return fmt.Sprintf("%s/%s/%s", id.OwnerID, id.SubOwnerID, id.Name)
}

// Tracker is the contract shared by every shape.
type Tracker interface {
	Identity() Identity
	Kind() Kind

	// Start opens the measurement window. Later calls are no-ops.
	Start()
	// Stop closes the window and finalizes the current bucket.
	Stop()
	Started() bool
	Running() bool

	StartTime() time.Time
	StopTime() time.Time
	Duration() time.Duration
	Intervals() int
	Dropped() int64

	// Aggregate returns a new stopped tracker merging the receiver with others.
	Aggregate(others ...Tracker) (Tracker, error)
	Summary() Summary

	EnableRealTimeReporting(r Reporter, jobID string)
	DisableRealTimeReporting()
}

// Reporter receives interval snapshots as trackers roll over. Calls are made
// while the tracker lock is held, so implementations must return promptly.
type Reporter interface {
	Register(jobID string, id Identity)
	ReportAdd(id Identity, interval int, value float64)
	ReportAverage(id Identity, interval int, value float64)
	Done(id Identity, interval int)
}
