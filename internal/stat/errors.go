package stat

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTrackers is returned when aggregating an empty list.
	ErrNoTrackers = errors.New("stat: no trackers to aggregate")
	// ErrTrackerRunning is returned when an aggregation input has not been stopped.
	ErrTrackerRunning = errors.New("stat: tracker still running")
)

// IncompatibleTrackerError reports an attempt to merge trackers that do not
// describe the same statistic.
type IncompatibleTrackerError struct {
	WantKind Kind
	Want     Identity
	GotKind  Kind
	Got      Identity
	Reason   string
}

func (e *IncompatibleTrackerError) Error() string {
	return fmt.Sprintf("stat: cannot aggregate %s %q with %s %q: %s",
		e.WantKind, e.Want.Name, e.GotKind, e.Got.Name, e.Reason)
}

func incompatible(base Tracker, other Tracker, reason string) error {
	e := &IncompatibleTrackerError{
		WantKind: base.Kind(),
		Want:     base.Identity(),
		Reason:   reason,
	}
	if other != nil {
		e.GotKind = other.Kind()
		e.Got = other.Identity()
	}
	return e
}
