package stat

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// series holds the lifecycle and interval bookkeeping shared by all shapes.
// B is the per-interval bucket type.
type series[B any] struct {
	mu     sync.Mutex
	id     Identity
	clock  Clock
	logger *zap.Logger

	started bool
	running bool
	start   time.Time
	stop    time.Time
	buckets []B
	dropped int64

	// next builds the bucket that follows prev.
	next func(prev B) B
	// emit pushes a closed bucket to the reporter; nil for shapes that do not report.
	emit func(r Reporter, id Identity, index int, b B)

	reporter Reporter
	jobID    string
}

func (s *series[B]) init(f *Factory, id Identity, next func(prev B) B, emit func(Reporter, Identity, int, B)) {
	if id.Interval <= 0 {
		id.Interval = DefaultInterval
	}
	s.id = id
	s.clock = f.clock
	s.logger = f.logger
	s.next = next
	s.emit = emit
}

func (s *series[B]) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *series[B]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.logger.Warn("tracker already started", s.fields()...)
		return
	}
	var zero B
	s.started = true
	s.running = true
	s.start = s.clock.Now()
	s.buckets = []B{s.next(zero)}
}

func (s *series[B]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.started:
		s.logger.Warn("tracker stopped before it was started", s.fields()...)
		return
	case !s.running:
		s.logger.Warn("tracker already stopped", s.fields()...)
		return
	}
	now := s.clock.Now()
	// A stop landing exactly on a boundary closes the previous interval
	// rather than opening an empty one.
	if now.After(s.start) {
		s.advance(now.Add(-1))
	}
	s.running = false
	s.stop = now
	last := len(s.buckets) - 1
	s.report(last)
	if s.reporter != nil {
		s.reporter.Done(s.id, last+1)
	}
}

func (s *series[B]) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *series[B]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *series[B]) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

func (s *series[B]) StopTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

func (s *series[B]) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

func (s *series[B]) durationLocked() time.Duration {
	switch {
	case !s.started:
		return 0
	case s.running:
		return s.clock.Now().Sub(s.start)
	default:
		return s.stop.Sub(s.start)
	}
}

func (s *series[B]) Intervals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *series[B]) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *series[B]) EnableRealTimeReporting(r Reporter, jobID string) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = r
	s.jobID = jobID
	r.Register(jobID, s.id)
}

func (s *series[B]) DisableRealTimeReporting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = nil
}

// current returns the bucket for the present moment, or nil when the tracker
// is not running. The caller must hold s.mu.
func (s *series[B]) current() *B {
	if !s.running {
		s.dropped++
		s.logger.Debug("record outside measurement window dropped", s.fields()...)
		return nil
	}
	s.advance(s.clock.Now())
	return &s.buckets[len(s.buckets)-1]
}

// advance appends buckets until the last one covers now. Times before the
// current bucket land in the current bucket.
func (s *series[B]) advance(now time.Time) {
	idx := int(now.Sub(s.start) / s.id.Interval)
	for len(s.buckets)-1 < idx {
		last := len(s.buckets) - 1
		s.report(last)
		s.buckets = append(s.buckets, s.next(s.buckets[last]))
	}
}

func (s *series[B]) report(index int) {
	if s.reporter == nil || s.emit == nil || index < 0 {
		return
	}
	s.emit(s.reporter, s.id, index, s.buckets[index])
}

func (s *series[B]) fields() []zap.Field {
	return []zap.Field{
		zap.String("stat", s.id.Name),
		zap.String("owner", s.id.OwnerID),
		zap.String("sub_owner", s.id.SubOwnerID),
	}
}

// frozen is a stopped series captured for aggregation.
type frozen[B any] struct {
	id      Identity
	start   time.Time
	stop    time.Time
	buckets []B
	dropped int64
}

func (s *series[B]) freeze() (frozen[B], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return frozen[B]{}, false
	}
	return frozen[B]{id: s.id, start: s.start, stop: s.stop, buckets: s.buckets, dropped: s.dropped}, true
}

// mergeRule describes how buckets of one shape combine.
type mergeRule[B any] struct {
	zero  func() B
	merge func(dst, src B) B
	// carry pads a short input with its last bucket instead of an empty one.
	carry bool
}

// absorb fills s with the union of parts. s must be freshly constructed.
func (s *series[B]) absorb(parts []frozen[B], rule mergeRule[B]) {
	width := 0
	owner := parts[0].id.OwnerID
	for _, p := range parts {
		if len(p.buckets) > width {
			width = len(p.buckets)
		}
		if p.id.OwnerID != owner {
			owner = ""
		}
		s.dropped += p.dropped
		if p.start.IsZero() {
			continue
		}
		if s.start.IsZero() || p.start.Before(s.start) {
			s.start = p.start
		}
		if p.stop.After(s.stop) {
			s.stop = p.stop
		}
	}

	merged := make([]B, width)
	for i := range merged {
		merged[i] = rule.zero()
	}
	for _, p := range parts {
		for i := range merged {
			switch {
			case i < len(p.buckets):
				merged[i] = rule.merge(merged[i], p.buckets[i])
			case rule.carry && len(p.buckets) > 0:
				merged[i] = rule.merge(merged[i], p.buckets[len(p.buckets)-1])
			}
		}
	}

	s.id.OwnerID = owner
	s.id.SubOwnerID = ""
	s.started = true
	s.running = false
	s.buckets = merged
}

// gather validates and freezes the inputs of an aggregation. base is the
// receiver tracker, self its series, and peer extracts the series of a peer
// with the same concrete shape.
func gather[B any](base Tracker, self *series[B], others []Tracker, peer func(Tracker) (*series[B], bool)) ([]frozen[B], error) {
	first, ok := self.freeze()
	if !ok {
		return nil, ErrTrackerRunning
	}
	parts := make([]frozen[B], 0, len(others)+1)
	parts = append(parts, first)
	for _, o := range others {
		ps, ok := peer(o)
		if !ok {
			return nil, incompatible(base, o, "shape mismatch")
		}
		p, ok := ps.freeze()
		if !ok {
			return nil, ErrTrackerRunning
		}
		switch {
		case p.id.Name != first.id.Name:
			return nil, incompatible(base, o, "display name mismatch")
		case p.id.Interval != first.id.Interval:
			return nil, incompatible(base, o, "collection interval mismatch")
		}
		parts = append(parts, p)
	}
	return parts, nil
}
