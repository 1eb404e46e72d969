package stat

// Counter counts discrete events per interval.
type Counter struct {
	series[int64]
}

var _ Tracker = (*Counter)(nil)

var counterRule = mergeRule[int64]{
	zero:  func() int64 { return 0 },
	merge: func(dst, src int64) int64 { return dst + src },
}

func (f *Factory) Counter(id Identity) *Counter {
	c := &Counter{}
	c.init(f, id,
		func(int64) int64 { return 0 },
		func(r Reporter, id Identity, index int, n int64) {
			r.ReportAdd(id, index, float64(n)/id.Interval.Seconds())
		})
	return c
}

func (c *Counter) Kind() Kind { return KindCounter }

// Increment records one event.
func (c *Counter) Increment() { c.Add(1) }

// Add records n events. Negative values are ignored.
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.current(); b != nil {
		*b += n
	}
}

// Total returns the number of events across all intervals.
func (c *Counter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, n := range c.buckets {
		total += n
	}
	return total
}

// Counts returns a copy of the per-interval counts.
func (c *Counter) Counts() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.buckets...)
}

func (c *Counter) Aggregate(others ...Tracker) (Tracker, error) {
	parts, err := gather(c, &c.series, others, func(t Tracker) (*series[int64], bool) {
		o, ok := t.(*Counter)
		if !ok {
			return nil, false
		}
		return &o.series, true
	})
	if err != nil {
		return nil, err
	}
	out := &Counter{series: series[int64]{id: parts[0].id, clock: c.clock, logger: c.logger}}
	out.absorb(parts, counterRule)
	return out, nil
}

func (c *Counter) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.baseSummary(KindCounter)
	if len(c.buckets) == 0 {
		return s
	}
	s.Series = make([]float64, len(c.buckets))
	s.Min = float64(c.buckets[0])
	for i, n := range c.buckets {
		s.Count += n
		v := float64(n)
		s.Series[i] = v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Sum = float64(s.Count)
	s.Avg = float64(s.Count) / float64(len(c.buckets))
	s.Rate = perSecond(s.Count, s.Duration)
	return s
}
