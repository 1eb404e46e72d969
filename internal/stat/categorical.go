package stat

// Categorical counts occurrences of labels that are not known in advance,
// such as protocol result codes.
type Categorical struct {
	series[map[string]int64]
}

var _ Tracker = (*Categorical)(nil)

var categoricalRule = mergeRule[map[string]int64]{
	zero: func() map[string]int64 { return map[string]int64{} },
	merge: func(dst, src map[string]int64) map[string]int64 {
		for label, n := range src {
			dst[label] += n
		}
		return dst
	},
}

// Categorical trackers are not pushed to the real-time reporter.
func (f *Factory) Categorical(id Identity) *Categorical {
	c := &Categorical{}
	c.init(f, id, func(map[string]int64) map[string]int64 { return map[string]int64{} }, nil)
	return c
}

func (c *Categorical) Kind() Kind { return KindCategorical }

// Record counts one occurrence of label.
func (c *Categorical) Record(label string) { c.Add(label, 1) }

// Add counts n occurrences of label.
func (c *Categorical) Add(label string, n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.current(); b != nil {
		(*b)[label] += n
	}
}

// Totals returns the label counts across all intervals.
func (c *Categorical) Totals() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *Categorical) totalsLocked() map[string]int64 {
	out := map[string]int64{}
	for _, b := range c.buckets {
		for label, n := range b {
			out[label] += n
		}
	}
	return out
}

// Buckets returns a copy of the per-interval label counts.
func (c *Categorical) Buckets() []map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]int64, len(c.buckets))
	for i, b := range c.buckets {
		cp := make(map[string]int64, len(b))
		for label, n := range b {
			cp[label] = n
		}
		out[i] = cp
	}
	return out
}

func (c *Categorical) Aggregate(others ...Tracker) (Tracker, error) {
	parts, err := gather(c, &c.series, others, func(t Tracker) (*series[map[string]int64], bool) {
		o, ok := t.(*Categorical)
		if !ok {
			return nil, false
		}
		return &o.series, true
	})
	if err != nil {
		return nil, err
	}
	out := &Categorical{series: series[map[string]int64]{id: parts[0].id, clock: c.clock, logger: c.logger}}
	out.absorb(parts, categoricalRule)
	return out, nil
}

func (c *Categorical) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.baseSummary(KindCategorical)
	totals := c.totalsLocked()
	for _, n := range totals {
		s.Count += n
	}
	s.Rate = perSecond(s.Count, s.Duration)
	s.Categories = FlattenCategories(totals)
	return s
}
