package stat

// ValueBucket summarizes the integers observed in one interval.
type ValueBucket struct {
	Count int64
	Sum   int64
	Min   int64
	Max   int64
}

// Avg returns the mean observed value of the bucket.
func (b ValueBucket) Avg() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.Sum) / float64(b.Count)
}

func mergeValueBuckets(dst, src ValueBucket) ValueBucket {
	switch {
	case src.Count == 0:
		return dst
	case dst.Count == 0:
		return src
	}
	dst.Count += src.Count
	dst.Sum += src.Sum
	dst.Min = min(dst.Min, src.Min)
	dst.Max = max(dst.Max, src.Max)
	return dst
}

var valueRule = mergeRule[ValueBucket]{
	zero:  func() ValueBucket { return ValueBucket{} },
	merge: mergeValueBuckets,
}

// Value records a distribution of observed integers, for example the number
// of entries returned per search.
type Value struct {
	series[ValueBucket]
}

var _ Tracker = (*Value)(nil)

func (f *Factory) Value(id Identity) *Value {
	v := &Value{}
	v.init(f, id,
		func(ValueBucket) ValueBucket { return ValueBucket{} },
		func(r Reporter, id Identity, index int, b ValueBucket) {
			r.ReportAverage(id, index, b.Avg())
		})
	return v
}

func (v *Value) Kind() Kind { return KindValue }

// Record adds one observation to the current interval.
func (v *Value) Record(n int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.current()
	if b == nil {
		return
	}
	*b = mergeValueBuckets(*b, ValueBucket{Count: 1, Sum: n, Min: n, Max: n})
}

// Buckets returns a copy of the per-interval summaries.
func (v *Value) Buckets() []ValueBucket {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ValueBucket(nil), v.buckets...)
}

// Total merges every interval into one bucket.
func (v *Value) Total() ValueBucket {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalLocked()
}

func (v *Value) totalLocked() ValueBucket {
	var total ValueBucket
	for _, b := range v.buckets {
		total = mergeValueBuckets(total, b)
	}
	return total
}

func (v *Value) Aggregate(others ...Tracker) (Tracker, error) {
	parts, err := gather(v, &v.series, others, func(t Tracker) (*series[ValueBucket], bool) {
		o, ok := t.(*Value)
		if !ok {
			return nil, false
		}
		return &o.series, true
	})
	if err != nil {
		return nil, err
	}
	out := &Value{series: series[ValueBucket]{id: parts[0].id, clock: v.clock, logger: v.logger}}
	out.absorb(parts, valueRule)
	return out, nil
}

func (v *Value) Summary() Summary {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.baseSummary(KindValue)
	total := v.totalLocked()
	s.Count = total.Count
	s.Rate = perSecond(total.Count, s.Duration)
	s.Sum = float64(total.Sum)
	s.Avg = total.Avg()
	s.Min = float64(total.Min)
	s.Max = float64(total.Max)
	if len(v.buckets) > 0 {
		s.Series = make([]float64, len(v.buckets))
		for i, b := range v.buckets {
			s.Series[i] = b.Avg()
		}
	}
	return s
}
