package stat

// Accumulator keeps a running total that interval boundaries never reset.
// Each bucket holds the total as of the end of its interval.
type Accumulator struct {
	series[int64]
}

var _ Tracker = (*Accumulator)(nil)

// Short inputs carry their final total forward when merged.
var accumulatorRule = mergeRule[int64]{
	zero:  func() int64 { return 0 },
	merge: func(dst, src int64) int64 { return dst + src },
	carry: true,
}

func (f *Factory) Accumulator(id Identity) *Accumulator {
	a := &Accumulator{}
	a.init(f, id,
		func(prev int64) int64 { return prev },
		func(r Reporter, id Identity, index int, total int64) {
			r.ReportAdd(id, index, float64(total))
		})
	return a
}

func (a *Accumulator) Kind() Kind { return KindAccumulator }

func (a *Accumulator) Increment() { a.Add(1) }

// Add grows the total by n. Negative values are ignored so the total never decreases.
func (a *Accumulator) Add(n int64) {
	if n < 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if b := a.current(); b != nil {
		*b += n
	}
}

// Total returns the running total.
func (a *Accumulator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buckets) == 0 {
		return 0
	}
	return a.buckets[len(a.buckets)-1]
}

// Totals returns a copy of the per-interval running totals.
func (a *Accumulator) Totals() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int64(nil), a.buckets...)
}

func (a *Accumulator) Aggregate(others ...Tracker) (Tracker, error) {
	parts, err := gather(a, &a.series, others, func(t Tracker) (*series[int64], bool) {
		o, ok := t.(*Accumulator)
		if !ok {
			return nil, false
		}
		return &o.series, true
	})
	if err != nil {
		return nil, err
	}
	out := &Accumulator{series: series[int64]{id: parts[0].id, clock: a.clock, logger: a.logger}}
	out.absorb(parts, accumulatorRule)
	return out, nil
}

func (a *Accumulator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.baseSummary(KindAccumulator)
	if len(a.buckets) == 0 {
		return s
	}
	s.Count = a.buckets[len(a.buckets)-1]
	s.Rate = perSecond(s.Count, s.Duration)
	s.Series = make([]float64, len(a.buckets))
	for i, total := range a.buckets {
		s.Series[i] = float64(total)
	}
	return s
}
