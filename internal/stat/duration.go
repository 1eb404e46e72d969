package stat

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// DurationBucket summarizes the elapsed times recorded in one interval.
type DurationBucket struct {
	Count int64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean elapsed time of the bucket.
func (b DurationBucket) Avg() time.Duration {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / time.Duration(b.Count)
}

func (b DurationBucket) add(d time.Duration) DurationBucket {
	if b.Count == 0 || d < b.Min {
		b.Min = d
	}
	if d > b.Max {
		b.Max = d
	}
	b.Count++
	b.Sum += d
	return b
}

func mergeDurationBuckets(dst, src DurationBucket) DurationBucket {
	switch {
	case src.Count == 0:
		return dst
	case dst.Count == 0:
		return src
	}
	dst.Count += src.Count
	dst.Sum += src.Sum
	if src.Min < dst.Min {
		dst.Min = src.Min
	}
	if src.Max > dst.Max {
		dst.Max = src.Max
	}
	return dst
}

var durationRule = mergeRule[DurationBucket]{
	zero:  func() DurationBucket { return DurationBucket{} },
	merge: mergeDurationBuckets,
}

// Duration records operation elapsed times. Percentiles come from a
// whole-run histogram with microsecond resolution.
type Duration struct {
	series[DurationBucket]
	hist *hdrhistogram.Histogram

	last   time.Duration
	lastAt time.Time

	timerStart time.Time
}

var _ Tracker = (*Duration)(nil)

// Track durations from 1µs up to one hour with 3 significant figures.
func newDurationHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3)
}

func (f *Factory) Duration(id Identity) *Duration {
	d := &Duration{hist: newDurationHistogram()}
	d.init(f, id,
		func(DurationBucket) DurationBucket { return DurationBucket{} },
		func(r Reporter, id Identity, index int, b DurationBucket) {
			r.ReportAverage(id, index, ms(b.Avg()))
		})
	return d
}

func (d *Duration) Kind() Kind { return KindDuration }

// Record adds one elapsed time to the current interval.
func (d *Duration) Record(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.current()
	if b == nil {
		return
	}
	*b = b.add(elapsed)

	us := elapsed.Microseconds()
	if us < d.hist.LowestTrackableValue() {
		us = d.hist.LowestTrackableValue()
	}
	if us > d.hist.HighestTrackableValue() {
		us = d.hist.HighestTrackableValue()
	}
	_ = d.hist.RecordValue(us)

	d.last = elapsed
	d.lastAt = d.clock.Now()
}

// RecordSince records the time elapsed since start.
func (d *Duration) RecordSince(start time.Time) {
	d.Record(d.clock.Now().Sub(start))
}

// StartTimer marks the beginning of an operation for StopTimer. It is meant
// for the owning thread only.
func (d *Duration) StartTimer() {
	d.mu.Lock()
	d.timerStart = d.clock.Now()
	d.mu.Unlock()
}

// StopTimer records the time since the last StartTimer and returns it.
func (d *Duration) StopTimer() time.Duration {
	d.mu.Lock()
	start := d.timerStart
	d.timerStart = time.Time{}
	d.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	elapsed := d.clock.Now().Sub(start)
	d.Record(elapsed)
	return elapsed
}

// Last returns the most recently recorded elapsed time.
func (d *Duration) Last() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Buckets returns a copy of the per-interval summaries.
func (d *Duration) Buckets() []DurationBucket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DurationBucket(nil), d.buckets...)
}

// Total merges every interval into one bucket.
func (d *Duration) Total() DurationBucket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalLocked()
}

func (d *Duration) totalLocked() DurationBucket {
	var total DurationBucket
	for _, b := range d.buckets {
		total = mergeDurationBuckets(total, b)
	}
	return total
}

// Quantile returns the elapsed time at quantile q (0-100).
func (d *Duration) Quantile(q float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quantileLocked(q)
}

func (d *Duration) quantileLocked(q float64) time.Duration {
	if d.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(d.hist.ValueAtQuantile(q)) * time.Microsecond
}

func (d *Duration) Aggregate(others ...Tracker) (Tracker, error) {
	peers := make([]*Duration, 0, len(others))
	parts, err := gather(d, &d.series, others, func(t Tracker) (*series[DurationBucket], bool) {
		o, ok := t.(*Duration)
		if !ok {
			return nil, false
		}
		peers = append(peers, o)
		return &o.series, true
	})
	if err != nil {
		return nil, err
	}

	out := &Duration{
		series: series[DurationBucket]{id: parts[0].id, clock: d.clock, logger: d.logger},
		hist:   newDurationHistogram(),
	}
	out.absorb(parts, durationRule)
	for _, src := range append([]*Duration{d}, peers...) {
		src.mu.Lock()
		out.hist.Merge(src.hist)
		if src.lastAt.After(out.lastAt) || (src.lastAt.Equal(out.lastAt) && src.last > out.last) {
			out.last, out.lastAt = src.last, src.lastAt
		}
		src.mu.Unlock()
	}
	return out, nil
}

func (d *Duration) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.baseSummary(KindDuration)
	total := d.totalLocked()
	s.Count = total.Count
	s.Rate = perSecond(total.Count, s.Duration)
	s.Sum = ms(total.Sum)
	s.Avg = ms(total.Avg())
	s.Min = ms(total.Min)
	s.Max = ms(total.Max)
	s.P50 = ms(d.quantileLocked(50))
	s.P90 = ms(d.quantileLocked(90))
	s.P95 = ms(d.quantileLocked(95))
	s.P99 = ms(d.quantileLocked(99))
	s.StdDev = intervalStdDev(d.buckets, total.Avg())
	s.Last = ms(d.last)
	if len(d.buckets) > 0 {
		s.Series = make([]float64, len(d.buckets))
		for i, b := range d.buckets {
			s.Series[i] = ms(b.Avg())
		}
	}
	return s
}

// intervalStdDev returns, in milliseconds, the sample standard deviation of
// the non-empty intervals' averages around avg. Fewer than two such
// intervals yield 0.
func intervalStdDev(buckets []DurationBucket, avg time.Duration) float64 {
	var sumSq float64
	n := 0
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		diff := ms(b.Avg()) - ms(avg)
		sumSq += diff * diff
		n++
	}
	if n < 2 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n-1))
}
