package stat_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/loadcore/internal/stat"
)

// buildSet returns three stopped trackers of kind with different interval
// counts and contents.
func buildSet(t *testing.T, kind stat.Kind) []stat.Tracker {
	t.Helper()
	f, clock := newFactory(t)
	out := make([]stat.Tracker, 3)
	for i := range out {
		tr, err := f.New(kind, ident(fmt.Sprintf("thread-%d", i), "Stat"))
		require.NoError(t, err)
		out[i] = tr
		tr.Start()
	}
	for step := 0; step < 4; step++ {
		for i, tr := range out {
			if step > i+1 {
				continue
			}
			feed(tr, int64((i+1)*(step+2)))
		}
		clock.Advance(time.Second)
		for i, tr := range out {
			if step == i+1 {
				tr.Stop()
			}
		}
	}
	for _, tr := range out {
		if tr.Running() {
			tr.Stop()
		}
	}
	return out
}

func feed(tr stat.Tracker, n int64) {
	switch v := tr.(type) {
	case *stat.Counter:
		v.Add(n)
	case *stat.Duration:
		v.Record(time.Duration(n) * time.Millisecond)
	case *stat.Categorical:
		v.Record(fmt.Sprintf("code-%d", n%3))
	case *stat.Value:
		v.Record(n)
	case *stat.Accumulator:
		v.Add(n)
	}
}

func mustAggregate(t *testing.T, trackers ...stat.Tracker) stat.Tracker {
	t.Helper()
	out, err := stat.Aggregate(trackers)
	require.NoError(t, err)
	return out
}

var allKinds = []stat.Kind{stat.KindCounter, stat.KindDuration, stat.KindCategorical, stat.KindValue, stat.KindAccumulator}

func TestAggregateIsCommutative(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			set := buildSet(t, kind)
			ab := mustAggregate(t, set[0], set[1])
			ba := mustAggregate(t, set[1], set[0])
			assert.Equal(t, ab.Summary(), ba.Summary())
		})
	}
}

func TestAggregateIsAssociative(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			set := buildSet(t, kind)
			left := mustAggregate(t, mustAggregate(t, set[0], set[1]), set[2])
			right := mustAggregate(t, set[0], mustAggregate(t, set[1], set[2]))
			flat := mustAggregate(t, set...)
			assert.Equal(t, left.Summary(), right.Summary())
			assert.Equal(t, flat.Summary(), left.Summary())
		})
	}
}

func TestAggregatePadsShortTrackers(t *testing.T) {
	set := buildSet(t, stat.KindCounter)
	require.Equal(t, 2, set[0].Intervals())
	require.Equal(t, 4, set[2].Intervals())

	merged := mustAggregate(t, set...)
	assert.Equal(t, 4, merged.Intervals())
	// Totals are preserved across padding.
	var want int64
	for _, tr := range set {
		want += tr.(*stat.Counter).Total()
	}
	assert.Equal(t, want, merged.(*stat.Counter).Total())
}

func TestConcurrentRecordersShareTracker(t *testing.T) {
	f := stat.NewFactory()
	d := f.Duration(ident("thread-0", "Async Duration"))
	d.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				d.Record(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	d.Stop()

	assert.Equal(t, int64(2000), d.Total().Count)
	assert.Equal(t, time.Millisecond, d.Quantile(99).Truncate(time.Millisecond))
}

type recordedReport struct {
	op       string
	name     string
	interval int
	value    float64
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []recordedReport
	jobs    []string
}

func (r *fakeReporter) Register(jobID string, id stat.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID+":"+id.Name)
}

func (r *fakeReporter) ReportAdd(id stat.Identity, interval int, value float64) {
	r.add("add", id, interval, value)
}

func (r *fakeReporter) ReportAverage(id stat.Identity, interval int, value float64) {
	r.add("average", id, interval, value)
}

func (r *fakeReporter) Done(id stat.Identity, interval int) {
	r.add("done", id, interval, 0)
}

func (r *fakeReporter) add(op string, id stat.Identity, interval int, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, recordedReport{op: op, name: id.Name, interval: interval, value: value})
}

func TestRealTimeReportingEmitsClosedIntervals(t *testing.T) {
	f, clock := newFactory(t)
	rep := &fakeReporter{}

	c := f.Counter(stat.Identity{OwnerID: "client-1", Name: "Ops", Interval: 2 * time.Second})
	c.EnableRealTimeReporting(rep, "job-1")
	c.Start()
	c.Add(4)
	clock.Advance(2 * time.Second)
	c.Add(2)
	clock.Advance(500 * time.Millisecond)
	c.Stop()

	assert.Equal(t, []string{"job-1:Ops"}, rep.jobs)
	assert.Equal(t, []recordedReport{
		{op: "add", name: "Ops", interval: 0, value: 2},
		{op: "add", name: "Ops", interval: 1, value: 1},
		{op: "done", name: "Ops", interval: 2},
	}, rep.reports)
}

func TestRealTimeReportingAveragesDurations(t *testing.T) {
	f, clock := newFactory(t)
	rep := &fakeReporter{}

	d := f.Duration(ident("thread-0", "Latency"))
	d.EnableRealTimeReporting(rep, "job-1")
	d.Start()
	d.Record(10 * time.Millisecond)
	d.Record(30 * time.Millisecond)
	clock.Advance(time.Second)
	d.Record(5 * time.Millisecond)
	d.DisableRealTimeReporting()
	d.Stop()

	require.Len(t, rep.reports, 1)
	assert.Equal(t, recordedReport{op: "average", name: "Latency", interval: 0, value: 20}, rep.reports[0])
}
