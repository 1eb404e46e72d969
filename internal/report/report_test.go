package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/loadcore/internal/stat"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]Snapshot
	fail    int
	closed  bool
}

func (m *memorySink) Send(_ context.Context, batch []Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("sink down")
	}
	m.batches = append(m.batches, append([]Snapshot(nil), batch...))
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) all() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Snapshot
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

var id = stat.Identity{OwnerID: "client-1", SubOwnerID: "0", Name: "Requests Completed", Interval: time.Second}

func TestReporterFlushesInOrder(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, Options{JobID: "default-job"})

	r.Register("job-1", id)
	r.ReportAdd(id, 0, 12.5)
	r.ReportAverage(id, 1, 3)
	r.Done(id, 2)
	r.Flush(context.Background())

	got := sink.all()
	require.Len(t, got, 4)
	assert.Equal(t, []Op{OpRegister, OpAdd, OpAverage, OpDone}, []Op{got[0].Op, got[1].Op, got[2].Op, got[3].Op})
	for _, snap := range got {
		assert.Equal(t, "job-1", snap.JobID)
		assert.Equal(t, "Requests Completed", snap.Stat)
		assert.Equal(t, "client-1", snap.OwnerID)
	}
	assert.Equal(t, 12.5, got[1].Value)
	assert.Equal(t, 1, got[2].Interval)
	assert.Equal(t, int64(4), r.Stats().Sent)
}

func TestReporterUnregisteredUsesDefaultJob(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, Options{JobID: "default-job"})
	r.ReportAdd(id, 0, 1)
	r.Flush(context.Background())

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "default-job", got[0].JobID)
}

func TestReporterDropsOldestBeyondMaxPending(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, Options{MaxPending: 3})
	for i := 0; i < 5; i++ {
		r.ReportAdd(id, i, float64(i))
	}
	assert.Equal(t, Stats{Dropped: 2, Pending: 3}, r.Stats())

	r.Flush(context.Background())
	got := sink.all()
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Interval)
	assert.Equal(t, 4, got[2].Interval)
}

func TestReporterDropsFailedBatchAndRecovers(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memorySink{fail: 1}
	r := New(sink, Options{Logger: zap.New(core)})

	r.ReportAdd(id, 0, 1)
	r.Flush(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("dropping real-time batch").Len())
	assert.Equal(t, int64(1), r.Stats().Failed)

	r.ReportAdd(id, 1, 2)
	r.Flush(context.Background())
	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Interval)
}

func TestReporterStartStop(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, Options{Interval: 10 * time.Millisecond})
	r.Start()
	r.Start()

	r.ReportAdd(id, 0, 1)
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	r.Done(id, 1)
	require.NoError(t, r.Stop())
	assert.Len(t, sink.all(), 2, "Stop flushes what is still pending")
	assert.True(t, sink.closed)
}

func TestTrackerReportsThroughReporter(t *testing.T) {
	clock := stat.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	f := stat.NewFactory(stat.WithClock(clock))
	sink := &memorySink{}
	r := New(sink, Options{JobID: "job-1"})

	c := f.Counter(id)
	c.EnableRealTimeReporting(r, "job-1")
	c.Start()
	c.Add(4)
	clock.Advance(time.Second)
	c.Increment()
	clock.Advance(500 * time.Millisecond)
	c.Stop()
	r.Flush(context.Background())

	var ops []Op
	for _, snap := range sink.all() {
		ops = append(ops, snap.Op)
	}
	assert.Equal(t, OpRegister, ops[0])
	assert.Contains(t, ops, OpAdd)
	assert.Equal(t, OpDone, ops[len(ops)-1])
}

func TestLogSinkWritesEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Send(context.Background(), []Snapshot{{Stat: "a", Op: OpAdd}, {Stat: "b", Op: OpDone}}))
	require.NoError(t, sink.Close())

	entries := logs.FilterMessage("stat").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].ContextMap()["stat"])
}
