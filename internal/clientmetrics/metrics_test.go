package clientmetrics

import (
	"sync"
	"testing"
)

func TestActiveOperationsTrackInFlight(t *testing.T) {
	m := New()
	m.Begin()
	m.Begin()
	if got := m.ActiveOperations(); got != 2 {
		t.Fatalf("ActiveOperations() = %d, want 2", got)
	}
	m.End(false)
	m.End(true)
	m.End(false) // unmatched End must not go negative

	snap := m.Snapshot()
	if snap.Active != 0 {
		t.Errorf("Active = %d, want 0", snap.Active)
	}
	if snap.Submitted != 2 || snap.Completed != 3 || snap.Errors != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestRejectCountsAsError(t *testing.T) {
	m := New()
	m.Reject()
	snap := m.Snapshot()
	if snap.Rejected != 1 || snap.Errors != 1 || snap.Active != 0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestConnectionDuration(t *testing.T) {
	m := New()
	if m.ConnectionDuration() != 0 {
		t.Fatal("expected zero duration before connect")
	}
	m.MarkConnected()
	if m.ConnectionDuration() < 0 {
		t.Fatal("expected non-negative duration")
	}
	m.Reset()
	if m.ConnectionDuration() != 0 {
		t.Fatal("expected zero duration after reset")
	}
}

func TestConcurrentBeginEnd(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Begin()
				m.End(false)
			}
		}()
	}
	wg.Wait()
	snap := m.Snapshot()
	if snap.Active != 0 || snap.Completed != 1600 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
