package pool

import (
	"errors"
	"strings"
	"testing"
)

type mockConn struct {
	active   int
	closed   bool
	closeErr error
}

func (m *mockConn) ActiveOperations() int { return m.active }

func (m *mockConn) Close() error {
	m.closed = true
	return m.closeErr
}

func TestRoundRobinRotates(t *testing.T) {
	conns := []*mockConn{{}, {}, {}}
	s, err := NewSelector(RoundRobin, conns)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}

	var got []int
	for i := 0; i < 7; i++ {
		idx, c := s.Next()
		if c != conns[idx] {
			t.Fatalf("Next() returned connection not at index %d", idx)
		}
		got = append(got, idx)
	}
	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
}

func TestFewestOutstandingPrefersIdle(t *testing.T) {
	conns := []*mockConn{{active: 4}, {active: 2}, {active: 0}, {active: 1}}
	s, err := NewSelector(FewestOutstanding, conns)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	if idx, _ := s.Next(); idx != 2 {
		t.Errorf("Next() = %d, want idle connection 2", idx)
	}

	conns[2].active = 5
	if idx, _ := s.Next(); idx != 3 {
		t.Errorf("Next() = %d, want least busy connection 3", idx)
	}

	conns[0].active = 0
	if idx, _ := s.Next(); idx != 0 {
		t.Errorf("Next() = %d, want first idle connection 0", idx)
	}
}

func TestFewestOutstandingTiesFavorEarlier(t *testing.T) {
	conns := []*mockConn{{active: 3}, {active: 1}, {active: 1}}
	s, _ := NewSelector(FewestOutstanding, conns)
	if idx, _ := s.Next(); idx != 1 {
		t.Errorf("Next() = %d, want 1", idx)
	}
}

func TestNewSelectorValidates(t *testing.T) {
	if _, err := NewSelector[*mockConn](RoundRobin, nil); err == nil {
		t.Error("expected error for empty pool")
	}
	if _, err := NewSelector(Policy("random"), []*mockConn{{}}); err == nil {
		t.Error("expected error for unknown policy")
	}
	s, err := NewSelector("", []*mockConn{{}})
	if err != nil || s.Policy() != RoundRobin {
		t.Errorf("empty policy should default to round robin, got %v %v", s, err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", RoundRobin, false},
		{"round-robin", RoundRobin, false},
		{"FEWEST_OUTSTANDING", FewestOutstanding, false},
		{"fewest-operations", FewestOutstanding, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCloseClosesAllAndJoinsErrors(t *testing.T) {
	errBoom := errors.New("boom")
	errBust := errors.New("bust")
	conns := []*mockConn{{}, {closeErr: errBoom}, {closeErr: errBust}}
	s, _ := NewSelector(RoundRobin, conns)
	err := s.Close()
	if !errors.Is(err, errBoom) || !errors.Is(err, errBust) {
		t.Fatalf("Close() error = %v, want both close errors matchable", err)
	}
	if !strings.Contains(err.Error(), "close connection 1: boom") {
		t.Errorf("Close() error = %q, want connection index", err)
	}
	if err := (&Selector[*mockConn]{}).Close(); err != nil {
		t.Errorf("empty pool Close() = %v", err)
	}
	for i, c := range conns {
		if !c.closed {
			t.Errorf("connection %d not closed", i)
		}
	}
}
