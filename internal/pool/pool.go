// Package pool selects which connection of a thread's pool receives the next
// operation.
package pool

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Policy names a connection selection strategy.
type Policy string

const (
	// RoundRobin rotates strictly through the pool.
	RoundRobin Policy = "round_robin"
	// FewestOutstanding picks the connection with the fewest active operations.
	FewestOutstanding Policy = "fewest_outstanding"
)

// ParsePolicy accepts the configured spelling of a policy. Empty means RoundRobin.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "", string(RoundRobin):
		return RoundRobin, nil
	case string(FewestOutstanding), "fewest_operations":
		return FewestOutstanding, nil
	default:
		return "", fmt.Errorf("unsupported connection selection policy %q (supported: round_robin, fewest_outstanding)", s)
	}
}

// Outstanding is implemented by connections that report in-flight operations.
type Outstanding interface {
	ActiveOperations() int
}

// Selector hands out connections according to a Policy.
type Selector[T Outstanding] struct {
	mu     sync.Mutex
	conns  []T
	policy Policy
	next   int
}

// NewSelector builds a selector over a non-empty set of connections.
func NewSelector[T Outstanding](policy Policy, conns []T) (*Selector[T], error) {
	if len(conns) == 0 {
		return nil, errors.New("pool: no connections to select from")
	}
	if policy == "" {
		policy = RoundRobin
	}
	if policy != RoundRobin && policy != FewestOutstanding {
		return nil, fmt.Errorf("pool: unsupported policy %q", policy)
	}
	return &Selector[T]{conns: append([]T(nil), conns...), policy: policy}, nil
}

// Next returns the chosen connection and its index.
func (s *Selector[T]) Next() (int, T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy == FewestOutstanding {
		return s.fewest()
	}
	i := s.next
	s.next = (s.next + 1) % len(s.conns)
	return i, s.conns[i]
}

// fewest scans for the least busy connection, returning the first idle one found.
func (s *Selector[T]) fewest() (int, T) {
	best := 0
	bestActive := s.conns[0].ActiveOperations()
	if bestActive == 0 {
		return 0, s.conns[0]
	}
	for i := 1; i < len(s.conns); i++ {
		active := s.conns[i].ActiveOperations()
		if active == 0 {
			return i, s.conns[i]
		}
		if active < bestActive {
			best, bestActive = i, active
		}
	}
	return best, s.conns[best]
}

func (s *Selector[T]) Policy() Policy { return s.policy }

func (s *Selector[T]) Len() int { return len(s.conns) }

// All returns the connections in pool order.
func (s *Selector[T]) All() []T {
	return append([]T(nil), s.conns...)
}

// Close closes every connection that implements io.Closer and joins their
// errors, each tagged with the connection index.
func (s *Selector[T]) Close() error {
	var errs []error
	for i, c := range s.conns {
		closer, ok := any(c).(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
