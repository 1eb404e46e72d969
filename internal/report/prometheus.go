package report

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink exposes the latest interval value of every statistic as a
// gauge and counts finished statistics.
type PrometheusSink struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	done     *prometheus.CounterVec
	batches  prometheus.Counter

	mu     sync.Mutex
	server *http.Server
}

func NewPrometheusSink(registry *prometheus.Registry) (*PrometheusSink, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &PrometheusSink{
		registry: registry,
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "loadcore",
			Name:      "stat_value",
			Help:      "Most recent interval value reported for a statistic.",
		}, []string{"job", "owner", "sub_owner", "stat"}),
		done: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loadcore",
			Name:      "stat_done_total",
			Help:      "Statistics whose collection has finished.",
		}, []string{"job", "stat"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loadcore",
			Name:      "report_batches_total",
			Help:      "Real-time batches received by the sink.",
		}),
	}
	for _, c := range []prometheus.Collector{s.values, s.done, s.batches} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) Send(_ context.Context, batch []Snapshot) error {
	s.batches.Inc()
	for _, snap := range batch {
		switch snap.Op {
		case OpRegister:
			s.values.WithLabelValues(snap.JobID, snap.OwnerID, snap.SubOwnerID, snap.Stat).Set(0)
		case OpAdd, OpAverage:
			s.values.WithLabelValues(snap.JobID, snap.OwnerID, snap.SubOwnerID, snap.Stat).Set(snap.Value)
		case OpDone:
			s.done.WithLabelValues(snap.JobID, snap.Stat).Inc()
		}
	}
	return nil
}

// Handler serves the sink's registry.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until Close. It returns once
// the listener is bound.
func (s *PrometheusSink) Serve(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return ln.Addr(), nil
}

func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
