package output

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/torosent/loadcore/internal/report"
)

// ConsoleSink renders real-time snapshots as a single refreshing status line.
// Per-thread values for the same statistic are combined: added values are
// summed and averaged values are averaged.
type ConsoleSink struct {
	writer io.Writer

	mu     sync.Mutex
	latest map[string]*consoleStat
}

type consoleStat struct {
	op     report.Op
	values map[string]float64 // by owner and sub owner
	done   bool
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{writer: w, latest: make(map[string]*consoleStat)}
}

func (c *ConsoleSink) Send(_ context.Context, batch []report.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snap := range batch {
		st, ok := c.latest[snap.Stat]
		if !ok {
			st = &consoleStat{values: make(map[string]float64)}
			c.latest[snap.Stat] = st
		}
		key := snap.OwnerID + "/" + snap.SubOwnerID
		switch snap.Op {
		case report.OpAdd, report.OpAverage:
			st.op = snap.Op
			st.values[key] = snap.Value
		case report.OpDone:
			st.done = true
		}
	}

	line := c.lineLocked()
	if line == "" {
		return nil
	}
	_, err := fmt.Fprint(c.writer, "\r"+line)
	return err
}

func (c *ConsoleSink) lineLocked() string {
	names := make([]string, 0, len(c.latest))
	for name, st := range c.latest {
		if len(st.values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		st := c.latest[name]
		var sum float64
		for _, v := range st.values {
			sum += v
		}
		value := sum
		if st.op == report.OpAverage {
			value = sum / float64(len(st.values))
		}
		part := fmt.Sprintf("%s: %.1f", name, value)
		if st.done {
			part += " (done)"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " | ")
}

func (c *ConsoleSink) Close() error {
	_, err := fmt.Fprintln(c.writer)
	return err
}
