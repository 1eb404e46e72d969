package stat

import (
	"sort"
	"time"
)

// Summary is a flat, serializable view of a tracker. Durations are in
// milliseconds. StdDev is the sample standard deviation of the per-interval
// averages.
type Summary struct {
	Name       string        `json:"name" yaml:"name"`
	Kind       Kind          `json:"kind" yaml:"kind"`
	OwnerID    string        `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Intervals  int           `json:"intervals" yaml:"intervals"`
	Duration   time.Duration `json:"-" yaml:"-"`
	DurationMs float64       `json:"duration_ms" yaml:"duration_ms"`

	Count  int64   `json:"count" yaml:"count"`
	Rate   float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Sum    float64 `json:"sum,omitempty" yaml:"sum,omitempty"`
	Avg    float64 `json:"avg,omitempty" yaml:"avg,omitempty"`
	Min    float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    float64 `json:"max,omitempty" yaml:"max,omitempty"`
	P50    float64 `json:"p50,omitempty" yaml:"p50,omitempty"`
	P90    float64 `json:"p90,omitempty" yaml:"p90,omitempty"`
	P95    float64 `json:"p95,omitempty" yaml:"p95,omitempty"`
	P99    float64 `json:"p99,omitempty" yaml:"p99,omitempty"`
	StdDev float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`
	Last   float64 `json:"last,omitempty" yaml:"last,omitempty"`

	Categories []Category `json:"categories,omitempty" yaml:"categories,omitempty"`
	// Series holds one headline value per interval.
	Series []float64 `json:"series,omitempty" yaml:"series,omitempty"`
}

// Category is one label of a categorical tracker.
type Category struct {
	Label   string  `json:"label" yaml:"label"`
	Count   int64   `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// FlattenCategories converts a label map into rows sorted by descending count,
// then by label for stability.
func FlattenCategories(counts map[string]int64) []Category {
	if len(counts) == 0 {
		return nil
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	rows := make([]Category, 0, len(counts))
	for label, n := range counts {
		row := Category{Label: label, Count: n}
		if total > 0 {
			row.Percent = float64(n) * 100 / float64(total)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

func (s *series[B]) baseSummary(kind Kind) Summary {
	d := s.durationLocked()
	return Summary{
		Name:       s.id.Name,
		Kind:       kind,
		OwnerID:    s.id.OwnerID,
		Intervals:  len(s.buckets),
		Duration:   d,
		DurationMs: ms(d),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func perSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
