package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/threshold"
)

// Report is the final, serializable outcome of one run.
type Report struct {
	JobID      string             `json:"job_id" yaml:"job_id"`
	Job        string             `json:"job" yaml:"job"`
	Status     string             `json:"status" yaml:"status"`
	StartTime  time.Time          `json:"start_time" yaml:"start_time"`
	DurationMs float64            `json:"duration_ms" yaml:"duration_ms"`
	Threads    int                `json:"threads" yaml:"threads"`
	Trackers   []stat.Summary     `json:"trackers" yaml:"trackers"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Errors     []string           `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Build converts a run result into a Report.
func Build(job string, res runner.Result, thresholds []threshold.Result) Report {
	rep := Report{
		JobID:      res.JobID,
		Job:        job,
		Status:     res.Status.String(),
		StartTime:  res.StartTime,
		DurationMs: float64(res.Duration) / float64(time.Millisecond),
		Threads:    len(res.PerThread),
		Trackers:   Summaries(res.Trackers),
		Thresholds: thresholds,
	}
	for _, err := range res.Errors {
		rep.Errors = append(rep.Errors, err.Error())
	}
	return rep
}

// Summaries returns the summary of every tracker, in order.
func Summaries(trackers []stat.Tracker) []stat.Summary {
	out := make([]stat.Summary, 0, len(trackers))
	for _, t := range trackers {
		out = append(out, t.Summary())
	}
	return out
}

// Write renders rep in the requested format: text (default), json or yaml.
func Write(w io.Writer, format string, rep Report) error {
	switch strings.ToLower(format) {
	case "", "text":
		PrintReport(w, rep)
		return nil
	case "json":
		return PrintJSONReport(w, rep)
	case "yaml", "yml":
		return PrintYAMLReport(w, rep)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, rep Report) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Job:               %s (%s)\n", rep.Job, rep.JobID)
	fmt.Fprintf(w, "Status:            %s\n", rep.Status)
	fmt.Fprintf(w, "Threads:           %d\n", rep.Threads)
	fmt.Fprintf(w, "Duration:          %s\n", time.Duration(rep.DurationMs*float64(time.Millisecond)).Round(time.Millisecond))

	for _, s := range rep.Trackers {
		fmt.Fprintf(w, "\n%s (%s, %d intervals):\n", s.Name, s.Kind, s.Intervals)
		switch s.Kind {
		case stat.KindCounter:
			fmt.Fprintf(w, "  Count:           %d\n", s.Count)
			fmt.Fprintf(w, "  Per second:      %.2f\n", s.Rate)
		case stat.KindDuration:
			fmt.Fprintf(w, "  Count:           %d\n", s.Count)
			fmt.Fprintf(w, "  Min:             %.3fms\n", s.Min)
			fmt.Fprintf(w, "  Max:             %.3fms\n", s.Max)
			fmt.Fprintf(w, "  Mean:            %.3fms\n", s.Avg)
			fmt.Fprintf(w, "  P50:             %.3fms\n", s.P50)
			fmt.Fprintf(w, "  P90:             %.3fms\n", s.P90)
			fmt.Fprintf(w, "  P95:             %.3fms\n", s.P95)
			fmt.Fprintf(w, "  P99:             %.3fms\n", s.P99)
			fmt.Fprintf(w, "  Std dev:         %.3fms\n", s.StdDev)
		case stat.KindValue:
			fmt.Fprintf(w, "  Count:           %d\n", s.Count)
			fmt.Fprintf(w, "  Min:             %.2f\n", s.Min)
			fmt.Fprintf(w, "  Max:             %.2f\n", s.Max)
			fmt.Fprintf(w, "  Mean:            %.2f\n", s.Avg)
		case stat.KindAccumulator:
			fmt.Fprintf(w, "  Total:           %d\n", s.Count)
		case stat.KindCategorical:
			writeCategories(w, s.Categories, "  ")
		}
	}

	if len(rep.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range rep.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
	if len(rep.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, rep Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}

func writeCategories(w io.Writer, rows []stat.Category, indent string) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s: %d (%.1f%%)\n", indent, row.Label, row.Count, row.Percent)
	}
}
