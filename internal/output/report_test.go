package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/threshold"
)

func sampleResult() runner.Result {
	clock := stat.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	f := stat.NewFactory(stat.WithClock(clock))
	id := func(name string) stat.Identity {
		return stat.Identity{OwnerID: "client-1", Name: name, Interval: time.Second}
	}

	completed := f.Counter(id("Requests Completed"))
	duration := f.Duration(id("Request Duration"))
	codes := f.Categorical(id("Result Codes"))
	for _, t := range []stat.Tracker{completed, duration, codes} {
		t.Start()
	}
	completed.Add(10)
	duration.Record(20 * time.Millisecond)
	codes.Add("200 OK", 9)
	codes.Record("503 Service Unavailable")
	clock.Advance(2 * time.Second)
	for _, t := range []stat.Tracker{completed, duration, codes} {
		t.Stop()
	}

	return runner.Result{
		JobID:     "job-1",
		Status:    runner.CompletedWithErrors,
		Trackers:  []stat.Tracker{completed, duration, codes},
		PerThread: make([][]stat.Tracker, 2),
		Errors:    []error{errors.New("thread 1: finalize: timeout")},
		Duration:  2 * time.Second,
	}
}

func TestPrintReportText(t *testing.T) {
	rep := Build("httprate", sampleResult(), []threshold.Result{{Message: "✓ request_duration:p99 < 50: 20.00 < 50.00", Pass: true}})

	var buf bytes.Buffer
	if err := Write(&buf, "", rep); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Status:            completed_with_errors",
		"Threads:           2",
		"Requests Completed (counter",
		"Per second:      5.00",
		"P99:",
		"Std dev:",
		"200 OK: 9 (90.0%)",
		"Thresholds:",
		"finalize: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "json", Build("httprate", sampleResult(), nil)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded.Status != "completed_with_errors" || len(decoded.Trackers) != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Trackers[0].Count != 10 {
		t.Errorf("counter count = %d, want 10", decoded.Trackers[0].Count)
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "yaml", Build("httprate", sampleResult(), nil)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if decoded["job_id"] != "job-1" {
		t.Errorf("job_id = %v", decoded["job_id"])
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "html", Report{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
