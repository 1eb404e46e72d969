package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/loadcore/internal/stat"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "valid p95 duration threshold",
			input: "request_duration:p95 < 500",
			want: Threshold{
				Metric:    "request_duration",
				Aggregate: "p95",
				Operator:  "<",
				Value:     500,
				Raw:       "request_duration:p95 < 500",
			},
		},
		{
			name:  "valid counter rate with >",
			input: "requests_completed:rate > 100",
			want: Threshold{
				Metric:    "requests_completed",
				Aggregate: "rate",
				Operator:  ">",
				Value:     100,
				Raw:       "requests_completed:rate > 100",
			},
		},
		{
			name:  "valid count with <=",
			input: "modifications_exceeding_threshold:count <= 10",
			want: Threshold{
				Metric:    "modifications_exceeding_threshold",
				Aggregate: "count",
				Operator:  "<=",
				Value:     10,
				Raw:       "modifications_exceeding_threshold:count <= 10",
			},
		},
		{
			name:      "empty string",
			input:     "",
			wantError: true,
		},
		{
			name:      "invalid format - missing operator",
			input:     "request_duration:p95 500",
			wantError: true,
		},
		{
			name:      "invalid aggregate",
			input:     "request_duration:p85 < 500",
			wantError: true,
		},
		{
			name:      "invalid operator",
			input:     "request_duration:p95 << 500",
			wantError: true,
		},
		{
			name:      "invalid value - not a number",
			input:     "request_duration:p95 < abc",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple([]string{"request_duration:p99 < 1000", "requests_completed:count > 1"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ParseMultiple() returned %d thresholds, want 2", len(got))
	}

	_, err = ParseMultiple([]string{"request_duration:p99 < 1000", "bogus", "x:p1 < 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error should name every bad threshold, got %v", err)
	}

	if got, err := ParseMultiple(nil); got != nil || err != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func TestMetricName(t *testing.T) {
	tests := map[string]string{
		"Request Duration":                  "request_duration",
		"Modify DN Operations Completed":    "modify_dn_operations_completed",
		"Modifications Exceeding Threshold": "modifications_exceeding_threshold",
		"  Result  Codes ":                  "result_codes",
		"p99-latency (ms)":                  "p99_latency_ms",
	}
	for in, want := range tests {
		if got := MetricName(in); got != want {
			t.Errorf("MetricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func sampleSummaries() []stat.Summary {
	return []stat.Summary{
		{Name: "Requests Completed", Kind: stat.KindCounter, Count: 1000, Rate: 100},
		{Name: "Request Duration", Kind: stat.KindDuration, Count: 1000, Avg: 100, Min: 10, Max: 500, P50: 80, P90: 200, P95: 300, P99: 400},
		{Name: "Response Size", Kind: stat.KindValue, Count: 1000, Avg: 2048, Min: 512, Max: 4096},
		{Name: "Result Codes", Kind: stat.KindCategorical, Count: 1000},
		{Name: "Entries Renamed", Kind: stat.KindAccumulator, Count: 50},
		{Name: "Requests Exceeding Threshold", Kind: stat.KindCounter, Count: 20, Rate: 2},
	}
}

func TestEvaluator(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"request_duration:p99 < 500",
				"requests_exceeding_threshold:count < 50",
				"requests_completed:rate > 50",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"request_duration:p99 < 300",
				"requests_exceeding_threshold:rate < 1",
				"requests_completed:rate > 50",
			},
			wantPass: []bool{false, false, true},
		},
		{
			name: "duration percentiles",
			thresholds: []string{
				"request_duration:p50 < 100",
				"request_duration:p90 < 250",
				"request_duration:p95 <= 300",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "value and other shapes",
			thresholds: []string{
				"response_size:max <= 4096",
				"response_size:avg > 1000",
				"result_codes:count == 1000",
				"entries_renamed:count >= 50",
			},
			wantPass: []bool{true, true, true, true},
		},
		{
			name: "unsupported aggregate for shape fails",
			thresholds: []string{
				"result_codes:p99 < 10",
				"entries_renamed:rate > 0",
			},
			wantPass: []bool{false, false},
		},
		{
			name:       "unknown tracker fails",
			thresholds: []string{"missing_tracker:count > 0"},
			wantPass:   []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(sampleSummaries())

			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f, %s)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual, result.Message)
				}
			}
		})
	}
}

func TestFailed(t *testing.T) {
	results := []Result{{Pass: true}, {Pass: false}, {Pass: false}}
	if got := Failed(results); got != 2 {
		t.Errorf("Failed() = %d, want 2", got)
	}
	if NewEvaluator(nil).Evaluate(sampleSummaries()) != nil {
		t.Error("expected nil results with no thresholds")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"greater than true", 150, ">", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
