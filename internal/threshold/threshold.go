package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/torosent/loadcore/internal/stat"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // snake_cased tracker name, e.g. "request_duration"
	Aggregate string  // e.g. "p95", "avg", "count", "rate"
	Operator  string  // e.g. "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Expr      string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against aggregated tracker summaries.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summaries.
func (e *Evaluator) Evaluate(summaries []stat.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	byMetric := make(map[string]stat.Summary, len(summaries))
	for _, s := range summaries {
		byMetric[MetricName(s.Name)] = s
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, byMetric))
	}
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func (e *Evaluator) evaluateOne(t Threshold, byMetric map[string]stat.Summary) Result {
	summary, ok := byMetric[t.Metric]
	if !ok {
		return Result{Threshold: t, Expr: t.Raw, Message: fmt.Sprintf("error: no tracker named %q", t.Metric)}
	}
	actual, err := extractValue(t.Aggregate, summary)
	if err != nil {
		return Result{Threshold: t, Expr: t.Raw, Message: fmt.Sprintf("error: %v", err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var pattern = regexp.MustCompile(`^([a-z0-9_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "request_duration:p95 < 500"            (duration percentile in ms)
// - "request_duration:avg < 200"            (average duration in ms)
// - "requests_completed:rate > 100"         (counter per second)
// - "requests_exceeding_threshold:count < 10"
// - "response_size:max <= 4096"             (value tracker)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'request_duration:p95 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: p50, p90, p95, p99, avg, min, max, rate, count)", aggregate)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

// MetricName converts a tracker display name into the metric used in
// thresholds: "Request Duration" becomes "request_duration".
func MetricName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func isValidAggregate(aggregate string) bool {
	valid := []string{"p50", "p90", "p95", "p99", "avg", "min", "max", "rate", "count"}
	for _, v := range valid {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractValue(aggregate string, s stat.Summary) (float64, error) {
	if aggregate == "count" {
		return float64(s.Count), nil
	}
	switch s.Kind {
	case stat.KindCounter:
		if aggregate == "rate" {
			return s.Rate, nil
		}
	case stat.KindDuration:
		switch aggregate {
		case "avg":
			return s.Avg, nil
		case "min":
			return s.Min, nil
		case "max":
			return s.Max, nil
		case "p50":
			return s.P50, nil
		case "p90":
			return s.P90, nil
		case "p95":
			return s.P95, nil
		case "p99":
			return s.P99, nil
		}
	case stat.KindValue:
		switch aggregate {
		case "avg":
			return s.Avg, nil
		case "min":
			return s.Min, nil
		case "max":
			return s.Max, nil
		}
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s tracker %q", aggregate, s.Kind, s.Name)
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
