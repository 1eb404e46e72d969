package gate

import (
	"testing"
	"time"
)

func TestCompilePlanRamp(t *testing.T) {
	plan := compilePlan([]Pattern{{
		Type:     PatternRamp,
		From:     10,
		To:       110,
		Duration: 10 * time.Second,
	}})
	if plan == nil {
		t.Fatalf("expected plan")
	}
	if plan.duration != 10*time.Second {
		t.Fatalf("duration = %s", plan.duration)
	}
	rate, ok := plan.rateAt(5 * time.Second)
	if !ok {
		t.Fatalf("rateAt returned false")
	}
	if rate < 60 || rate > 61 {
		t.Fatalf("unexpected ramp rate: %f", rate)
	}
}

func TestCompilePlanStepAndSpike(t *testing.T) {
	plan := compilePlan([]Pattern{
		{
			Type: PatternStep,
			Steps: []Step{
				{Rate: 50, Duration: time.Second},
				{Rate: 100, Duration: 2 * time.Second},
			},
		},
		{
			Type:     PatternSpike,
			Rate:     500,
			Duration: 500 * time.Millisecond,
		},
	})
	if plan == nil {
		t.Fatalf("expected plan")
	}
	rate, ok := plan.rateAt(1500 * time.Millisecond)
	if !ok || rate != 100 {
		t.Fatalf("rateAt(1.5s) = %f, %v; want 100", rate, ok)
	}
	rate, ok = plan.rateAt(3200 * time.Millisecond)
	if !ok || rate != 500 {
		t.Fatalf("rateAt(3.2s) = %f, %v; want spike rate 500", rate, ok)
	}
	if got := Duration([]Pattern{{Type: PatternSpike, Rate: 1, Duration: time.Second}}); got != time.Second {
		t.Fatalf("Duration() = %s", got)
	}
}

func TestPlanRateAtAfterEnd(t *testing.T) {
	plan := compilePlan([]Pattern{{Type: PatternSpike, Rate: 100, Duration: time.Second}})
	if plan == nil {
		t.Fatalf("plan nil")
	}
	if _, ok := plan.rateAt(2 * time.Second); ok {
		t.Fatalf("expected no rate after end")
	}
}

func TestCompilePlanEmpty(t *testing.T) {
	if compilePlan(nil) != nil {
		t.Fatal("expected nil plan for no patterns")
	}
	if compilePlan([]Pattern{{Type: PatternRamp}}) != nil {
		t.Fatal("expected nil plan when every segment has zero duration")
	}
}

func TestValidatePatterns(t *testing.T) {
	issues := Validate([]Pattern{
		{Type: PatternRamp, From: -1, Duration: 0},
		{Type: PatternStep},
		{Type: PatternSpike},
		{Type: "wave"},
		{},
	})
	if len(issues) != 7 {
		t.Fatalf("Validate() returned %d issues, want 7: %v", len(issues), issues)
	}
	if got := Validate([]Pattern{{Type: "RAMP", From: 1, To: 2, Duration: time.Second}}); len(got) != 0 {
		t.Fatalf("Validate() unexpected issues: %v", got)
	}
}
