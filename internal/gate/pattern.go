package gate

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PatternType names a load pattern shape.
type PatternType string

const (
	PatternRamp  PatternType = "ramp"
	PatternStep  PatternType = "step"
	PatternSpike PatternType = "spike"
)

// Pattern is one segment of a time-varying rate plan. Rates are operations
// per second across the job.
type Pattern struct {
	Type     PatternType
	Duration time.Duration
	From     float64 // ramp start
	To       float64 // ramp end
	Rate     float64 // spike rate
	Steps    []Step
}

// Step holds one rate for a fixed duration.
type Step struct {
	Rate     float64
	Duration time.Duration
}

// Validate returns one message per problem found in patterns.
func Validate(patterns []Pattern) []string {
	var issues []string
	for idx, p := range patterns {
		switch PatternType(strings.ToLower(string(p.Type))) {
		case PatternRamp:
			if p.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("patterns[%d]: duration must be > 0 for ramp", idx))
			}
			if p.From < 0 || p.To < 0 {
				issues = append(issues, fmt.Sprintf("patterns[%d]: from and to must be >= 0", idx))
			}
		case PatternStep:
			if len(p.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("patterns[%d]: steps are required for step pattern", idx))
			}
			for stepIdx, step := range p.Steps {
				if step.Rate < 0 {
					issues = append(issues, fmt.Sprintf("patterns[%d].steps[%d]: rate must be >= 0", idx, stepIdx))
				}
				if step.Duration <= 0 {
					issues = append(issues, fmt.Sprintf("patterns[%d].steps[%d]: duration must be > 0", idx, stepIdx))
				}
			}
		case PatternSpike:
			if p.Rate <= 0 {
				issues = append(issues, fmt.Sprintf("patterns[%d]: rate must be > 0 for spike", idx))
			}
			if p.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("patterns[%d]: duration must be > 0 for spike", idx))
			}
		case "":
			issues = append(issues, fmt.Sprintf("patterns[%d]: type is required", idx))
		default:
			issues = append(issues, fmt.Sprintf("patterns[%d]: unsupported type %q", idx, p.Type))
		}
	}
	return issues
}

type plan struct {
	segments []segment
	duration time.Duration
}

type segment struct {
	start    time.Duration
	duration time.Duration
	from     float64
	to       float64
}

func compilePlan(patterns []Pattern) *plan {
	if len(patterns) == 0 {
		return nil
	}

	p := &plan{}
	var offset time.Duration
	add := func(d time.Duration, from, to float64) {
		if d <= 0 {
			return
		}
		p.segments = append(p.segments, segment{start: offset, duration: d, from: from, to: to})
		offset += d
	}
	for _, pattern := range patterns {
		switch PatternType(strings.ToLower(string(pattern.Type))) {
		case PatternRamp:
			add(pattern.Duration, pattern.From, pattern.To)
		case PatternStep:
			for _, step := range pattern.Steps {
				add(step.Duration, step.Rate, step.Rate)
			}
		case PatternSpike:
			add(pattern.Duration, pattern.Rate, pattern.Rate)
		}
	}

	if len(p.segments) == 0 {
		return nil
	}
	p.duration = offset
	return p
}

// rateAt returns the planned rate after elapsed. ok is false past the plan's end.
func (p *plan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start || elapsed >= seg.start+seg.duration {
			continue
		}
		if seg.from == seg.to {
			return seg.from, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		return seg.from + (seg.to-seg.from)*math.Min(math.Max(progress, 0), 1), true
	}
	return 0, false
}

// Duration returns the total length of the plan compiled from patterns.
func Duration(patterns []Pattern) time.Duration {
	p := compilePlan(patterns)
	if p == nil {
		return 0
	}
	return p.duration
}
