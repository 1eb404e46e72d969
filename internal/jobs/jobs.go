// Package jobs holds helpers shared by the built-in jobs.
package jobs

import (
	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
)

// ResultCodesName is the categorical statistic every built-in job records.
const ResultCodesName = "Result Codes"

// ClassifyResultCodes returns CompletedWithErrors when any aggregated result
// code label fails ok, and Success otherwise.
func ClassifyResultCodes(trackers []stat.Tracker, ok func(label string) bool) runner.Status {
	for _, tr := range trackers {
		if tr.Identity().Name != ResultCodesName {
			continue
		}
		codes, isCategorical := tr.(*stat.Categorical)
		if !isCategorical {
			continue
		}
		for label, n := range codes.Totals() {
			if n > 0 && !ok(label) {
				return runner.CompletedWithErrors
			}
		}
	}
	return runner.Success
}
