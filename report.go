package pushgateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexxhost/tempest-pushgateway/types"
)

// Report summarizes one run.
type Report struct {
	RunID    string
	Results  []*types.TestOutcome
	ExitCode int // tempest's exit status
	Duration time.Duration
}

// Count returns the number of results with outcome o.
func (r *Report) Count(o types.Outcome) int {
	n := 0
	for _, rec := range r.Results {
		if rec.Outcome == o {
			n++
		}
	}
	return n
}

// Passed reports whether no test failed, errored or unexpectedly succeeded.
func (r *Report) Passed() bool {
	for _, rec := range r.Results {
		switch rec.Outcome {
		case types.OutcomeFailure, types.OutcomeError, types.OutcomeUnexpectedSuccess:
			return false
		}
	}
	return true
}

func (r *Report) String() string {
	var parts []string
	for _, o := range types.Outcomes {
		if n := r.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	counts := "no results"
	if len(parts) > 0 {
		counts = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("run %s: %d tests (%s), tempest exit %d, took %s",
		r.RunID, len(r.Results), counts, r.ExitCode, formatDuration(r.Duration))
}
