package pushgateway

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/tempest-pushgateway/types"
)

// createSampleReport returns a report with one result per outcome
func createSampleReport() *Report {
	report := &Report{RunID: "sample-run", Duration: 42 * time.Second, ExitCode: 1}
	for i, o := range types.Outcomes {
		report.Results = append(report.Results, &types.TestOutcome{
			ID:      "tempest.api.sample.test_" + string(o),
			Start:   ts(float64(i * 10)),
			End:     ts(float64(i*10) + 1.5),
			Outcome: o,
		})
	}
	return report
}

func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)

	require.NoError(t, formatter.FormatResults(createSampleReport()))

	// headers and footers are upper-cased by the table style
	rendered := strings.ToLower(out.String())
	assert.Contains(t, rendered, "tempest results (sample-run, 42.0s)")
	assert.Contains(t, rendered, "tempest.api.sample.test_success")
	assert.Contains(t, rendered, "✓ success")
	assert.Contains(t, rendered, "✗ failure")
	assert.Contains(t, rendered, "- skip")
	assert.Contains(t, rendered, "1.5s")
	assert.Contains(t, rendered, "1 passed")
	assert.Contains(t, rendered, "tempest exit 1")
}

func TestConsoleResultFormatter_FormatResults_EmptyReport(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)

	require.NoError(t, formatter.FormatResults(&Report{RunID: "empty-run"}))
	assert.Contains(t, out.String(), "no results")
}

func TestReport(t *testing.T) {
	report := createSampleReport()
	assert.False(t, report.Passed())
	for _, o := range types.Outcomes {
		assert.Equal(t, 1, report.Count(o), o)
	}

	passing := &Report{Results: []*types.TestOutcome{
		{ID: "a", Outcome: types.OutcomeSuccess},
		{ID: "b", Outcome: types.OutcomeSkip},
		{ID: "c", Outcome: types.OutcomeExpectedFailure},
	}}
	assert.True(t, passing.Passed())
	assert.Contains(t, passing.String(), "3 tests (1 success, 1 skip, 1 expectedfailure)")
}

func TestGetResultString(t *testing.T) {
	tests := []struct {
		outcome types.Outcome
		want    string
	}{
		{types.OutcomeSuccess, "✓ success"},
		{types.OutcomeExpectedFailure, "✓ expectedfailure"},
		{types.OutcomeSkip, "- skip"},
		{types.OutcomeFailure, "✗ failure"},
		{types.OutcomeError, "✗ error"},
		{types.OutcomeUnexpectedSuccess, "✗ unexpectedsucces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getResultString(tt.outcome))
	}
}
