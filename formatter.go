package pushgateway

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/vexxhost/tempest-pushgateway/types"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(report *Report) error
}

// ConsoleResultFormatter renders results as a table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to out, or stdout
// when out is nil.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(report *Report) error {
	f.logger.Debug("printing results", "tests", len(report.Results))
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Tempest Results (%s, %s)", report.RunID, formatDuration(report.Duration)))

	t.AppendHeader(table.Row{"Test", "Duration", "Result"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, rec := range report.Results {
		t.AppendRow(table.Row{
			rec.ID,
			formatDuration(rec.Duration()),
			getResultString(rec.Outcome),
		})
	}

	if report.Passed() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	var passed int
	for _, rec := range report.Results {
		if rec.Outcome == types.OutcomeSuccess {
			passed++
		}
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("TOTAL %d", len(report.Results)),
		formatDuration(report.Duration),
		fmt.Sprintf("%d passed", passed),
	})

	t.Render()
	_, err := fmt.Fprintln(f.out, report.String())
	return err
}

// getResultString returns a marked string representing the test outcome
func getResultString(o types.Outcome) string {
	switch o {
	case types.OutcomeSuccess, types.OutcomeExpectedFailure:
		return "✓ " + string(o)
	case types.OutcomeSkip:
		return "- " + string(o)
	default:
		return "✗ " + string(o)
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
