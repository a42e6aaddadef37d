package results

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vexxhost/tempest-pushgateway/metrics"
	"github.com/vexxhost/tempest-pushgateway/subunit"
	"github.com/vexxhost/tempest-pushgateway/types"
)

// Translator records completed tests into a metrics registry.
type Translator struct {
	log         log.Logger
	registry    *metrics.Registry
	diagnostics io.Writer
	completed   []*types.TestOutcome
}

// NewTranslator creates a translator writing into reg. Details of every
// test that did not succeed are printed to diagnostics when it is non-nil.
func NewTranslator(logger log.Logger, reg *metrics.Registry, diagnostics io.Writer) *Translator {
	return &Translator{
		log:         logger,
		registry:    reg,
		diagnostics: diagnostics,
	}
}

// Handle dispatches a single lifecycle event. Only EventTestStop changes
// any state.
func (t *Translator) Handle(ev types.Event) error {
	switch ev.Kind {
	case types.EventTestStop:
		return t.testStop(ev.Test)
	case types.EventRunStart:
		t.log.Debug("result stream started")
	case types.EventRunStop:
		t.log.Debug("result stream finished", "tests", len(t.completed))
	}
	return nil
}

func (t *Translator) testStop(rec *types.TestOutcome) error {
	if rec.Outcome != types.OutcomeSuccess && t.diagnostics != nil {
		writeDetails(t.diagnostics, rec)
	}
	if err := t.registry.Record(rec); err != nil {
		return err
	}
	t.log.Info("test finished", "test", rec.ID, "result", rec.Outcome, "duration", rec.Duration())
	t.completed = append(t.completed, rec)
	return nil
}

// Results returns the completed tests in completion order.
func (t *Translator) Results() []*types.TestOutcome {
	return t.completed
}

func writeDetails(w io.Writer, rec *types.TestOutcome) {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s: %s (%s)\n", strings.ToUpper(string(rec.Outcome)), rec.ID, rec.Label)
	fmt.Fprintf(&b, "status: %q route: %q tags: %v\n", rec.Status, rec.RouteCode, rec.Tags)
	fmt.Fprintf(&b, "start: %s end: %s\n", formatTime(rec.Start), formatTime(rec.End))
	for _, a := range rec.Attachments {
		fmt.Fprintf(&b, "--- %s (%s)\n", a.Name, a.MimeType)
		content := stripansi.Strip(string(a.Content))
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
	}
	_, _ = io.WriteString(w, b.String())
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "<none>"
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// Options controls how a result stream is translated.
type Options struct {
	// Diagnostics receives details of tests that did not succeed.
	Diagnostics io.Writer
	// Passthrough, when set, receives bytes found between packets instead
	// of failing the decode.
	Passthrough func([]byte)
}

// Translate decodes a subunit v2 stream and records every completed test in
// reg. Decode and record errors abort the translation.
func Translate(r io.Reader, reg *metrics.Registry, logger log.Logger, opts Options) ([]*types.TestOutcome, error) {
	translator := NewTranslator(logger, reg, opts.Diagnostics)
	collector := NewCollector(translator.Handle)

	var readerOpts []subunit.ReaderOption
	if opts.Passthrough != nil {
		readerOpts = append(readerOpts, subunit.WithPassthrough(opts.Passthrough))
	}
	reader := subunit.NewReader(r, readerOpts...)

	if err := collector.Start(); err != nil {
		return nil, err
	}
	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode result stream: %w", err)
		}
		if err := collector.Add(p); err != nil {
			return nil, fmt.Errorf("failed to record result: %w", err)
		}
	}
	if err := collector.Finish(); err != nil {
		return nil, fmt.Errorf("failed to record result: %w", err)
	}
	return translator.Results(), nil
}
