package results

import (
	"fmt"

	"github.com/vexxhost/tempest-pushgateway/subunit"
	"github.com/vexxhost/tempest-pushgateway/types"
)

type testKey struct {
	id    string
	route string
}

type inProgress struct {
	rec    *types.TestOutcome
	status subunit.Status
}

// Collector folds subunit packets into lifecycle events. Packets for the
// same test id and route code are merged until one carries a final status;
// tests still open when the stream ends complete with an error outcome.
type Collector struct {
	emit func(types.Event) error

	tests map[testKey]*inProgress
	order []testKey
}

func NewCollector(emit func(types.Event) error) *Collector {
	return &Collector{
		emit:  emit,
		tests: make(map[testKey]*inProgress),
	}
}

// Start emits EventRunStart.
func (c *Collector) Start() error {
	return c.emit(types.Event{Kind: types.EventRunStart})
}

// Add merges one packet. Packets without a test id carry run level data and
// are ignored.
func (c *Collector) Add(p *subunit.Packet) error {
	if !p.HasTestID() {
		return nil
	}
	key := testKey{id: p.TestID, route: p.RouteCode}

	t, ok := c.tests[key]
	if !ok {
		t = &inProgress{rec: &types.TestOutcome{ID: p.TestID, RouteCode: p.RouteCode}}
		c.tests[key] = t
		c.order = append(c.order, key)
		if err := c.emit(types.Event{Kind: types.EventTestStart, Test: &types.TestOutcome{ID: p.TestID}}); err != nil {
			return err
		}
	}

	if p.Status != subunit.StatusUndefined {
		t.status = p.Status
	}
	if p.HasTimestamp() {
		if t.rec.Start.IsZero() {
			t.rec.Start = p.Timestamp
		}
		t.rec.End = p.Timestamp
	}
	if p.HasTags() {
		t.rec.Tags = p.Tags
	}
	if p.HasFileContent() {
		attach(t.rec, p)
	}

	if p.Status.Final() {
		return c.complete(key)
	}
	return nil
}

// Finish completes every open test and emits EventRunStop.
func (c *Collector) Finish() error {
	for _, key := range c.order {
		if _, ok := c.tests[key]; !ok {
			continue
		}
		if err := c.complete(key); err != nil {
			return err
		}
	}
	c.order = nil
	return c.emit(types.Event{Kind: types.EventRunStop})
}

func (c *Collector) complete(key testKey) error {
	t := c.tests[key]
	delete(c.tests, key)

	label := Label(t.status)
	outcome, err := types.NormalizeOutcome(label)
	if err != nil {
		return fmt.Errorf("test %s: %w", key.id, err)
	}
	t.rec.Label = label
	t.rec.Outcome = outcome
	t.rec.Status = t.status.String()
	return c.emit(types.Event{Kind: types.EventTestStop, Test: t.rec})
}

// attach appends file content to the named attachment, creating it on the
// first chunk.
func attach(rec *types.TestOutcome, p *subunit.Packet) {
	for i := range rec.Attachments {
		a := &rec.Attachments[i]
		if a.Name == p.FileName {
			a.Content = append(a.Content, p.FileBytes...)
			if p.MimeType != "" {
				a.MimeType = p.MimeType
			}
			return
		}
	}
	rec.Attachments = append(rec.Attachments, types.Attachment{
		Name:     p.FileName,
		MimeType: p.MimeType,
		Content:  append([]byte(nil), p.FileBytes...),
	})
}

// Label maps a subunit status to the result label reported for the test.
// Statuses that never finished the test are reported as errors.
func Label(status subunit.Status) string {
	switch status {
	case subunit.StatusSuccess:
		return types.LabelSuccess
	case subunit.StatusFail:
		return types.LabelFailure
	case subunit.StatusSkip:
		return types.LabelSkip
	case subunit.StatusExpectedFailure:
		return types.LabelExpectedFailure
	case subunit.StatusUnexpectedSuccess:
		return types.LabelUnexpectedSuccess
	default:
		return types.LabelError
	}
}
