package types

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the normalized result category of a completed test.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailure         Outcome = "failure"
	OutcomeError           Outcome = "error"
	OutcomeSkip            Outcome = "skip"
	OutcomeExpectedFailure Outcome = "expectedfailure"
	// Matches the state name already published upstream, trailing "s" omitted.
	OutcomeUnexpectedSuccess Outcome = "unexpectedsucces"
)

// Outcomes lists every state in the order they are exposed.
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeFailure,
	OutcomeError,
	OutcomeSkip,
	OutcomeExpectedFailure,
	OutcomeUnexpectedSuccess,
}

// Result labels reported for a finished test case.
const (
	LabelSuccess           = "addSuccess"
	LabelFailure           = "addFailure"
	LabelError             = "addError"
	LabelSkip              = "addSkip"
	LabelExpectedFailure   = "addExpectedFailure"
	LabelUnexpectedSuccess = "addUnexpectedSuccess"
)

const labelPrefix = "add"

// NormalizeOutcome turns a result label such as "addSuccess" or
// "AddExpectedFailure" into its Outcome.
func NormalizeOutcome(label string) (Outcome, error) {
	name := strings.ToLower(label)
	name = strings.TrimPrefix(name, labelPrefix)
	if name == "unexpectedsuccess" {
		return OutcomeUnexpectedSuccess, nil
	}
	outcome := Outcome(name)
	if !outcome.IsValid() {
		return "", fmt.Errorf("unknown outcome label %q", label)
	}
	return outcome, nil
}

// IsValid reports whether o is one of the known states.
func (o Outcome) IsValid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// TestOutcome is the record produced once for every completed test.
type TestOutcome struct {
	ID        string
	Start     time.Time
	End       time.Time
	Label     string
	Outcome   Outcome
	Status    string
	RouteCode string
	Tags      []string
	// Attachments are kept in the order the runner reported them.
	Attachments []Attachment
}

// Attachment is a named piece of test output (traceback, captured logs).
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

// Duration returns End-Start.
func (t *TestOutcome) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// HasTimestamps reports whether both timestamps were observed.
func (t *TestOutcome) HasTimestamps() bool {
	return !t.Start.IsZero() && !t.End.IsZero()
}

// String gives a one-line description for logs.
func (t *TestOutcome) String() string {
	return fmt.Sprintf("%s: %s (%s)", t.ID, t.Outcome, t.Duration())
}
