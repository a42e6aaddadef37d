package types

// EventKind enumerates the test lifecycle events produced while decoding a
// result stream.
type EventKind int

const (
	EventRunStart EventKind = iota
	EventTestStart
	EventTestStop
	EventRunStop
)

func (k EventKind) String() string {
	switch k {
	case EventRunStart:
		return "run-start"
	case EventTestStart:
		return "test-start"
	case EventTestStop:
		return "test-stop"
	case EventRunStop:
		return "run-stop"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle event. Test is set for EventTestStart (ID
// only) and EventTestStop (complete record).
type Event struct {
	Kind EventKind
	Test *TestOutcome
}
