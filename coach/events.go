package coach

import "encoding/json"

// EventKind identifies the kind of an Event.
type EventKind int

const (
	KindContent EventKind = iota
	KindDone
	KindSignal
	KindError
	KindUnhandled
)

// String returns the string representation of an EventKind.
func (k EventKind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindDone:
		return "done"
	case KindSignal:
		return "signal"
	case KindError:
		return "error"
	case KindUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// Event is a sealed interface for everything the Dispatcher emits.
// The unexported marker method prevents external implementations.
type Event interface {
	Kind() EventKind
	event()
}

// ContentEvent carries one chunk of streamed reply text.
type ContentEvent struct {
	Data string
}

// DoneEvent marks the end of a streamed reply.
type DoneEvent struct{}

// SignalEvent carries a domain signal such as workout_history_approved.
type SignalEvent struct {
	Type string
	Data json.RawMessage
}

// ErrorEvent carries a server-reported or decoding error.
type ErrorEvent struct {
	Err error
}

// UnhandledEvent reports a message whose type the dispatcher does not know.
// It is only delivered to KindUnhandled listeners.
type UnhandledEvent struct {
	Type string
}

func (ContentEvent) Kind() EventKind   { return KindContent }
func (DoneEvent) Kind() EventKind      { return KindDone }
func (SignalEvent) Kind() EventKind    { return KindSignal }
func (ErrorEvent) Kind() EventKind     { return KindError }
func (UnhandledEvent) Kind() EventKind { return KindUnhandled }

func (ContentEvent) event()   {}
func (DoneEvent) event()      {}
func (SignalEvent) event()    {}
func (ErrorEvent) event()     {}
func (UnhandledEvent) event() {}

// Interface compliance checks.
var (
	_ Event = ContentEvent{}
	_ Event = DoneEvent{}
	_ Event = SignalEvent{}
	_ Event = ErrorEvent{}
	_ Event = UnhandledEvent{}
)
