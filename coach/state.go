package coach

import (
	"fmt"
	"sync"
)

// Phase identifies which variant a ConnectionState holds.
type Phase int

const (
	// PhaseDisconnected means there is no stream session.
	PhaseDisconnected Phase = iota

	// PhaseConnecting means a session is being established.
	PhaseConnecting

	// PhaseConnected means the session is open and idle.
	PhaseConnected

	// PhaseStreaming means a reply is being streamed.
	PhaseStreaming

	// PhaseError means the session failed; the state carries the cause.
	PhaseError
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseStreaming:
		return "streaming"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionState is the current phase of a message-stream session together
// with its derived capability flags. Values are built with Disconnected,
// Connecting, Connected, Streaming and Failed; the zero value is Disconnected.
type ConnectionState struct {
	phase Phase
	err   error
}

// Disconnected returns the state with no session.
func Disconnected() ConnectionState { return ConnectionState{phase: PhaseDisconnected} }

// Connecting returns the state of a session being established.
func Connecting() ConnectionState { return ConnectionState{phase: PhaseConnecting} }

// Connected returns the state of an open, idle session.
func Connected() ConnectionState { return ConnectionState{phase: PhaseConnected} }

// Streaming returns the state of a session receiving a reply.
func Streaming() ConnectionState { return ConnectionState{phase: PhaseStreaming} }

// Failed returns the error state carrying err. A nil err is replaced with a
// generic unknown error so the state always has something to show.
func Failed(err error) ConnectionState {
	if err == nil {
		err = NewError(ErrorUnknown, "unknown error")
	}
	return ConnectionState{phase: PhaseError, err: err}
}

// Phase returns the variant held by s.
func (s ConnectionState) Phase() Phase { return s.phase }

// Err returns the carried error; it is non-nil only in the error phase.
func (s ConnectionState) Err() error { return s.err }

// CanSendMessage reports whether a chat message may be sent.
func (s ConnectionState) CanSendMessage() bool {
	return s.phase == PhaseConnected || s.phase == PhaseStreaming
}

// CanConnect reports whether a new session may be started.
func (s ConnectionState) CanConnect() bool {
	return s.phase == PhaseDisconnected || s.phase == PhaseError
}

// IsLoading reports whether a session is being established.
func (s ConnectionState) IsLoading() bool {
	return s.phase == PhaseConnecting
}

// String returns the phase name, followed by the error in parentheses when one is carried.
func (s ConnectionState) String() string {
	if s.err != nil {
		return fmt.Sprintf("%s(%v)", s.phase, s.err)
	}
	return s.phase.String()
}

// Trigger is an input to the connection state machine.
type Trigger int

const (
	TriggerConnect Trigger = iota
	TriggerOpened
	TriggerStreamStart
	TriggerStreamEnd
	TriggerFail
	TriggerDisconnect
)

// String returns the string representation of a Trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerConnect:
		return "connect"
	case TriggerOpened:
		return "opened"
	case TriggerStreamStart:
		return "stream_start"
	case TriggerStreamEnd:
		return "stream_end"
	case TriggerFail:
		return "fail"
	case TriggerDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

var transitions = map[Phase]map[Trigger]Phase{
	PhaseDisconnected: {
		TriggerConnect: PhaseConnecting,
	},
	PhaseConnecting: {
		TriggerOpened:     PhaseConnected,
		TriggerFail:       PhaseError,
		TriggerDisconnect: PhaseDisconnected,
	},
	PhaseConnected: {
		TriggerStreamStart: PhaseStreaming,
		TriggerFail:        PhaseError,
		TriggerDisconnect:  PhaseDisconnected,
	},
	PhaseStreaming: {
		TriggerStreamEnd:  PhaseConnected,
		TriggerFail:       PhaseError,
		TriggerDisconnect: PhaseDisconnected,
	},
	PhaseError: {
		TriggerConnect:    PhaseConnecting,
		TriggerFail:       PhaseError,
		TriggerDisconnect: PhaseDisconnected,
	},
}

// Transition computes the state that follows cur when t fires. cause is only
// used by TriggerFail. Illegal transitions return cur unchanged together with
// an ErrorIllegalTransition error.
func Transition(cur ConnectionState, t Trigger, cause error) (ConnectionState, error) {
	next, ok := transitions[cur.phase][t]
	if !ok {
		return cur, NewError(ErrorIllegalTransition, fmt.Sprintf("cannot %s while %s", t, cur.phase))
	}
	switch next {
	case PhaseDisconnected:
		return Disconnected(), nil
	case PhaseConnecting:
		return Connecting(), nil
	case PhaseConnected:
		return Connected(), nil
	case PhaseStreaming:
		return Streaming(), nil
	default:
		return Failed(cause), nil
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Trigger  Trigger
}

// StateMachine holds the current ConnectionState of a session and applies
// triggers to it. It is safe for concurrent use.
type StateMachine struct {
	mu        sync.Mutex
	cur       ConnectionState
	nextID    uint64
	observers []stateObserver
}

type stateObserver struct {
	id uint64
	fn func(StateEvent)
}

// NewStateMachine returns a machine starting in the disconnected state.
func NewStateMachine() *StateMachine {
	return &StateMachine{cur: Disconnected()}
}

// Current returns the current state.
func (m *StateMachine) Current() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Fire applies t and notifies observers when the transition is legal.
func (m *StateMachine) Fire(t Trigger, cause error) (ConnectionState, error) {
	m.mu.Lock()
	old := m.cur
	next, err := Transition(old, t, cause)
	if err != nil {
		m.mu.Unlock()
		return old, err
	}
	m.cur = next
	observers := make([]stateObserver, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	ev := StateEvent{OldState: old, NewState: next, Trigger: t}
	for _, o := range observers {
		o.fn(ev)
	}
	return next, nil
}

// OnChange registers fn for every successful transition. The returned func
// removes the registration.
func (m *StateMachine) OnChange(fn func(StateEvent)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, stateObserver{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}
