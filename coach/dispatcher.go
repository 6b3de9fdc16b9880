package coach

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Listener receives events from a Dispatcher.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }

// Subscription identifies a listener registration.
type Subscription uint64

// kindAny matches every kind except KindUnhandled.
const kindAny EventKind = -1

type registration struct {
	id       Subscription
	kind     EventKind
	listener Listener
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for diagnostics.
func WithDispatcherLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = &l }
}

// WithSignalTypes adds message types that are delivered as SignalEvent.
func WithSignalTypes(types ...string) DispatcherOption {
	return func(d *Dispatcher) {
		for _, t := range types {
			d.registerSignalLocked(t)
		}
	}
}

// WithStrictTypes makes unknown message types produce an ErrorEvent instead
// of an UnhandledEvent.
func WithStrictTypes(strict bool) DispatcherOption {
	return func(d *Dispatcher) { d.strict = strict }
}

// Dispatcher routes decoded stream messages to registered listeners.
// The zero value is ready to use.
//
// HandleMessage is synchronous: listeners run on the caller's goroutine in
// registration order, and messages must be fed in arrival order. Registration
// is safe to call concurrently with dispatch.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    Subscription
	listeners []registration
	signals   map[string]struct{}
	strict    bool
	logger    *zerolog.Logger
}

// NewDispatcher constructs a dispatcher with the given options.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	return d
}

// On registers l for events of the given kind.
func (d *Dispatcher) On(kind EventKind, l Listener) Subscription {
	return d.add(kind, l)
}

// OnEvent registers l for content, done, signal and error events.
func (d *Dispatcher) OnEvent(l Listener) Subscription {
	return d.add(kindAny, l)
}

// Off removes a registration. Unknown subscriptions are ignored.
func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.listeners {
		if r.id == sub {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// OnContent registers fn for content chunks.
func (d *Dispatcher) OnContent(fn func(string)) Subscription {
	if fn == nil {
		return 0
	}
	return d.On(KindContent, ListenerFunc(func(ev Event) { fn(ev.(ContentEvent).Data) }))
}

// OnDone registers fn for the end of a reply.
func (d *Dispatcher) OnDone(fn func()) Subscription {
	if fn == nil {
		return 0
	}
	return d.On(KindDone, ListenerFunc(func(Event) { fn() }))
}

// OnSignal registers fn for domain signal messages.
func (d *Dispatcher) OnSignal(fn func(SignalEvent)) Subscription {
	if fn == nil {
		return 0
	}
	return d.On(KindSignal, ListenerFunc(func(ev Event) { fn(ev.(SignalEvent)) }))
}

// OnError registers fn for server, decode, dispatch and transport errors.
func (d *Dispatcher) OnError(fn func(error)) Subscription {
	if fn == nil {
		return 0
	}
	return d.On(KindError, ListenerFunc(func(ev Event) { fn(ev.(ErrorEvent).Err) }))
}

// OnUnhandled registers fn for message types the dispatcher does not know.
func (d *Dispatcher) OnUnhandled(fn func(UnhandledEvent)) Subscription {
	if fn == nil {
		return 0
	}
	return d.On(KindUnhandled, ListenerFunc(func(ev Event) { fn(ev.(UnhandledEvent)) }))
}

// RegisterSignal adds a message type that is delivered as SignalEvent.
func (d *Dispatcher) RegisterSignal(msgType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerSignalLocked(msgType)
}

// HandleMessage decodes msg and notifies listeners. It never panics: failures
// while interpreting the message or inside a listener become one ErrorEvent.
func (d *Dispatcher) HandleMessage(msg StreamMessage) {
	var current Event
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := current.(ErrorEvent); ok {
			d.log().Error().Str("type", msg.Type).Interface("panic", r).Msg("dispatcher: error listener panicked")
			return
		}
		d.log().Error().Str("type", msg.Type).Interface("panic", r).Msg("dispatcher: recovered panic")
		d.emitSafely(ErrorEvent{Err: NewError(ErrorDispatch, fmt.Sprintf("failed to handle %q message: %v", msg.Type, r))})
	}()

	current = d.decode(msg)
	d.emit(current)
}

// HandleRaw decodes a JSON frame and dispatches it.
func (d *Dispatcher) HandleRaw(raw []byte) {
	msg, err := ParseStreamMessage(raw)
	if err != nil {
		d.log().Warn().Err(err).Int("bytes", len(raw)).Msg("dispatcher: undecodable frame")
		d.emitSafely(ErrorEvent{Err: err})
		return
	}
	d.HandleMessage(msg)
}

// ReportError delivers a transport-level error to error listeners.
func (d *Dispatcher) ReportError(err error) {
	if err == nil {
		return
	}
	d.emitSafely(ErrorEvent{Err: err})
}

func (d *Dispatcher) decode(msg StreamMessage) Event {
	switch msg.Type {
	case TypeContent:
		s, ok := stringData(msg.Data)
		if !ok {
			return ErrorEvent{Err: NewError(ErrorDecode, "invalid content data type")}
		}
		return ContentEvent{Data: s}
	case TypeDone:
		return DoneEvent{}
	case TypeError:
		text := msg.Error
		if text == "" {
			text = "Unknown error"
		}
		return ErrorEvent{Err: NewError(ErrorServer, text)}
	}

	if d.isSignal(msg.Type) {
		return SignalEvent{Type: msg.Type, Data: msg.Data}
	}

	d.log().Warn().Str("type", msg.Type).Msg("dispatcher: unhandled message type")
	if d.isStrict() {
		return ErrorEvent{Err: NewError(ErrorUnhandledType, fmt.Sprintf("unhandled message type %q", msg.Type))}
	}
	return UnhandledEvent{Type: msg.Type}
}

func (d *Dispatcher) emit(ev Event) {
	kind := ev.Kind()
	d.mu.RLock()
	matched := make([]Listener, 0, len(d.listeners))
	for _, r := range d.listeners {
		if r.kind == kind || (r.kind == kindAny && kind != KindUnhandled) {
			matched = append(matched, r.listener)
		}
	}
	d.mu.RUnlock()

	for _, l := range matched {
		l.HandleEvent(ev)
	}
}

func (d *Dispatcher) emitSafely(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log().Error().Stringer("kind", ev.Kind()).Interface("panic", r).Msg("dispatcher: listener panicked")
		}
	}()
	d.emit(ev)
}

func (d *Dispatcher) add(kind EventKind, l Listener) Subscription {
	if l == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners = append(d.listeners, registration{id: d.nextID, kind: kind, listener: l})
	return d.nextID
}

func (d *Dispatcher) registerSignalLocked(msgType string) {
	switch msgType {
	case "", TypeContent, TypeDone, TypeError:
		return
	}
	if d.signals == nil {
		d.signals = map[string]struct{}{TypeWorkoutHistoryApproved: {}}
	}
	d.signals[msgType] = struct{}{}
}

func (d *Dispatcher) isSignal(msgType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.signals == nil {
		return msgType == TypeWorkoutHistoryApproved
	}
	_, ok := d.signals[msgType]
	return ok
}

func (d *Dispatcher) isStrict() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.strict
}

func (d *Dispatcher) log() *zerolog.Logger {
	if d.logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return d.logger
}
