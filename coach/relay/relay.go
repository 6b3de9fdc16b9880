// Package relay moves coach stream frames over a watermill pub/sub so that
// processes other than the one holding the websocket can follow a
// conversation.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coachstream/coach"
)

// FrameHandler consumes raw stream frames. *coach.Dispatcher implements it.
type FrameHandler interface {
	HandleRaw(raw []byte)
}

// TopicForConversation names the topic carrying frames of one conversation.
func TopicForConversation(conversationID string) string {
	if conversationID == "" {
		return "coach.stream"
	}
	return "coach.stream." + conversationID
}

// Relay subscribes to a topic and feeds every payload to a FrameHandler in
// delivery order.
type Relay struct {
	topic      string
	subscriber message.Subscriber
	handler    FrameHandler
	logger     zerolog.Logger

	received atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// New returns a stopped relay that will feed frames from topic to handler.
func New(topic string, subscriber message.Subscriber, handler FrameHandler, logger zerolog.Logger) *Relay {
	return &Relay{
		topic:      topic,
		subscriber: subscriber,
		handler:    handler,
		logger:     logger.With().Str("component", "relay").Str("topic", topic).Logger(),
	}
}

// Start begins consuming in the background. Calling Start on a running
// relay is a no-op.
func (r *Relay) Start(ctx context.Context) error {
	if r == nil || r.subscriber == nil || r.handler == nil {
		return errors.New("relay: subscriber and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch, err := r.subscriber.Subscribe(runCtx, r.topic)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "subscribe %s", r.topic)
	}
	r.cancel = cancel
	r.running = true
	r.done = make(chan struct{})

	go r.consume(ch, r.done)
	return nil
}

// Stop cancels the subscription and waits for the consume loop to exit.
func (r *Relay) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Close stops the relay and closes its subscriber.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	r.Stop()
	if r.subscriber == nil {
		return nil
	}
	return errors.Wrap(r.subscriber.Close(), "close subscriber")
}

// IsRunning reports whether the consume loop is active.
func (r *Relay) IsRunning() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Received returns the number of frames handed to the handler.
func (r *Relay) Received() uint64 { return r.received.Load() }

func (r *Relay) consume(ch <-chan *message.Message, done chan struct{}) {
	defer close(done)
	r.logger.Info().Msg("relay started")

	for msg := range ch {
		r.handler.HandleRaw(msg.Payload)
		r.received.Add(1)
		msg.Ack()
	}

	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.mu.Unlock()
	r.logger.Info().Uint64("received", r.received.Load()).Msg("relay stopped")
}

// Publish encodes msg and publishes it on topic.
func Publish(pub message.Publisher, topic string, msg coach.StreamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return coach.WrapError(coach.ErrorSerialization, "failed to encode stream message", err)
	}
	return PublishRaw(pub, topic, payload)
}

// PublishRaw publishes an already encoded frame on topic.
func PublishRaw(pub message.Publisher, topic string, frame []byte) error {
	m := message.NewMessage(uuid.NewString(), frame)
	m.Metadata.Set("source", "coachstream")
	return errors.Wrapf(pub.Publish(topic, m), "publish %s", topic)
}

// Tee returns a handler that forwards every frame to next and republishes
// it on topic. Publish failures are logged and do not stop delivery.
func Tee(next FrameHandler, pub message.Publisher, topic string, logger zerolog.Logger) FrameHandler {
	return teeHandler{next: next, pub: pub, topic: topic, logger: logger}
}

type teeHandler struct {
	next   FrameHandler
	pub    message.Publisher
	topic  string
	logger zerolog.Logger
}

func (t teeHandler) HandleRaw(raw []byte) {
	if t.next != nil {
		t.next.HandleRaw(raw)
	}
	frame := append([]byte(nil), raw...)
	if err := PublishRaw(t.pub, t.topic, frame); err != nil {
		t.logger.Warn().Err(err).Str("topic", t.topic).Msg("relay publish failed")
	}
}
