package coach

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript.
type Message struct {
	ID        uuid.UUID
	Role      Role
	Content   string
	Complete  bool
	CreatedAt time.Time
}

// Sender delivers a user message to the coach backend.
type Sender interface {
	SendChat(ctx context.Context, text string) error
}

var _ Sender = (*Client)(nil)

// Conversation keeps the transcript of a chat with the coach and drives the
// streaming phases of the connection state from dispatcher events.
type Conversation struct {
	sender     Sender
	dispatcher *Dispatcher
	states     *StateMachine
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	messages []Message
	open     int // index of the assistant message receiving chunks, -1 if none

	subs []Subscription
}

// NewConversation wires a conversation to d and sm. Replies are requested
// through sender.
func NewConversation(sender Sender, d *Dispatcher, sm *StateMachine, logger zerolog.Logger) *Conversation {
	c := &Conversation{
		sender:     sender,
		dispatcher: d,
		states:     sm,
		logger:     componentLogger(logger, "conversation"),
		now:        time.Now,
		open:       -1,
	}
	c.subs = []Subscription{
		d.OnContent(c.handleContent),
		d.OnDone(c.handleDone),
		d.OnError(c.handleError),
	}
	return c
}

// NewClientConversation builds a conversation on top of a Client.
func NewClientConversation(client *Client) *Conversation {
	return NewConversation(client, client.Dispatcher(), client.States(), client.base)
}

// Send records text as a user message and asks the coach to answer it.
func (c *Conversation) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewError(ErrorInvalidInput, "empty message")
	}
	state := c.states.Current()
	if !state.CanSendMessage() {
		return NewError(ErrorNotConnected, "cannot send while "+state.Phase().String())
	}

	c.mu.Lock()
	c.closeOpenLocked()
	c.messages = append(c.messages, Message{
		ID:        uuid.New(),
		Role:      RoleUser,
		Content:   text,
		Complete:  true,
		CreatedAt: c.now(),
	})
	c.messages = append(c.messages, Message{
		ID:        uuid.New(),
		Role:      RoleAssistant,
		CreatedAt: c.now(),
	})
	c.open = len(c.messages) - 1
	c.mu.Unlock()

	if err := c.sender.SendChat(ctx, text); err != nil {
		c.mu.Lock()
		// Drop the placeholder that will never be filled.
		if c.open == len(c.messages)-1 {
			c.messages = c.messages[:c.open]
			c.open = -1
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State returns the connection state the conversation is driving.
func (c *Conversation) State() ConnectionState {
	return c.states.Current()
}

// Close detaches the conversation from the dispatcher.
func (c *Conversation) Close() {
	for _, s := range c.subs {
		c.dispatcher.Off(s)
	}
	c.subs = nil
}

func (c *Conversation) handleContent(chunk string) {
	if c.states.Current().Phase() == PhaseConnected {
		if _, err := c.states.Fire(TriggerStreamStart, nil); err != nil {
			c.logger.Debug().Err(err).Msg("stream start rejected")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open < 0 {
		// The server started a reply we did not ask for.
		c.messages = append(c.messages, Message{
			ID:        uuid.New(),
			Role:      RoleAssistant,
			CreatedAt: c.now(),
		})
		c.open = len(c.messages) - 1
	}
	c.messages[c.open].Content += chunk
}

func (c *Conversation) handleDone() {
	c.mu.Lock()
	c.closeOpenLocked()
	c.mu.Unlock()

	if c.states.Current().Phase() == PhaseStreaming {
		if _, err := c.states.Fire(TriggerStreamEnd, nil); err != nil {
			c.logger.Debug().Err(err).Msg("stream end rejected")
		}
	}
}

func (c *Conversation) handleError(err error) {
	c.logger.Warn().Err(err).Msg("stream error")
	c.mu.Lock()
	c.open = -1
	c.mu.Unlock()
	if _, ferr := c.states.Fire(TriggerFail, err); ferr != nil {
		c.logger.Debug().Err(ferr).Msg("fail transition rejected")
	}
}

func (c *Conversation) closeOpenLocked() {
	if c.open >= 0 {
		c.messages[c.open].Complete = true
		c.open = -1
	}
}
