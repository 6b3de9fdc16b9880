package coach

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/coachstream/coach/internal"
	"github.com/vovakirdan/coachstream/retry"
)

var errStreamClosed = errors.New("stream closed by peer")

// Client owns the websocket session with the coach backend. Frames read from
// the socket are handed to its Dispatcher in arrival order, and its
// StateMachine tracks the connection phase.
type Client struct {
	cfg        Config
	base       zerolog.Logger
	logger     zerolog.Logger
	dispatcher *Dispatcher
	states     *StateMachine
	tap        func(raw []byte)

	closing atomic.Bool

	mu      sync.Mutex
	conn    *internal.Conn
	writeCh chan Request
	cancel  context.CancelFunc
	done    chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used by the client and its default dispatcher.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithDispatcher replaces the dispatcher built from Config.
func WithDispatcher(d *Dispatcher) ClientOption {
	return func(c *Client) { c.dispatcher = d }
}

// WithStateMachine shares an existing state machine with the client.
func WithStateMachine(sm *StateMachine) ClientOption {
	return func(c *Client) { c.states = sm }
}

// WithFrameTap registers fn to see every raw frame before it is dispatched.
// fn runs on the read loop and must not retain raw.
func WithFrameTap(fn func(raw []byte)) ClientOption {
	return func(c *Client) { c.tap = fn }
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.states == nil {
		c.states = NewStateMachine()
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(
			WithDispatcherLogger(componentLogger(c.logger, "dispatcher")),
			WithSignalTypes(cfg.SignalTypes...),
			WithStrictTypes(cfg.StrictTypes),
		)
	}
	c.base = c.logger
	c.logger = componentLogger(c.logger, "client")
	return c
}

// Dispatcher returns the dispatcher receiving inbound frames.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// States returns the state machine tracking the connection.
func (c *Client) States() *StateMachine { return c.states }

// State returns the current connection state.
func (c *Client) State() ConnectionState { return c.states.Current() }

// Connect dials the server and starts the read and write loops. Failed dials
// are retried according to Config.Retry.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if _, err := c.states.Fire(TriggerConnect, nil); err != nil {
		return err
	}
	// A failed session can still have its socket open. Retire it quietly
	// before dialing a new one.
	c.closing.Store(true)
	if err := c.endSession(); err != nil {
		c.logger.Debug().Err(err).Msg("close previous session")
	}

	opts := append(c.cfg.Retry.Options(),
		retry.WithRetryable(isRetryableDial),
		retry.WithOnRetry(func(attempt int, err error) {
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("url", c.cfg.URL).Msg("dial failed, retrying")
		}),
	)
	ws, err := retry.Do(ctx, c.dial, opts...)
	if err != nil {
		cerr := WrapError(ErrorConnection, "failed to connect", err)
		_, _ = c.states.Fire(TriggerFail, cerr)
		return cerr
	}

	conn := internal.NewConn(ws, internal.Timeouts{
		Read:  c.cfg.ReadTimeout,
		Write: c.cfg.WriteTimeout,
		Ping:  c.cfg.WriteTimeout,
	}, c.cfg.ReadLimit)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.closing.Store(false)
	c.mu.Lock()
	c.conn = conn
	c.writeCh = make(chan Request, 16)
	c.cancel = cancel
	c.done = done
	writeCh := c.writeCh
	c.mu.Unlock()

	if _, err := c.states.Fire(TriggerOpened, nil); err != nil {
		// Close ran while dialing.
		cancel()
		close(done)
		_ = conn.Close(websocket.StatusNormalClosure, "client close")
		return err
	}
	c.logger.Info().Str("url", c.cfg.URL).Msg("connected")

	go c.run(runCtx, conn, writeCh, done)
	return nil
}

// Send queues a request for the write loop.
func (c *Client) Send(ctx context.Context, req Request) error {
	if !c.states.Current().CanSendMessage() {
		return NewError(ErrorNotConnected, "not connected")
	}
	c.mu.Lock()
	ch := c.writeCh
	c.mu.Unlock()
	if ch == nil {
		return NewError(ErrorNotConnected, "not connected")
	}

	select {
	case ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChat asks the coach to answer text in the configured conversation.
func (c *Client) SendChat(ctx context.Context, text string) error {
	return c.Send(ctx, Request{
		Type: requestMessage,
		Data: ChatPayload{ConversationID: c.cfg.ConversationID, Text: text},
	})
}

// Close shuts down the loops, closes the WebSocket and moves to disconnected.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.endSession()
	// The read loop may already have recorded the disconnect.
	_, _ = c.states.Fire(TriggerDisconnect, nil)
	return err
}

// endSession closes the current socket, if any, and waits for its loops to
// exit. Callers set closing first so the loops do not report the close.
func (c *Client) endSession() error {
	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn, c.cancel, c.done, c.writeCh = nil, nil, nil, nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client close")
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	var opts *websocket.DialOptions
	if c.cfg.Token != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}},
		}
	}

	ws, resp, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &dialRejectedError{status: resp.StatusCode, err: err}
		}
		return nil, err
	}
	return ws, nil
}

func (c *Client) run(ctx context.Context, conn *internal.Conn, writeCh <-chan Request, done chan struct{}) {
	defer close(done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, conn) })
	g.Go(func() error { return c.writeLoop(gctx, conn, writeCh) })
	err := g.Wait()

	if ctx.Err() != nil || c.closing.Load() {
		return
	}
	if errors.Is(err, errStreamClosed) {
		c.logger.Info().Msg("stream closed by server")
		_, _ = c.states.Fire(TriggerDisconnect, nil)
		return
	}

	_ = conn.Close(websocket.StatusInternalError, "stream error")
	var lost *CoachError
	if errors.Is(err, context.DeadlineExceeded) {
		lost = WrapError(ErrorTimeout, "stream timed out", err)
	} else {
		lost = WrapError(ErrorDisconnected, "stream connection lost", err)
	}
	c.logger.Warn().Err(err).Msg("stream loop exit")
	_, _ = c.states.Fire(TriggerFail, lost)
	c.dispatcher.ReportError(lost)
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) error {
	for {
		raw, err := conn.ReadFrame(ctx)
		if err != nil {
			if isExpectedDisconnect(ctx, err) {
				return errStreamClosed
			}
			return errors.Wrap(err, "read")
		}
		if c.tap != nil {
			c.tap(raw)
		}
		c.dispatcher.HandleRaw(raw)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *internal.Conn, writeCh <-chan Request) error {
	var pings <-chan time.Time
	if c.cfg.PingInterval > 0 {
		t := time.NewTicker(c.cfg.PingInterval)
		defer t.Stop()
		pings = t.C
	}
	for {
		select {
		case req := <-writeCh:
			if err := conn.WriteJSON(ctx, req); err != nil {
				return errors.Wrapf(err, "write %s", req.Type)
			}
		case <-pings:
			if err := conn.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

type dialRejectedError struct {
	status int
	err    error
}

func (e *dialRejectedError) Error() string {
	return fmt.Sprintf("server rejected handshake with status %d: %v", e.status, e.err)
}

func (e *dialRejectedError) Unwrap() error { return e.err }

func isRetryableDial(err error) bool {
	var rejected *dialRejectedError
	return !errors.As(err, &rejected)
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
