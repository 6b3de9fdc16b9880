// Package internal holds the websocket plumbing behind coach.Client.
package internal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pkg/errors"
)

// DefaultReadLimit caps a single inbound frame. Coach replies arrive as many
// small chunks, so anything larger is a protocol error.
const DefaultReadLimit = 1 << 20

// Timeouts bound individual socket operations. Zero disables a bound.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Ping  time.Duration
}

// Conn is a websocket carrying JSON text frames.
type Conn struct {
	ws       *websocket.Conn
	timeouts Timeouts
}

// NewConn wraps ws and applies readLimit, or DefaultReadLimit when it is not positive.
func NewConn(ws *websocket.Conn, t Timeouts, readLimit int64) *Conn {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	ws.SetReadLimit(readLimit)
	return &Conn{ws: ws, timeouts: t}
}

// ReadFrame returns the next frame undecoded so the caller decides how to
// treat malformed payloads.
func (c *Conn) ReadFrame(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := bound(ctx, c.timeouts.Read)
	defer cancel()

	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteJSON encodes v and sends it as one text frame.
func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	ctx, cancel := bound(ctx, c.timeouts.Write)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// Ping sends a ping and waits for the pong. A read loop must be running.
func (c *Conn) Ping(ctx context.Context) error {
	ctx, cancel := bound(ctx, c.timeouts.Ping)
	defer cancel()
	return errors.Wrap(c.ws.Ping(ctx), "ping")
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
