package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/coachstream/coach"
)

const transcript = `{"type":"content","data":"Try "}
{"type":"content","data":"5x5 squats."}

{"type":"done"}
{"type":"workout_history_approved","data":{"workout_id":"w-9"}}
{"type":"typing"}
{"type":"error","error":"quota exceeded"}
not json
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestReplayFrames(t *testing.T) {
	d := coach.NewDispatcher()
	var out bytes.Buffer
	attachPrinter(d, &out)

	n, err := replayFrames(strings.NewReader(transcript), d)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Equal(t, "Try 5x5 squats.", lines[0])
	require.Equal(t, `[workout_history_approved] {"workout_id":"w-9"}`, lines[1])
	require.Equal(t, "[skipped typing]", lines[2])
	require.Equal(t, "error: server_error: quota exceeded", lines[3])
	require.True(t, strings.HasPrefix(lines[4], "error: serialization_error"), lines[4])
}

func TestReplayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(transcript), 0o600))

	out, err := execute(t, "replay", path)
	require.NoError(t, err)
	require.Contains(t, out, "Try 5x5 squats.\n")
}

func TestReplayMissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "nope.jsonl"))
	require.ErrorContains(t, err, "open transcript")
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: wss://coach.example/ws\ntoken: s3cret\nretry:\n  delays: [250ms, 1s]\n"), 0o600))

	out, err := execute(t, "--config", path, "config")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Equal(t, "wss://coach.example/ws", got["url"])
	require.Equal(t, "redacted", got["token"])
	require.Equal(t, "10s", got["handshake_timeout"])
	retry := got["retry"].(map[string]any)
	require.Equal(t, 3, retry["max_retries"])
	require.Equal(t, []any{"250ms", "1s"}, retry["delays"])
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "replay", "-")
	require.ErrorContains(t, err, "invalid log level")
}

func TestChatCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		var req struct {
			Data coach.ChatPayload `json:"data"`
		}
		if err := wsjson.Read(r.Context(), ws, &req); err != nil {
			return
		}
		_ = wsjson.Write(r.Context(), ws, map[string]any{"type": "content", "data": "Rest day: " + req.Data.Text})
		_ = wsjson.Write(r.Context(), ws, map[string]any{"type": "done"})
		_, _, _ = ws.Read(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out, err := execute(t, "--url", url, "chat", "stretch", "more")
	require.NoError(t, err)
	require.Equal(t, "Rest day: stretch more\n", out)
}

func TestChatCommandServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		var req map[string]any
		if err := wsjson.Read(r.Context(), ws, &req); err != nil {
			return
		}
		_ = wsjson.Write(r.Context(), ws, map[string]any{"type": "error", "error": "coach unavailable"})
		_, _, _ = ws.Read(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	out, err := execute(t, "--url", url, "chat", "hi")
	require.True(t, coach.IsServerError(err))
	require.Contains(t, out, "error: server_error: coach unavailable")
}

func TestChatCommandServerClosesEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		var req map[string]any
		if err := wsjson.Read(r.Context(), ws, &req); err != nil {
			return
		}
		_ = wsjson.Write(r.Context(), ws, map[string]any{"type": "content", "data": "partial"})
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	done := make(chan struct{})
	var out string
	var err error
	go func() {
		defer close(done)
		out, err = execute(t, "--url", url, "chat", "hi")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("chat did not return after the server closed")
	}
	require.ErrorIs(t, err, errReplyCut)
	require.Equal(t, "partial", out)
}
