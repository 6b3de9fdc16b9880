package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/coachstream/retry"
)

func fastRetry() Option {
	return WithRetry(retry.WithMaxRetries(2), retry.WithDelays(time.Millisecond))
}

func TestSaveProfileRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/profile", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var p Profile
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		p.UserID = "u-1"
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("tok"), fastRetry())
	saved, err := c.SaveProfile(context.Background(), Profile{DisplayName: "Sam", WeightUnit: "kg"})

	require.NoError(t, err)
	require.Equal(t, "u-1", saved.UserID)
	require.Equal(t, "Sam", saved.DisplayName)
	require.Equal(t, int32(2), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "display_name is required"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry())
	_, err := c.SaveProfile(context.Background(), Profile{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "display_name is required", apiErr.Message)
	require.Equal(t, int32(1), calls.Load())
}

func TestDashboardGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry())
	_, err := c.Dashboard(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "overloaded", apiErr.Message)
	require.Equal(t, int32(3), calls.Load())
}

func TestChatHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/conv%201/messages", r.URL.EscapedPath())
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]HistoryMessage{
			{ID: "m1", Role: "user", Content: "hi"},
			{ID: "m2", Role: "assistant", Content: "hello"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.ChatHistory(context.Background(), "conv 1", 20)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hello", msgs[1].Content)
}

func TestMalformedResponseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"streak_days":`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry())
	_, err := c.Dashboard(context.Background())

	require.ErrorIs(t, err, errBadResponse)
	require.Equal(t, int32(1), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&APIError{StatusCode: 500}))
	require.True(t, IsRetryable(&APIError{StatusCode: 429}))
	require.False(t, IsRetryable(&APIError{StatusCode: 404}))
	require.False(t, IsRetryable(context.Canceled))
	require.True(t, IsRetryable(http.ErrHandlerTimeout))
}
