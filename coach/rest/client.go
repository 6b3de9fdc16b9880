package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coachstream/retry"
)

var errBadResponse = errors.New("unexpected response body")

// Client provides REST API access to the coach backend. Every call is
// retried on transport failures, 429 and 5xx responses.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryOpts  []retry.Option
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken sets the bearer token for authenticated requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRetry overrides the retry policy. IsRetryable is always applied.
func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = opts }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "https://api.example.com/v1".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With().Str("component", "rest").Logger()
	return c
}

// SaveProfile stores the profile and returns the saved version.
func (c *Client) SaveProfile(ctx context.Context, p Profile) (*Profile, error) {
	var resp Profile
	if err := c.call(ctx, http.MethodPut, "/profile", p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dashboard fetches the home screen summary.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var resp Dashboard
	if err := c.call(ctx, http.MethodGet, "/dashboard", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatHistory returns up to limit stored messages of a conversation.
func (c *Client) ChatHistory(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp []HistoryMessage
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// IsRetryable reports whether a failed call may succeed when repeated.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, errBadResponse) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Helper methods

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		payload = data
	}

	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, err error) {
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("method", method).Str("path", path).Msg("request failed, retrying")
		}),
	}, c.retryOpts...)
	opts = append(opts, retry.WithRetryable(IsRetryable))

	return retry.Run(ctx, func(ctx context.Context) error {
		return c.do(ctx, method, path, payload, dest)
	}, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, dest any) error {
	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return errors.Wrapf(errBadResponse, "unmarshal response: %v", err)
		}
	}
	return nil
}
