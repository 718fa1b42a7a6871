package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

// APIError is returned when the backend answers with an error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Retryable is true for server-side failures and rate limiting.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NetworkError wraps a transport failure. The request may or may not have
// reached the server.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable is always true.
func (e *NetworkError) Retryable() bool { return true }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// TokenSource supplies the bearer token. core.ErrNoToken means "send the
// request unauthenticated".
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource holding one token.
type StaticToken string

// GetToken returns the token or core.ErrNoToken when empty.
func (t StaticToken) GetToken(context.Context) (string, error) {
	if t == "" {
		return "", core.ErrNoToken
	}
	return string(t), nil
}

// Transport performs one JSON request. Client is the production implementation.
type Transport interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

// Client is the HTTP wrapper around the nutrisync REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-request timeout. An injected *http.Client is
// copied, not modified.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithRetries sets how many attempts a GET gets and the first back-off delay.
func WithRetries(maxAttempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxRetries = maxAttempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new API client.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = core.APIBaseURL
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    time.Second,
		log:        log.Logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		h := *c.httpClient
		h.Timeout = c.timeout
		c.httpClient = &h
	}
	return c
}

// BaseURL returns the configured server root.
func (c *Client) BaseURL() string { return c.baseURL }

// Do performs a request against path and decodes the "data" member of the
// response envelope into out. GETs are retried on connection errors, HTTP 5xx
// and 429 with exponential back-off; writes are sent once.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	urlStr := c.baseURL + path
	if len(query) > 0 {
		urlStr = fmt.Sprintf("%s?%s", urlStr, query.Encode())
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxRetries
	}

	c.log.Debug().Str("method", method).Str("url", urlStr).Msg("request")

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		wait, err := c.once(ctx, method, urlStr, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if wait < 0 || attempt == attempts || ctx.Err() != nil {
			break
		}
		if wait == 0 {
			wait = c.backoff * time.Duration(1<<(attempt-1))
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// once performs a single attempt. A negative wait marks the error as final;
// zero asks for the default back-off.
func (c *Client) once(ctx context.Context, method, urlStr string, payload []byte, out any) (time.Duration, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, rdr)
	if err != nil {
		return -1, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.GetToken(ctx)
	switch {
	case err == nil && token != "":
		req.Header.Set("Authorization", "Bearer "+token)
	case err != nil && !errors.Is(err, core.ErrNoToken):
		return -1, fmt.Errorf("failed to read token: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &NetworkError{Method: method, URL: urlStr, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &NetworkError{Method: method, URL: urlStr, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		if !apiErr.Retryable() {
			return -1, apiErr
		}
		var wait time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
		}
		return wait, apiErr
	}

	c.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("response")

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return 0, nil
	}
	env := envelope{Data: out}
	if err := json.Unmarshal(raw, &env); err != nil {
		return -1, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return 0, nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return strings.TrimSpace(string(raw))
}
