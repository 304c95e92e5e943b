package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/source"
)

// APIError is returned when the mail API answers with a non-success
// status or a body whose success flag is false.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"mail API error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Message,
	)
}

// errorBody is the error shape the mail API uses on failures.
type errorBody struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (b errorBody) message() string {
	switch {
	case b.Error != "" && b.Details != "":
		return b.Error + ": " + b.Details
	case b.Error != "":
		return b.Error
	default:
		return b.Details
	}
}

// Client is a thin HTTP client for the mail API. It carries the session
// cookie in a cookie jar, handles JSON (de)serialization, and retries with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	maxRetries int
	logger     zerolog.Logger
	backoff    func(attempt int) time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a rate-limited request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying transport client. Its Jar is
// replaced by the client's own cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		jar := c.httpClient.Jar
		timeout := c.httpClient.Timeout
		c.httpClient = hc
		c.httpClient.Jar = jar
		if c.httpClient.Timeout == 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithSession seeds the cookie jar with a session cookie.
func WithSession(name, value string) Option {
	return func(c *Client) {
		if name == "" || value == "" {
			return
		}
		c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:  name,
			Value: value,
			Path:  "/",
		}})
	}
}

// WithBackoff overrides the fallback wait used when a 429 response has no
// Retry-After header.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient creates a new mail API client. The baseURL should be the root
// URL of the API (e.g., https://mail.example.com/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: source.DefaultTimeout,
			Jar:     jar,
		},
		maxRetries: 3,
		logger:     zerolog.Nop(),
		backoff:    exponentialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	path string,
	query url.Values,
	result interface{},
) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	target := c.baseURL.String() + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Logger()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn().Err(err).Msg("request failed")
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		logger.Debug().
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Int("attempt", attempt).
			Msg("mail API response")

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := c.retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			logger.Warn().Dur("wait", wait).Msg("rate limited, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &source.AuthError{
				SourceType: source.SourceTypeHTTP,
				Message: fmt.Sprintf(
					"session rejected on %s %s: log in again", method, path,
				),
			}
		}

		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := eb.message()
			if msg == "" {
				msg = strings.TrimSpace(string(respBody))
			}
			return &APIError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    msg,
			}
		}

		if eb.Success != nil && !*eb.Success {
			return &APIError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    eb.message(),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w",
				method, path, err,
			)
		}

		return nil
	}

	return fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to the configured backoff if the header is missing.
func (c *Client) retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.backoff(attempt)
}

// exponentialBackoff waits 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
