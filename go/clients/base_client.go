package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBody bounds how much of a response is kept for error messages.
const maxResponseBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.StatusCode, e.Body)
}

const defaultRequestTimeout = 30 * time.Second

// BaseClient bounds each call with a context deadline rather than
// http.Client.Timeout, so a per-call timeout can exceed the default.
type BaseClient struct {
	client         *http.Client
	headers        http.Header
	defaultTimeout time.Duration
}

func NewBaseClient() *BaseClient {
	return &BaseClient{
		client:         &http.Client{},
		headers:        make(http.Header),
		defaultTimeout: defaultRequestTimeout,
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers.Set(key, value)
}

// MakeRequest sends the request with the client headers, then the per-call
// headers on top. Header names are case-insensitive, so a per-call header
// always replaces a client header of the same name. A positive timeout bounds
// the whole call; otherwise the client default applies.
func (c *BaseClient) MakeRequest(ctx context.Context, method, url string, body io.Reader, headers http.Header, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range c.headers {
		req.Header[key] = values
	}
	for key, values := range headers {
		req.Header[http.CanonicalHeaderKey(key)] = values
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBody, nil
}

func (c *BaseClient) Post(ctx context.Context, url string, body io.Reader, headers http.Header, timeout time.Duration) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPost, url, body, headers, timeout)
}
