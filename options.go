package luminote

import (
	"log/slog"
	"net/http"
	"time"
)

// Stream defaults
const (
	DefaultStreamPath = "/api/v1/translate/stream"
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1000 * time.Millisecond
)

// StreamOptions tunes a single StreamTranslation call.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
// Cancellation is carried by the context passed to the call.
type StreamOptions struct {
	// Endpoint overrides the stream URL. A path is resolved against the
	// client's base URL; an absolute URL is used as is.
	Endpoint string

	// MaxRetries is the number of retries after the initial attempt (default 3)
	MaxRetries *int

	// RetryDelay is the linear backoff unit: the wait before retry n is
	// RetryDelay × n (default 1s)
	RetryDelay *time.Duration
}

// GetMaxRetries returns max retries with default fallback
func (o *StreamOptions) GetMaxRetries() int {
	if o == nil || o.MaxRetries == nil || *o.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return *o.MaxRetries
}

// GetRetryDelay returns the retry delay with default fallback
func (o *StreamOptions) GetRetryDelay() time.Duration {
	if o == nil || o.RetryDelay == nil || *o.RetryDelay < 0 {
		return DefaultRetryDelay
	}
	return *o.RetryDelay
}

// GetEndpoint returns the endpoint override, or defaultValue when unset
func (o *StreamOptions) GetEndpoint(defaultValue string) string {
	if o == nil || o.Endpoint == "" {
		return defaultValue
	}
	return o.Endpoint
}

// HTTPDoer is the subset of *http.Client the stream client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP transport. The stream is long-lived, so
// the default client has no overall timeout; deadlines come from the context.
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHeader adds a header sent with every stream request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithStreamPath changes the default stream path.
func WithStreamPath(path string) ClientOption {
	return func(c *Client) {
		c.streamPath = path
	}
}
