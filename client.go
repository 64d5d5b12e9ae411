package luminote

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client consumes the Luminote translation stream.
// A Client is safe for concurrent use; each StreamTranslation call owns its
// own connection, buffer and retry counter.
type Client struct {
	baseURL    string
	streamPath string
	httpClient HTTPDoer
	logger     *slog.Logger
	headers    http.Header
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a stream client for the server at baseURL
// (e.g., "http://localhost:8000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		streamPath: DefaultStreamPath,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		headers:    make(http.Header),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSleep replaces the backoff wait. Used by tests to observe delays
// without waiting for them.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// endpoint resolves the stream URL for one call.
func (c *Client) endpoint(opts *StreamOptions) string {
	target := opts.GetEndpoint(c.streamPath)
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.baseURL + target
}

// Stream runs StreamTranslation in a goroutine and delivers its events on a
// channel. The channel is closed when the stream ends; a failure arrives as a
// final event with Err set. Block, error and done events produced after ctx is
// done may be dropped, but the final Err event is always delivered, so the
// caller must drain the channel.
func (c *Client) Stream(ctx context.Context, req *TranslationStreamRequest, opts *StreamOptions) <-chan StreamEvent {
	ch := make(chan StreamEvent, 16)

	go func() {
		defer close(ch)

		send := func(ev StreamEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
				select {
				case ch <- ev:
				default:
				}
			}
		}

		handlers := Handlers{
			OnBlock: func(ev BlockTranslationEvent) {
				send(StreamEvent{Block: &ev})
			},
			OnError: func(ev StreamErrorEvent) {
				send(StreamEvent{Error: &ev})
			},
			OnComplete: func(ev StreamDoneEvent) {
				send(StreamEvent{Done: &ev})
			},
		}

		if err := c.StreamTranslation(ctx, req, handlers, opts); err != nil {
			ch <- StreamEvent{Err: err}
		}
	}()

	return ch
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
