package luminote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	eventStreamContentType = "text/event-stream"
	readChunkSize          = 4096
	maxErrorBodySize       = 64 << 10
)

// StreamTranslation posts req to the stream endpoint and dispatches every
// event to handlers, synchronously and in frame order.
//
// It returns nil when the server sends a done event or closes the stream
// normally. Otherwise it returns a *StreamConnectionError: immediately for
// non-retryable failures (4xx, wrong content type, no body, cancellation),
// or the last error once the retry budget is spent. Network failures and 5xx
// responses are retried with a linear backoff of RetryDelay × attempt.
//
// A retried attempt replays the whole request, so handlers may see events
// for the same block twice.
func (c *Client) StreamTranslation(ctx context.Context, req *TranslationStreamRequest, handlers Handlers, opts *StreamOptions) error {
	body, err := json.Marshal(req)
	if err != nil {
		return newFatalStreamError(fmt.Sprintf("encode request: %v", err), err)
	}

	endpoint := c.endpoint(opts)
	maxRetries := opts.GetMaxRetries()
	retryDelay := opts.GetRetryDelay()
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "endpoint", endpoint)
	logger.Debug("stream state", "state", StateIdle)

	var lastErr *StreamConnectionError
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		logger.Debug("stream state", "state", StateConnecting, "attempt", attempt)

		err := c.attempt(ctx, endpoint, requestID, body, handlers, logger)
		if err == nil {
			logger.Debug("stream state", "state", StateCompleted, "attempt", attempt)
			return nil
		}

		if ctx.Err() != nil {
			logger.Debug("stream state", "state", StateFailed, "reason", "cancelled")
			return newCancelledError(ctx.Err())
		}

		lastErr = asStreamConnectionError(err)
		if !lastErr.IsRetryable() || attempt > maxRetries {
			logger.Warn("stream failed",
				"state", StateFailed,
				"attempt", attempt,
				"status", lastErr.StatusCode,
				"error", lastErr.Message,
			)
			return lastErr
		}

		wait := retryDelay * time.Duration(attempt)
		logger.Warn("stream attempt failed, retrying",
			"state", StateRetrying,
			"attempt", attempt,
			"max_retries", maxRetries,
			"wait", wait,
			"status", lastErr.StatusCode,
			"error", lastErr.Message,
		)

		if err := c.sleep(ctx, wait); err != nil {
			logger.Debug("stream state", "state", StateFailed, "reason", "cancelled during backoff")
			return newCancelledError(err)
		}
	}

	return lastErr
}

// attempt performs one connection and reads it to the end.
func (c *Client) attempt(ctx context.Context, endpoint, requestID string, body []byte, handlers Handlers, logger *slog.Logger) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		// A malformed endpoint will not fix itself between attempts
		return newFatalStreamError(fmt.Sprintf("build request: %v", err), err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", eventStreamContentType)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPStatusError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, eventStreamContentType) {
		return newFatalStreamError(
			fmt.Sprintf("expected %s response, got %q", eventStreamContentType, ct),
			ErrUnexpectedContentType,
		)
	}

	if resp.Body == nil {
		return newFatalStreamError("response body is not readable", ErrNoResponseBody)
	}

	logger.Debug("stream state", "state", StateStreaming, "status", resp.StatusCode)
	return readStream(resp.Body, handlers, logger)
}

// readStream decodes frames from body until a done event or EOF.
func readStream(body io.Reader, handlers Handlers, logger *slog.Logger) error {
	var buf frameBuffer
	chunk := make([]byte, readChunkSize)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			for _, frame := range buf.Frames() {
				if dispatchFrame(frame, handlers) {
					return nil
				}
			}
		}

		if errors.Is(err, io.EOF) {
			buf.Flush()
			logger.Warn("stream ended without done event", "unterminated_bytes", len(buf.Remaining()))
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// dispatchFrame routes one raw frame to its handler.
// It returns true when the frame was the terminal done event.
func dispatchFrame(raw string, handlers Handlers) bool {
	frame, ok := ParseFrame(splitFrameLines(raw))
	if !ok {
		return false
	}

	switch frame.EventType {
	case EventTypeMessage, EventTypeBlock:
		if ev, ok := decodeBlockEvent(frame.Data); ok {
			handlers.block(ev)
		}
	case EventTypeError:
		if ev, ok := decodeErrorEvent(frame.Data); ok {
			handlers.error(ev)
		}
	case EventTypeDone:
		var ev StreamDoneEvent
		// A done frame ends the stream even if its summary does not decode
		_ = json.Unmarshal(frame.Data, &ev)
		handlers.complete(ev)
		return true
	}
	return false
}

// decodeBlockEvent requires block_id and translation to be present.
// The translation may be an empty string.
func decodeBlockEvent(data json.RawMessage) (BlockTranslationEvent, bool) {
	var payload struct {
		BlockID     *string  `json:"block_id"`
		Translation *string  `json:"translation"`
		TokensUsed  *float64 `json:"tokens_used"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return BlockTranslationEvent{}, false
	}
	if payload.BlockID == nil || payload.Translation == nil {
		return BlockTranslationEvent{}, false
	}

	ev := BlockTranslationEvent{BlockID: *payload.BlockID, Translation: *payload.Translation}
	if payload.TokensUsed != nil {
		ev.TokensUsed = int(*payload.TokensUsed)
	}
	return ev, true
}

// decodeErrorEvent requires code and message to be present.
func decodeErrorEvent(data json.RawMessage) (StreamErrorEvent, bool) {
	var payload struct {
		Code    *string `json:"code"`
		Message *string `json:"message"`
		BlockID *string `json:"block_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return StreamErrorEvent{}, false
	}
	if payload.Code == nil || payload.Message == nil {
		return StreamErrorEvent{}, false
	}
	return StreamErrorEvent{Code: *payload.Code, Message: *payload.Message, BlockID: payload.BlockID}, true
}

// readErrorMessage extracts "message" from a JSON error body.
// Returns "" when the body is missing or not of that shape.
func readErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}

	var apiErr APIError
	if err := json.Unmarshal(data, &apiErr); err != nil {
		return ""
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return apiErr.Error
}
