package luminote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// Test helper functions shared across test files

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

// sseServer serves each request with the next handler in order, repeating
// the last one. It counts requests.
type sseServer struct {
	*httptest.Server
	calls    atomic.Int32
	handlers []http.HandlerFunc
}

func newSSEServer(handlers ...http.HandlerFunc) *sseServer {
	s := &sseServer{handlers: handlers}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1))
		idx := min(n, len(s.handlers)) - 1
		s.handlers[idx](w, r)
	}))
	return s
}

// writeFrames responds 200 text/event-stream with the given raw text.
func writeFrames(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// writeStatus responds with a JSON error body.
func writeStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

// recorder collects handler callbacks.
type recorder struct {
	mu     sync.Mutex
	blocks []BlockTranslationEvent
	errors []StreamErrorEvent
	done   []StreamDoneEvent
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnBlock: func(ev BlockTranslationEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.blocks = append(r.blocks, ev)
		},
		OnError: func(ev StreamErrorEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, ev)
		},
		OnComplete: func(ev StreamDoneEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.done = append(r.done, ev)
		},
	}
}

// recordSleep returns a sleep hook that records requested waits without waiting.
func recordSleep(waits *[]time.Duration) ClientOption {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	})
}

// doerFunc adapts a function to HTTPDoer.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testRequest() *TranslationStreamRequest {
	return &TranslationStreamRequest{
		ContentBlocks: []ContentBlock{
			{ID: "b1", Type: BlockTypeParagraph, Text: "Hello"},
			{ID: "b2", Type: BlockTypeHeading, Text: "World"},
		},
		TargetLanguage: "fr",
		Provider:       ProviderMock,
		APIKey:         "test-key",
	}
}

// stateRecorder is a slog.Handler that keeps the "state" attribute of every
// record, so tests can follow a stream's lifecycle.
type stateRecorder struct {
	mu     sync.Mutex
	states []StreamState
}

func (h *stateRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *stateRecorder) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "state" {
			h.mu.Lock()
			h.states = append(h.states, StreamState(a.Value.String()))
			h.mu.Unlock()
		}
		return true
	})
	return nil
}

func (h *stateRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *stateRecorder) WithGroup(string) slog.Handler      { return h }

func (h *stateRecorder) Sequence() []StreamState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StreamState(nil), h.states...)
}
