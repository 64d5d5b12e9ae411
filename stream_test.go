package luminote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func chunkedResponse(chunks ...string) doerFunc {
	return func(req *http.Request) (*http.Response, error) {
		r := &chunkReader{}
		for _, c := range chunks {
			r.chunks = append(r.chunks, []byte(c))
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream; charset=utf-8"}},
			Body:       io.NopCloser(r),
			Request:    req,
		}, nil
	}
}

func TestStreamTranslation_BlocksThenDone(t *testing.T) {
	srv := newSSEServer(writeFrames(
		`data: {"block_id":"b1","translation":"Bonjour","tokens_used":5}`+"\n\n",
		"event: error\n"+`data: {"code":"TRANSLATION_ERROR","message":"boom","block_id":"b2"}`+"\n\n",
		"event: block\n"+`data: {"block_id":"b3","translation":"","tokens_used":0}`+"\n\n",
		"event: done\n"+`data: {"total_tokens":5,"processing_time":1.25,"blocks_translated":2,"blocks_failed":1}`+"\n\n",
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}

	if len(rec.blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(rec.blocks))
	}
	if rec.blocks[0].BlockID != "b1" || rec.blocks[0].Translation != "Bonjour" || rec.blocks[0].TokensUsed != 5 {
		t.Errorf("first block = %+v", rec.blocks[0])
	}
	if rec.blocks[1].BlockID != "b3" || rec.blocks[1].Translation != "" {
		t.Errorf("empty translation block = %+v", rec.blocks[1])
	}

	if len(rec.errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(rec.errors))
	}
	if rec.errors[0].IsStreamLevel() || *rec.errors[0].BlockID != "b2" {
		t.Errorf("error event = %+v, want block-level error for b2", rec.errors[0])
	}

	if len(rec.done) != 1 {
		t.Fatalf("got %d done events, want 1", len(rec.done))
	}
	want := StreamDoneEvent{TotalTokens: 5, ProcessingTime: 1.25, BlocksTranslated: 2, BlocksFailed: 1}
	if rec.done[0] != want {
		t.Errorf("done = %+v, want %+v", rec.done[0], want)
	}
}

func TestStreamTranslation_SendsRequest(t *testing.T) {
	var gotReq *http.Request
	var gotBody string
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		gotReq = req
		data, _ := io.ReadAll(req.Body)
		gotBody = string(data)
		return chunkedResponse("event: done\ndata: {}\n\n").Do(req)
	})

	client := NewClient("http://translate.test/", WithHTTPClient(doer), WithHeader("X-Client", "cli"), WithLogger(discardLogger))
	if err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}

	if gotReq.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", gotReq.Method)
	}
	if gotReq.URL.String() != "http://translate.test/api/v1/translate/stream" {
		t.Errorf("url = %s", gotReq.URL)
	}
	if gotReq.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotReq.Header.Get("Content-Type"))
	}
	if gotReq.Header.Get("Accept") != "text/event-stream" {
		t.Errorf("Accept = %q", gotReq.Header.Get("Accept"))
	}
	if gotReq.Header.Get("X-Client") != "cli" {
		t.Errorf("custom header missing")
	}
	if gotReq.Header.Get("X-Request-ID") == "" {
		t.Errorf("X-Request-ID missing")
	}
	for _, field := range []string{`"content_blocks"`, `"target_language":"fr"`, `"provider":"mock"`, `"api_key":"test-key"`} {
		if !strings.Contains(gotBody, field) {
			t.Errorf("body %s missing %s", gotBody, field)
		}
	}
	if strings.Contains(gotBody, `"model"`) {
		t.Errorf("empty model should be omitted: %s", gotBody)
	}
}

func TestStreamTranslation_EndpointOverride(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"default", "", "http://base.test/api/v1/translate/stream"},
		{"path", "/v2/stream", "http://base.test/v2/stream"},
		{"absolute", "http://other.test/stream", "http://other.test/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			doer := doerFunc(func(req *http.Request) (*http.Response, error) {
				got = req.URL.String()
				return chunkedResponse("event: done\ndata: {}\n\n").Do(req)
			})
			client := NewClient("http://base.test", WithHTTPClient(doer), WithLogger(discardLogger))
			err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, &StreamOptions{Endpoint: tt.endpoint})
			if err != nil {
				t.Fatalf("StreamTranslation() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("url = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStreamTranslation_EOFWithoutDone(t *testing.T) {
	srv := newSSEServer(writeFrames(
		`data: {"block_id":"b1","translation":"Un","tokens_used":1}`+"\n\n",
		`data: {"block_id":"b2","translation":"Deux","tokens_used":1}`+"\n\n",
		`data: {"block_id":"b3","translation":"partial`,
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v, want nil on EOF", err)
	}
	if len(rec.blocks) != 2 {
		t.Errorf("got %d blocks, want 2", len(rec.blocks))
	}
	if len(rec.done) != 0 {
		t.Errorf("OnComplete called %d times, want 0", len(rec.done))
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
}

func TestStreamTranslation_MalformedFramesSkipped(t *testing.T) {
	srv := newSSEServer(writeFrames(
		"data: {not json}\n\n",
		`data: {"translation":"missing id"}`+"\n\n",
		"event: error\n"+`data: {"code":"X"}`+"\n\n",
		"event: unknown\n"+`data: {"block_id":"x","translation":"y"}`+"\n\n",
		`data: {"block_id":"b1","translation":"ok","tokens_used":2}`+"\n\n",
		"event: done\n"+`data: {"total_tokens":2}`+"\n\n",
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 1 || rec.blocks[0].BlockID != "b1" {
		t.Errorf("blocks = %+v, want only b1", rec.blocks)
	}
	if len(rec.errors) != 0 {
		t.Errorf("errors = %+v, want none", rec.errors)
	}
	if len(rec.done) != 1 {
		t.Errorf("got %d done events, want 1", len(rec.done))
	}
}

func TestStreamTranslation_DoneStopsReading(t *testing.T) {
	client := NewClient("http://base.test", WithLogger(discardLogger), WithHTTPClient(chunkedResponse(
		"event: done\ndata: {}\n\n",
		`data: {"block_id":"late","translation":"x"}`+"\n\n",
	)))

	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 0 {
		t.Errorf("events after done were dispatched: %+v", rec.blocks)
	}
}

func TestStreamTranslation_DoneInSameChunkStopsDispatch(t *testing.T) {
	client := NewClient("http://base.test", WithLogger(discardLogger), WithHTTPClient(chunkedResponse(
		"event: done\ndata: {}\n\n"+`data: {"block_id":"late","translation":"x"}`+"\n\n",
	)))

	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 0 || len(rec.done) != 1 {
		t.Errorf("blocks = %d, done = %d; want 0 and 1", len(rec.blocks), len(rec.done))
	}
}

func TestStreamTranslation_FrameSplitAcrossChunks(t *testing.T) {
	client := NewClient("http://base.test", WithLogger(discardLogger), WithHTTPClient(chunkedResponse(
		`data: {"block_id": "1", "translat`,
		`ion": "X", "tokens_used": 1}`+"\n\n",
		"event: do",
		"ne\ndata: {}\n",
		"\n",
	)))

	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(rec.blocks))
	}
	if rec.blocks[0].Translation != "X" || rec.blocks[0].TokensUsed != 1 {
		t.Errorf("block = %+v", rec.blocks[0])
	}
	if len(rec.done) != 1 {
		t.Errorf("got %d done events, want 1", len(rec.done))
	}
}

func TestStreamTranslation_UTF8SplitAcrossChunks(t *testing.T) {
	frame := []byte(`data: {"block_id":"1","translation":"こんにちは"}` + "\n\n")
	// Cut inside the first multi-byte character
	cut := strings.Index(string(frame), "こ") + 1

	client := NewClient("http://base.test", WithLogger(discardLogger), WithHTTPClient(chunkedResponse(
		string(frame[:cut]),
		string(frame[cut:]),
	)))

	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 1 || rec.blocks[0].Translation != "こんにちは" {
		t.Errorf("blocks = %+v", rec.blocks)
	}
}

func TestStreamTranslation_ClientErrorNotRetried(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusBadRequest,
		`{"error":"ValidationError","code":"VALIDATION_ERROR","message":"target_language is invalid"}`))
	defer srv.Close()

	var waits []time.Duration
	client := NewClient(srv.URL, WithLogger(discardLogger), recordSleep(&waits))
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil)

	var sce *StreamConnectionError
	if !errors.As(err, &sce) {
		t.Fatalf("error = %v, want *StreamConnectionError", err)
	}
	if sce.Message != "target_language is invalid" {
		t.Errorf("Message = %q, want the body's message", sce.Message)
	}
	if sce.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", sce.StatusCode)
	}
	if IsRetryable(err) {
		t.Error("4xx should not be retryable")
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
	if len(waits) != 0 {
		t.Errorf("backoff waits = %v, want none", waits)
	}
}

func TestStreamTranslation_ErrorBodyFallsBackToStatusText(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusNotFound, "not json"))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil)

	var sce *StreamConnectionError
	if !errors.As(err, &sce) {
		t.Fatalf("error = %v, want *StreamConnectionError", err)
	}
	if sce.Message != "Not Found" {
		t.Errorf("Message = %q, want status text", sce.Message)
	}
}

func TestStreamTranslation_RetriesServerError(t *testing.T) {
	srv := newSSEServer(
		writeStatus(http.StatusInternalServerError, `{"message":"internal"}`),
		writeFrames(
			`data: {"block_id":"b1","translation":"Salut","tokens_used":3}`+"\n\n",
			"event: done\n"+`data: {"total_tokens":3,"blocks_translated":1}`+"\n\n",
		),
	)
	defer srv.Close()

	var waits []time.Duration
	client := NewClient(srv.URL, WithLogger(discardLogger), recordSleep(&waits))
	var rec recorder
	opts := &StreamOptions{MaxRetries: intPtr(3), RetryDelay: durationPtr(10 * time.Millisecond)}
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), opts); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}

	if srv.calls.Load() != 2 {
		t.Errorf("transport called %d times, want 2", srv.calls.Load())
	}
	if len(rec.blocks) != 1 || rec.blocks[0].Translation != "Salut" {
		t.Errorf("blocks = %+v", rec.blocks)
	}
	if len(rec.done) != 1 || rec.done[0].BlocksTranslated != 1 {
		t.Errorf("done = %+v", rec.done)
	}
	if len(waits) != 1 || waits[0] != 10*time.Millisecond {
		t.Errorf("waits = %v, want [10ms]", waits)
	}
}

func TestStreamTranslation_RetryBudgetExhausted(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusServiceUnavailable, `{"message":"overloaded"}`))
	defer srv.Close()

	var waits []time.Duration
	client := NewClient(srv.URL, WithLogger(discardLogger), recordSleep(&waits))
	opts := &StreamOptions{MaxRetries: intPtr(2), RetryDelay: durationPtr(100 * time.Millisecond)}
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, opts)

	var sce *StreamConnectionError
	if !errors.As(err, &sce) {
		t.Fatalf("error = %v, want *StreamConnectionError", err)
	}
	if sce.StatusCode != http.StatusServiceUnavailable || sce.Message != "overloaded" {
		t.Errorf("error = %+v", sce)
	}
	if srv.calls.Load() != 3 {
		t.Errorf("transport called %d times, want 3", srv.calls.Load())
	}

	// Linear backoff: delay × attempt
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestStreamTranslation_ZeroRetries(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusBadGateway, ""))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger), recordSleep(new([]time.Duration)))
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, &StreamOptions{MaxRetries: intPtr(0)})
	if err == nil {
		t.Fatal("expected error")
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
}

func TestStreamTranslation_NetworkErrorRetried(t *testing.T) {
	calls := 0
	netErr := errors.New("connection refused")
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, netErr
		}
		return chunkedResponse("event: done\ndata: {}\n\n").Do(req)
	})

	client := NewClient("http://base.test", WithHTTPClient(doer), WithLogger(discardLogger), recordSleep(new([]time.Duration)))
	if err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("transport called %d times, want 2", calls)
	}
}

func TestStreamTranslation_WrongContentType(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusOK, `{"success":true}`))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger), recordSleep(new([]time.Duration)))
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil)

	if !errors.Is(err, ErrUnexpectedContentType) {
		t.Fatalf("error = %v, want ErrUnexpectedContentType", err)
	}
	if IsRetryable(err) {
		t.Error("content type mismatch should not be retryable")
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
}

func TestStreamTranslation_NilBody(t *testing.T) {
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		}, nil
	})

	client := NewClient("http://base.test", WithHTTPClient(doer), WithLogger(discardLogger), recordSleep(new([]time.Duration)))
	err := client.StreamTranslation(context.Background(), testRequest(), Handlers{}, nil)

	if !errors.Is(err, ErrNoResponseBody) {
		t.Fatalf("error = %v, want ErrNoResponseBody", err)
	}
	if calls != 1 {
		t.Errorf("transport called %d times, want 1", calls)
	}
}

func TestStreamTranslation_CancelledBeforeCall(t *testing.T) {
	srv := newSSEServer(writeFrames("event: done\ndata: {}\n\n"))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	err := client.StreamTranslation(ctx, testRequest(), Handlers{}, &StreamOptions{MaxRetries: intPtr(5)})

	var sce *StreamConnectionError
	if !errors.As(err, &sce) {
		t.Fatalf("error = %v, want *StreamConnectionError", err)
	}
	if !IsCancelled(err) {
		t.Errorf("IsCancelled(%v) = false", err)
	}
	if !strings.Contains(sce.Message, "cancelled") {
		t.Errorf("Message = %q, want cancellation message", sce.Message)
	}
	if IsRetryable(err) {
		t.Error("cancellation should not be retryable")
	}
}

func TestStreamTranslation_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newSSEServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `data: {"block_id":"b1","translation":"Un"}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	handlers := Handlers{
		OnBlock: func(BlockTranslationEvent) { cancel() },
	}
	err := client.StreamTranslation(ctx, testRequest(), handlers, &StreamOptions{MaxRetries: intPtr(3)})

	if !IsCancelled(err) {
		t.Fatalf("error = %v, want cancellation", err)
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
}

func TestStreamTranslation_CancelledDuringBackoff(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusServiceUnavailable, ""))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(srv.URL, WithLogger(discardLogger), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	err := client.StreamTranslation(ctx, testRequest(), Handlers{}, &StreamOptions{RetryDelay: durationPtr(time.Hour)})
	if !IsCancelled(err) {
		t.Fatalf("error = %v, want cancellation", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the backoff wait")
	}
	if srv.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", srv.calls.Load())
	}
}

func TestStreamTranslation_StreamLevelErrorThenDone(t *testing.T) {
	srv := newSSEServer(writeFrames(
		"event: error\n"+`data: {"code":"INTERNAL_ERROR","message":"An unexpected error occurred during translation"}`+"\n\n",
		"event: done\n"+`data: {"total_tokens":0,"blocks_translated":0,"blocks_failed":0}`+"\n\n",
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v, want nil", err)
	}
	if len(rec.errors) != 1 || !rec.errors[0].IsStreamLevel() {
		t.Errorf("errors = %+v, want one stream-level error", rec.errors)
	}
	if len(rec.done) != 1 {
		t.Errorf("got %d done events, want 1", len(rec.done))
	}
}

func TestStreamTranslation_DuplicateBlocksPassThrough(t *testing.T) {
	srv := newSSEServer(writeFrames(
		`data: {"block_id":"b1","translation":"Un"}`+"\n\n",
		`data: {"block_id":"b1","translation":"Un bis"}`+"\n\n",
		"event: done\ndata: {}\n\n",
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var rec recorder
	if err := client.StreamTranslation(context.Background(), testRequest(), rec.handlers(), nil); err != nil {
		t.Fatalf("StreamTranslation() error = %v", err)
	}
	if len(rec.blocks) != 2 {
		t.Errorf("got %d blocks, want both duplicates", len(rec.blocks))
	}
}

func TestStream_Channel(t *testing.T) {
	srv := newSSEServer(writeFrames(
		`data: {"block_id":"b1","translation":"Un"}`+"\n\n",
		"event: error\n"+`data: {"code":"TIMEOUT","message":"slow","block_id":"b2"}`+"\n\n",
		"event: done\n"+`data: {"blocks_translated":1,"blocks_failed":1}`+"\n\n",
	))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var kinds []string
	for ev := range client.Stream(context.Background(), testRequest(), nil) {
		switch {
		case ev.Block != nil:
			kinds = append(kinds, "block")
		case ev.Error != nil:
			kinds = append(kinds, "error")
		case ev.Done != nil:
			kinds = append(kinds, "done")
		case ev.Err != nil:
			t.Fatalf("unexpected failure: %v", ev.Err)
		}
	}

	if strings.Join(kinds, ",") != "block,error,done" {
		t.Errorf("event order = %v", kinds)
	}
}

func TestStream_ChannelFailure(t *testing.T) {
	srv := newSSEServer(writeStatus(http.StatusUnauthorized, `{"message":"bad key"}`))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	var last StreamEvent
	for ev := range client.Stream(context.Background(), testRequest(), nil) {
		last = ev
	}
	if last.Err == nil {
		t.Fatal("expected final event with Err")
	}
	if !IsAuthError(last.Err) {
		t.Errorf("IsAuthError(%v) = false", last.Err)
	}
}

func TestStreamTranslation_StateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		handlers []http.HandlerFunc
		retries  int
		want     []StreamState
		wantErr  bool
	}{
		{
			name:     "completes",
			handlers: []http.HandlerFunc{writeFrames("event: done\ndata: {}\n\n")},
			want:     []StreamState{StateIdle, StateConnecting, StateStreaming, StateCompleted},
		},
		{
			name: "retries then completes",
			handlers: []http.HandlerFunc{
				writeStatus(http.StatusBadGateway, ""),
				writeFrames("event: done\ndata: {}\n\n"),
			},
			retries: 1,
			want: []StreamState{
				StateIdle, StateConnecting, StateRetrying,
				StateConnecting, StateStreaming, StateCompleted,
			},
		},
		{
			name:     "client error fails",
			handlers: []http.HandlerFunc{writeStatus(http.StatusBadRequest, `{"message":"bad"}`)},
			retries:  3,
			want:     []StreamState{StateIdle, StateConnecting, StateFailed},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSSEServer(tt.handlers...)
			defer srv.Close()

			rec := &stateRecorder{}
			client := NewClient(srv.URL, WithLogger(slog.New(rec)))
			err := client.StreamTranslation(context.Background(), testRequest(), Handlers{},
				&StreamOptions{MaxRetries: intPtr(tt.retries), RetryDelay: durationPtr(0)})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}

			got := rec.Sequence()
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("states = %v, want %v", got, tt.want)
			}
			for i, s := range got {
				if s.IsTerminal() != (i == len(got)-1) {
					t.Errorf("state %d (%s): IsTerminal() = %v", i, s, s.IsTerminal())
				}
			}
		})
	}
}

func TestStream_CancelDeliversFinalError(t *testing.T) {
	srv := newSSEServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 40; i++ {
			fmt.Fprintf(w, `data: {"block_id":"b%d","translation":"t"}`+"\n\n", i)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(srv.URL, WithLogger(discardLogger))
	ch := client.Stream(ctx, testRequest(), &StreamOptions{MaxRetries: intPtr(0)})

	// Wait until the consumer side is backed up, then cancel without reading.
	deadline := time.Now().Add(5 * time.Second)
	for len(ch) < cap(ch) {
		if time.Now().After(deadline) {
			t.Fatalf("channel never filled: %d of %d", len(ch), cap(ch))
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	time.Sleep(100 * time.Millisecond)

	var last StreamEvent
	for ev := range ch {
		last = ev
	}
	if last.Err == nil {
		t.Fatal("channel closed without a final Err event")
	}
	if !IsCancelled(last.Err) {
		t.Errorf("IsCancelled(%v) = false", last.Err)
	}
}

func TestStreamOptions_Defaults(t *testing.T) {
	var opts *StreamOptions
	if opts.GetMaxRetries() != 3 {
		t.Errorf("GetMaxRetries() = %d, want 3", opts.GetMaxRetries())
	}
	if opts.GetRetryDelay() != time.Second {
		t.Errorf("GetRetryDelay() = %v, want 1s", opts.GetRetryDelay())
	}

	opts = &StreamOptions{MaxRetries: intPtr(0), RetryDelay: durationPtr(0)}
	if opts.GetMaxRetries() != 0 {
		t.Errorf("explicit zero retries not honoured")
	}
	if opts.GetRetryDelay() != 0 {
		t.Errorf("explicit zero delay not honoured")
	}
}
