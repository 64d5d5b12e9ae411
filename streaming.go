package luminote

// SSE event type names used on the wire.
const (
	EventTypeMessage = "message" // default when a frame has no event: line
	EventTypeBlock   = "block"
	EventTypeError   = "error"
	EventTypeDone    = "done"
)

// StreamEvent represents a single event delivered by Client.Stream.
// Exactly one field is set per event.
type StreamEvent struct {
	// Block is a translated block (nil if error/done/failure)
	Block *BlockTranslationEvent

	// Error is an error frame reported by the server (nil otherwise).
	// Per-block errors do not end the stream.
	Error *StreamErrorEvent

	// Done is the terminal summary (nil until the end)
	Done *StreamDoneEvent

	// Err is set when the stream call itself failed, after retries.
	// It is always a *StreamConnectionError and is the last event on the channel.
	Err error
}

// StreamState is the lifecycle state of one streaming invocation.
type StreamState string

// Stream states
const (
	StateIdle       StreamState = "idle"
	StateConnecting StreamState = "connecting"
	StateStreaming  StreamState = "streaming"
	StateRetrying   StreamState = "retrying"
	StateCompleted  StreamState = "completed"
	StateFailed     StreamState = "failed"
)

// IsTerminal returns true for Completed and Failed.
func (s StreamState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Handlers receives stream events synchronously, in frame order.
// Nil callbacks are skipped.
type Handlers struct {
	OnBlock    func(BlockTranslationEvent)
	OnError    func(StreamErrorEvent)
	OnComplete func(StreamDoneEvent)
}

func (h Handlers) block(ev BlockTranslationEvent) {
	if h.OnBlock != nil {
		h.OnBlock(ev)
	}
}

func (h Handlers) error(ev StreamErrorEvent) {
	if h.OnError != nil {
		h.OnError(ev)
	}
}

func (h Handlers) complete(ev StreamDoneEvent) {
	if h.OnComplete != nil {
		h.OnComplete(ev)
	}
}
