package luminote

// BlockType identifies the kind of content a block holds.
type BlockType string

// Block type constants
const (
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeHeading   BlockType = "heading"
	BlockTypeList      BlockType = "list"
	BlockTypeQuote     BlockType = "quote"
	BlockTypeCode      BlockType = "code"

	// BlockTypeImage is produced by extraction only. Its text is the alt
	// text or caption, and it is not accepted for translation.
	BlockTypeImage BlockType = "image"
)

// IsValid returns true if the block type is one of the translatable types
func (t BlockType) IsValid() bool {
	switch t {
	case BlockTypeParagraph, BlockTypeHeading, BlockTypeList, BlockTypeQuote, BlockTypeCode:
		return true
	default:
		return false
	}
}

// ContentBlock is one unit of translatable content.
// The ID is stable and is what translated results are correlated by.
type ContentBlock struct {
	// ID uniquely identifies the block within a request
	ID string `json:"id"`

	// Type is the block's structural role (paragraph, heading, ...)
	Type BlockType `json:"type"`

	// Text is the source text to translate
	Text string `json:"text"`

	// Metadata is opaque to the stream; it is echoed back by the
	// non-streaming endpoint with translation metadata merged in.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TranslationStreamRequest is the outbound payload of a streaming translation.
// Block order is preserved on the wire, but results correlate by block ID.
type TranslationStreamRequest struct {
	// ContentBlocks lists the blocks to translate, in document order
	ContentBlocks []ContentBlock `json:"content_blocks"`

	// TargetLanguage is an ISO 639-1 code (e.g., "fr")
	TargetLanguage string `json:"target_language"`

	// Provider selects the translation backend (e.g., "anthropic", "openai", "mock")
	Provider ProviderID `json:"provider"`

	// Model optionally pins a provider model; the provider default is used when empty
	Model string `json:"model,omitempty"`

	// APIKey is the caller's own provider credential (BYOK), passed through opaquely
	APIKey string `json:"api_key"`

	// TemplateID optionally selects a prompt template ("professional", "casual", ...)
	TemplateID string `json:"template_id,omitempty"`

	// TemplateVariables fills the template's optional variables (context, terminology, style)
	TemplateVariables map[string]string `json:"template_variables,omitempty"`

	// DocumentURL, when set, records the finished translation as a new
	// version of that document
	DocumentURL string `json:"document_url,omitempty"`
}

// BlockTranslationEvent is emitted once per successfully translated block.
type BlockTranslationEvent struct {
	BlockID     string `json:"block_id"`
	Translation string `json:"translation"` // may be empty, never absent on the wire
	TokensUsed  int    `json:"tokens_used"`
}

// StreamErrorEvent reports a failure inside the stream.
// A nil BlockID means the error concerns the whole stream.
type StreamErrorEvent struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	BlockID *string `json:"block_id,omitempty"`
}

// IsStreamLevel returns true if the error is not tied to a single block.
func (e StreamErrorEvent) IsStreamLevel() bool {
	return e.BlockID == nil
}

// StreamDoneEvent is the terminal summary of a stream.
type StreamDoneEvent struct {
	TotalTokens      int     `json:"total_tokens"`
	ProcessingTime   float64 `json:"processing_time"` // seconds
	BlocksTranslated int     `json:"blocks_translated"`
	BlocksFailed     int     `json:"blocks_failed"`
}

// TranslatedBlock is a content block carrying translated text.
// Returned by the non-streaming translate endpoint.
type TranslatedBlock struct {
	ID       string         `json:"id"`
	Type     BlockType      `json:"type"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
