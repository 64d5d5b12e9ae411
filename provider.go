package luminote

import (
	"context"
)

// Translator defines the interface that all translation providers must implement.
// This abstraction allows supporting multiple providers (Anthropic, OpenAI, the
// mock provider) behind one serving path.
type Translator interface {
	// Translate translates a single piece of text (blocking).
	// Failures should be returned as *TranslationError so the serving side can
	// report a code and message per block.
	Translate(ctx context.Context, in *TranslateInput) (*TranslationResult, error)

	// Validate checks the API key with a minimal provider call and returns
	// the model's capabilities.
	Validate(ctx context.Context, model, apiKey string) (*ValidationResult, error)

	// Name returns the provider identifier (e.g., "anthropic", "openai", "mock")
	Name() ProviderID

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// TranslateInput contains the parameters for one translation call.
type TranslateInput struct {
	Text           string
	TargetLanguage string // ISO 639-1
	Model          string
	APIKey         string

	// Prompt replaces the default instruction when set. It is a rendered
	// prompt template and already contains Text.
	Prompt string
}

// Instruction returns the user message to send to an LLM provider.
func (in *TranslateInput) Instruction() string {
	if in.Prompt != "" {
		return in.Prompt
	}
	return BuildTranslationPrompt(in.Text, in.TargetLanguage)
}

// TranslationResult is the outcome of one translation call.
type TranslationResult struct {
	TranslatedText string
	TokensUsed     int
	Model          string
	Provider       ProviderID
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	Streaming bool `json:"streaming" yaml:"streaming"`
	MaxTokens int  `json:"max_tokens" yaml:"max_tokens"`
}

// ValidationResult is the outcome of a configuration check.
type ValidationResult struct {
	Valid        bool
	Provider     ProviderID
	Model        string
	Capabilities ModelCapabilities
}

// EstimateTokens is the rough 4-characters-per-token estimate used when a
// provider does not report usage.
func EstimateTokens(text string) int {
	return max(1, len(text)/4)
}
