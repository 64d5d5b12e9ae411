package luminote

import (
	"fmt"
	"net/url"
	"strings"
)

// RequestRule checks one aspect of a translation request.
type RequestRule interface {
	// Name returns a human-readable name for this rule
	Name() string

	// Check returns a *ValidationError, or nil if the request passes
	Check(req *TranslationStreamRequest) error
}

// DefaultRequestRules are the rules applied by TranslationStreamRequest.Validate.
var DefaultRequestRules = []RequestRule{
	contentBlocksRule{},
	targetLanguageRule{},
	providerRule{},
	apiKeyRule{},
	documentURLRule{},
}

// NewValidationError builds a ValidationError wrapping ErrInvalidRequest.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason, Err: ErrInvalidRequest}
}

// Validate checks the request against DefaultRequestRules and returns the
// first failure. Call Normalize first: language and provider are compared
// in lower case.
func (r *TranslationStreamRequest) Validate() error {
	return ValidateRequest(r, DefaultRequestRules...)
}

// ValidateRequest runs rules in order and returns the first failure.
func ValidateRequest(req *TranslationStreamRequest, rules ...RequestRule) error {
	if req == nil {
		return NewValidationError("request", nil, "request body is required")
	}
	for _, rule := range rules {
		if err := rule.Check(req); err != nil {
			return err
		}
	}
	return nil
}

// Normalize returns a copy with the target language and provider trimmed
// and lower-cased.
func (r TranslationStreamRequest) Normalize() TranslationStreamRequest {
	r.TargetLanguage = strings.ToLower(strings.TrimSpace(r.TargetLanguage))
	r.Provider = r.Provider.Normalize()
	r.Model = strings.TrimSpace(r.Model)
	r.TemplateID = strings.TrimSpace(r.TemplateID)
	r.DocumentURL = strings.TrimSpace(r.DocumentURL)
	return r
}

type contentBlocksRule struct{}

func (contentBlocksRule) Name() string { return "content_blocks" }

func (contentBlocksRule) Check(req *TranslationStreamRequest) error {
	if len(req.ContentBlocks) == 0 {
		return NewValidationError("content_blocks", nil, "at least one content block is required")
	}

	seen := make(map[string]struct{}, len(req.ContentBlocks))
	for i, block := range req.ContentBlocks {
		field := fmt.Sprintf("content_blocks[%d]", i)

		if block.ID == "" {
			return NewValidationError(field+".id", block.ID, "block id must not be empty")
		}
		if _, dup := seen[block.ID]; dup {
			return NewValidationError(field+".id", block.ID, fmt.Sprintf("duplicate block id %q", block.ID))
		}
		seen[block.ID] = struct{}{}

		if !block.Type.IsValid() {
			return NewValidationError(field+".type", block.Type,
				"block type must be one of paragraph, heading, list, quote, code")
		}
		if block.Text == "" {
			return NewValidationError(field+".text", block.Text, "block text must not be empty")
		}
	}
	return nil
}

type targetLanguageRule struct{}

func (targetLanguageRule) Name() string { return "target_language" }

// Check accepts a two-letter ISO 639-1 code.
func (targetLanguageRule) Check(req *TranslationStreamRequest) error {
	lang := req.TargetLanguage
	if len(lang) != 2 {
		return NewValidationError("target_language", lang, "target language must be a 2-letter ISO 639-1 code")
	}
	for i := 0; i < len(lang); i++ {
		if lang[i] < 'a' || lang[i] > 'z' {
			return NewValidationError("target_language", lang, "target language must contain only lowercase letters")
		}
	}
	return nil
}

type providerRule struct{}

func (providerRule) Name() string { return "provider" }

func (providerRule) Check(req *TranslationStreamRequest) error {
	if !req.Provider.IsValid() {
		return NewValidationError("provider", req.Provider.String(), "provider must be one of anthropic, openai, mock")
	}
	return nil
}

type apiKeyRule struct{}

func (apiKeyRule) Name() string { return "api_key" }

func (apiKeyRule) Check(req *TranslationStreamRequest) error {
	if strings.TrimSpace(req.APIKey) == "" {
		return NewValidationError("api_key", "", "API key must not be empty")
	}
	return nil
}

type documentURLRule struct{}

func (documentURLRule) Name() string { return "document_url" }

// Check accepts an empty URL or an absolute http(s) URL.
func (documentURLRule) Check(req *TranslationStreamRequest) error {
	if req.DocumentURL == "" {
		return nil
	}
	if !IsHTTPURL(req.DocumentURL) {
		return NewValidationError("document_url", req.DocumentURL, "document URL must be an absolute http or https URL")
	}
	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
