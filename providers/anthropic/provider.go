package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haowjy/luminote-go"
)

// Request tuning
const (
	maxTokens       = 4096
	temperature     = 0.3 // lower temperature for more consistent translations
	requestTimeout  = 30 * time.Second
	validateTimeout = 10 * time.Second
)

// Provider implements luminote.Translator for Anthropic (Claude) models.
// Keys are supplied per call (BYOK), so a client is built for each request.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	catalog    *luminote.Catalog
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a different API host (tests, proxies).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new Anthropic provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{catalog: luminote.DefaultCatalog()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() luminote.ProviderID {
	return luminote.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Translate translates text with a single Messages call.
func (p *Provider) Translate(ctx context.Context, in *luminote.TranslateInput) (*luminote.TranslationResult, error) {
	model := p.catalog.ResolveModel(p.Name(), in.Model)
	if err := p.checkKey(in.APIKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client := p.newClient(in.APIKey)
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				in.Instruction(),
			)),
		},
	})
	if err != nil {
		return nil, p.mapError(ctx, model, err)
	}

	text, ok := firstText(message)
	if !ok {
		return nil, luminote.NewProviderFailure(p.Name(), model, "Unexpected API response format: no text content", false, nil)
	}

	return &luminote.TranslationResult{
		TranslatedText: strings.TrimSpace(text),
		TokensUsed:     int(message.Usage.InputTokens + message.Usage.OutputTokens),
		Model:          model,
		Provider:       p.Name(),
	}, nil
}

// Validate checks the key with a minimal 5-token request.
func (p *Provider) Validate(ctx context.Context, model, apiKey string) (*luminote.ValidationResult, error) {
	model = p.catalog.ResolveModel(p.Name(), model)
	if err := p.checkKey(apiKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	client := p.newClient(apiKey)
	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 5,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Hi")),
		},
	})
	if err != nil {
		return nil, p.mapError(ctx, model, err)
	}

	caps, _ := p.catalog.Capabilities(p.Name(), model)
	return &luminote.ValidationResult{
		Valid:        true,
		Provider:     p.Name(),
		Model:        model,
		Capabilities: caps,
	}, nil
}

func (p *Provider) checkKey(apiKey string) error {
	if apiKey == "" || !p.catalog.CheckKeyPrefix(p.Name(), apiKey) {
		return luminote.NewAPIKeyError(p.Name(), "Invalid API key format (must start with 'sk-ant-')")
	}
	return nil
}

func (p *Provider) newClient(apiKey string) anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are owned by the caller's stream policy
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	return anthropic.NewClient(opts...)
}

// mapError converts SDK errors to *luminote.TranslationError. Context
// errors pass through so the caller can tell a timeout from a failure.
func (p *Provider) mapError(ctx context.Context, model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return luminote.NewProviderHTTPError(p.Name(), model, apiErr.StatusCode, header, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("anthropic: %w", ctxErr)
	}

	return luminote.NewProviderFailure(p.Name(), model, fmt.Sprintf("Unexpected error: %v", err), true, err)
}

func firstText(message *anthropic.Message) (string, bool) {
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, true
		}
	}
	return "", false
}
