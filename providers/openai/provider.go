package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haowjy/luminote-go"
)

const (
	temperature     = 0.3
	requestTimeout  = 30 * time.Second
	validateTimeout = 10 * time.Second
)

// Provider implements luminote.Translator over the Chat Completions API.
// The base URL can point at any OpenAI-compatible endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	catalog    *luminote.Catalog
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a different API host.
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

// NewProvider creates a new OpenAI provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{catalog: luminote.DefaultCatalog()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() luminote.ProviderID {
	return luminote.ProviderOpenAI
}

// SupportsModel returns true for GPT and o-series chat models.
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

// Translate translates text with one chat completion.
func (p *Provider) Translate(ctx context.Context, in *luminote.TranslateInput) (*luminote.TranslationResult, error) {
	model := p.catalog.ResolveModel(p.Name(), in.Model)
	if err := p.checkKey(in.APIKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client := p.newClient(in.APIKey)
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(in.Instruction()),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, p.mapError(ctx, model, err)
	}

	if len(completion.Choices) == 0 {
		return nil, luminote.NewProviderFailure(p.Name(), model, "Unexpected API response format: no choices", false, nil)
	}

	return &luminote.TranslationResult{
		TranslatedText: strings.TrimSpace(completion.Choices[0].Message.Content),
		TokensUsed:     int(completion.Usage.TotalTokens),
		Model:          model,
		Provider:       p.Name(),
	}, nil
}

// Validate checks the key with a minimal completion.
func (p *Provider) Validate(ctx context.Context, model, apiKey string) (*luminote.ValidationResult, error) {
	model = p.catalog.ResolveModel(p.Name(), model)
	if err := p.checkKey(apiKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	client := p.newClient(apiKey)
	_, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Hi")},
		MaxTokens:   openai.Int(5),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, p.mapError(ctx, model, err)
	}

	caps, known := p.catalog.Capabilities(p.Name(), model)
	if !known {
		slog.Warn("unknown model, using fallback capabilities",
			"provider", p.Name().String(), "model", model, "max_tokens", caps.MaxTokens)
	}
	return &luminote.ValidationResult{
		Valid:        true,
		Provider:     p.Name(),
		Model:        model,
		Capabilities: caps,
	}, nil
}

func (p *Provider) checkKey(apiKey string) error {
	if apiKey == "" || !p.catalog.CheckKeyPrefix(p.Name(), apiKey) {
		return luminote.NewAPIKeyError(p.Name(), "Invalid API key format (must start with 'sk-')")
	}
	return nil
}

func (p *Provider) newClient(apiKey string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	return openai.NewClient(opts...)
}

func (p *Provider) mapError(ctx context.Context, model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return luminote.NewProviderHTTPError(p.Name(), model, apiErr.StatusCode, header, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("openai: %w", ctxErr)
	}

	return luminote.NewProviderFailure(p.Name(), model, fmt.Sprintf("Unexpected error: %v", err), true, err)
}
