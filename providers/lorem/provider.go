// Package lorem is the offline mock translation provider (provider ID "mock").
// It never touches the network, so the full stream path can be exercised
// without API keys.
package lorem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	"github.com/haowjy/luminote-go"
)

// DefaultModel is reported when a request names no model.
const DefaultModel = "mock-model"

// Provider is a mock translator.
//
// By default it returns the source text prefixed with the upper-cased
// language code ("[FR] Hello"). The model name switches on extra behavior:
//   - contains "lorem": the translation is lorem ipsum of similar length
//   - contains "slow" / "fast": per-block latency of 500ms / 33ms
//   - contains "fail": blocks whose text contains "fail" return TRANSLATION_ERROR
type Provider struct {
	generator *loremgen.Lorem
	mu        sync.Mutex // generator is not safe for concurrent use
	logger    *slog.Logger
}

// NewProvider creates a new mock provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
		logger:    slog.Default().With("provider", luminote.ProviderMock.String()),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() luminote.ProviderID {
	return luminote.ProviderMock
}

// SupportsModel returns true for any model: the mock ignores model names it
// does not recognise.
func (p *Provider) SupportsModel(model string) bool {
	return true
}

// Translate returns a deterministic fake translation.
func (p *Provider) Translate(ctx context.Context, in *luminote.TranslateInput) (*luminote.TranslationResult, error) {
	model := in.Model
	if model == "" {
		model = DefaultModel
	}

	if delay := blockDelay(model); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if strings.Contains(model, "fail") && strings.Contains(strings.ToLower(in.Text), "fail") {
		p.logger.Debug("simulated failure", "model", model)
		return nil, luminote.NewProviderFailure(p.Name(), model, "simulated failure", false, nil)
	}

	prefix := fmt.Sprintf("[%s] ", strings.ToUpper(in.TargetLanguage))
	text := in.Text
	if strings.Contains(model, "lorem") {
		text = p.generateTextWords(len(strings.Fields(in.Text)))
	}

	return &luminote.TranslationResult{
		TranslatedText: prefix + text,
		TokensUsed:     luminote.EstimateTokens(in.Text),
		Model:          model,
		Provider:       p.Name(),
	}, nil
}

// Validate always succeeds.
func (p *Provider) Validate(ctx context.Context, model, apiKey string) (*luminote.ValidationResult, error) {
	if model == "" {
		model = DefaultModel
	}
	caps, _ := luminote.DefaultCatalog().Capabilities(p.Name(), model)
	return &luminote.ValidationResult{
		Valid:        true,
		Provider:     p.Name(),
		Model:        model,
		Capabilities: caps,
	}, nil
}

// blockDelay returns the simulated latency per block.
// - slow: 500ms
// - fast: 33ms
// - default: none
func blockDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	return 0
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (p *Provider) generateTextWords(targetWords int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if targetWords <= 0 {
		return p.generator.Sentence(1, 3)
	}

	var sb strings.Builder
	wordCount := 0
	for wordCount < targetWords {
		// Short sentences keep the length close to the source
		sentence := p.generator.Sentence(1, max(1, min(15, targetWords-wordCount)))
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}
	return strings.TrimSpace(sb.String())
}
