// Package service translates content blocks through the provider registry,
// for both the blocking and the streaming endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/cache"
	"github.com/haowjy/luminote-go/internal/requestid"
	"github.com/haowjy/luminote-go/internal/templates"
	"github.com/haowjy/luminote-go/internal/versions"
)

// DefaultBlockTimeout bounds one block's translation in a stream.
const DefaultBlockTimeout = 120 * time.Second

// Sink receives stream frames in order. An empty event name is a
// data-only (message) frame.
type Sink interface {
	Send(event string, data any) error
}

// Service runs translations.
type Service struct {
	registry     *luminote.Registry
	catalog      *luminote.Catalog
	cache        cache.Cache
	templates    *templates.Engine
	versions     versions.Store // nil when version history is off
	logger       *slog.Logger
	blockTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables translation caching.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithCatalog replaces the provider catalog used to resolve default models.
func WithCatalog(c *luminote.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithTemplates sets the prompt template engine.
func WithTemplates(e *templates.Engine) Option {
	return func(s *Service) {
		s.templates = e
	}
}

// WithVersions records every translated document that names a
// document_url in store.
func WithVersions(store versions.Store) Option {
	return func(s *Service) {
		s.versions = store
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithBlockTimeout sets the per-block timeout for streams.
func WithBlockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.blockTimeout = d
		}
	}
}

// New creates a Service over registry.
func New(registry *luminote.Registry, opts ...Option) *Service {
	s := &Service{
		registry:     registry,
		catalog:      luminote.DefaultCatalog(),
		cache:        cache.Nop{},
		templates:    templates.New(),
		logger:       slog.Default(),
		blockTimeout: DefaultBlockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TranslateBlock translates one block and returns it with translation
// metadata (provider, model, tokens_used) merged over the block's own.
func (s *Service) TranslateBlock(ctx context.Context, block luminote.ContentBlock, req *luminote.TranslationStreamRequest) (*luminote.TranslatedBlock, error) {
	translator, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := s.translate(ctx, translator, block, req)
	if err != nil {
		return nil, err
	}
	return translatedBlock(block, result), nil
}

// TranslateBlocks translates every block in order. The first failure aborts
// the whole request.
func (s *Service) TranslateBlocks(ctx context.Context, req *luminote.TranslationStreamRequest) ([]luminote.TranslatedBlock, error) {
	translator, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	blocks := make([]luminote.TranslatedBlock, 0, len(req.ContentBlocks))
	for _, block := range req.ContentBlocks {
		result, err := s.translate(ctx, translator, block, req)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *translatedBlock(block, result))
	}

	saved := make([]versions.Block, len(blocks))
	for i, b := range blocks {
		saved[i] = versionBlock(req.ContentBlocks[i], b.Text, b.Metadata)
	}
	s.saveVersion(ctx, req, translator.Name(), saved)
	return blocks, nil
}

// StreamBlocks translates blocks one at a time and sends a frame per block:
// a data-only block frame on success, or an error frame carrying the
// block id on a timeout or provider failure, after which it moves on.
// When every block is done it sends the done summary.
//
// An error that is not a provider failure ends the stream with a
// stream-level INTERNAL_ERROR frame and no done frame. If ctx ends (client
// gone) or the sink fails, StreamBlocks stops and returns that error.
func (s *Service) StreamBlocks(ctx context.Context, req *luminote.TranslationStreamRequest, sink Sink) (luminote.StreamDoneEvent, error) {
	start := time.Now()
	logger := s.logger.With(
		"request_id", requestid.FromContext(ctx),
		"provider", req.Provider.String(),
	)

	var (
		summary luminote.StreamDoneEvent
		saved   []versions.Block
	)

	translator, err := s.registry.Get(req.Provider)
	if err != nil {
		return summary, err
	}

	for _, block := range req.ContentBlocks {
		if err := ctx.Err(); err != nil {
			logger.Info("client disconnected during streaming translation",
				"translated_blocks", summary.BlocksTranslated,
				"total_blocks", len(req.ContentBlocks),
			)
			return summary, err
		}

		blockCtx, cancel := context.WithTimeout(ctx, s.blockTimeout)
		result, err := s.translate(blockCtx, translator, block, req)
		timedOut := errors.Is(blockCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			summary.TotalTokens += result.TokensUsed
			summary.BlocksTranslated++
			saved = append(saved, versionBlock(block, result.TranslatedText, map[string]any{
				"provider":    result.Provider.String(),
				"model":       result.Model,
				"tokens_used": result.TokensUsed,
			}))
			ev := luminote.BlockTranslationEvent{
				BlockID:     block.ID,
				Translation: result.TranslatedText,
				TokensUsed:  result.TokensUsed,
			}
			if err := sink.Send("", ev); err != nil {
				return summary, err
			}
			continue
		}

		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		blockID := block.ID
		var te *luminote.TranslationError
		switch {
		case timedOut:
			summary.BlocksFailed++
			logger.Warn("translation timed out", "block_id", block.ID, "timeout", s.blockTimeout)
			ev := luminote.StreamErrorEvent{
				Code:    string(luminote.ErrorCodeTimeout),
				Message: fmt.Sprintf("Translation timed out after %s", formatSeconds(s.blockTimeout)),
				BlockID: &blockID,
			}
			if err := sink.Send(luminote.EventTypeError, ev); err != nil {
				return summary, err
			}

		case errors.As(err, &te):
			summary.BlocksFailed++
			logger.Error("translation failed", "block_id", block.ID, "error_code", te.Code, "error", err)
			ev := luminote.StreamErrorEvent{
				Code:    string(te.Code),
				Message: te.Message,
				BlockID: &blockID,
			}
			if err := sink.Send(luminote.EventTypeError, ev); err != nil {
				return summary, err
			}

		default:
			logger.Error("unexpected error in translation stream",
				"block_id", block.ID,
				"translated_blocks", summary.BlocksTranslated,
				"error", err,
			)
			ev := luminote.StreamErrorEvent{
				Code:    string(luminote.ErrorCodeInternal),
				Message: "An unexpected error occurred during translation",
			}
			return summary, sink.Send(luminote.EventTypeError, ev)
		}
	}

	summary.ProcessingTime = math.Round(time.Since(start).Seconds()*100) / 100
	if err := sink.Send(luminote.EventTypeDone, summary); err != nil {
		return summary, err
	}

	logger.Info("translation stream completed",
		"blocks_translated", summary.BlocksTranslated,
		"blocks_failed", summary.BlocksFailed,
		"total_tokens", summary.TotalTokens,
		"processing_time", summary.ProcessingTime,
	)
	s.saveVersion(ctx, req, translator.Name(), saved)
	return summary, nil
}

// ValidateConfig checks a provider key and returns the model's capabilities.
func (s *Service) ValidateConfig(ctx context.Context, provider luminote.ProviderID, model, apiKey string) (*luminote.ValidationResult, error) {
	translator, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	return translator.Validate(ctx, s.catalog.ResolveModel(provider, model), apiKey)
}

// HasProvider reports whether the provider is registered.
func (s *Service) HasProvider(id luminote.ProviderID) bool {
	return s.registry.Has(id)
}

// Providers returns the registered provider names.
func (s *Service) Providers() []string {
	return s.registry.Names()
}

// Templates returns the prompt template engine.
func (s *Service) Templates() *templates.Engine {
	return s.templates
}

// Versions returns the version store, or nil when history is off.
func (s *Service) Versions() versions.Store {
	return s.versions
}

// CacheStats reports translation cache statistics.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.cache.Stats(ctx)
}

// translate runs one block through the cache and the provider.
// Cache failures are logged and otherwise ignored.
func (s *Service) translate(ctx context.Context, translator luminote.Translator, block luminote.ContentBlock, req *luminote.TranslationStreamRequest) (*luminote.TranslationResult, error) {
	model := s.catalog.ResolveModel(translator.Name(), req.Model)
	prompt, err := s.prompt(block, req)
	if err != nil {
		return nil, err
	}
	key := cache.Key{
		Provider: translator.Name().String(),
		Model:    model,
		Language: req.TargetLanguage,
		Text:     block.Text,
		Prompt:   prompt,
	}

	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache lookup failed", "block_id", block.ID, "error", err)
	} else if ok {
		return &luminote.TranslationResult{
			TranslatedText: entry.Translation,
			TokensUsed:     entry.TokensUsed,
			Model:          model,
			Provider:       translator.Name(),
		}, nil
	}

	result, err := translator.Translate(ctx, &luminote.TranslateInput{
		Text:           block.Text,
		TargetLanguage: req.TargetLanguage,
		Model:          model,
		APIKey:         req.APIKey,
		Prompt:         prompt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, key, cache.Entry{Translation: result.TranslatedText, TokensUsed: result.TokensUsed}); err != nil {
		s.logger.Warn("cache store failed", "block_id", block.ID, "error", err)
	}
	return result, nil
}

// prompt renders the request's template for one block. It returns "" when
// the request names no template, so the provider uses the default instruction.
func (s *Service) prompt(block luminote.ContentBlock, req *luminote.TranslationStreamRequest) (string, error) {
	if req.TemplateID == "" {
		return "", nil
	}
	vars := make(map[string]string, len(req.TemplateVariables)+2)
	maps.Copy(vars, req.TemplateVariables)
	vars[luminote.PromptVarText] = block.Text
	vars[luminote.PromptVarTargetLanguage] = req.TargetLanguage

	out, _, err := s.templates.Render(req.TemplateID, vars)
	return out, err
}

// saveVersion records the translated blocks of a document. Failures are
// logged; the translation itself already succeeded.
func (s *Service) saveVersion(ctx context.Context, req *luminote.TranslationStreamRequest, provider luminote.ProviderID, blocks []versions.Block) {
	if s.versions == nil || req.DocumentURL == "" || len(blocks) == 0 {
		return
	}
	v := &versions.Version{
		DocumentURL: req.DocumentURL,
		Blocks:      blocks,
		Metadata: versions.Metadata{
			Provider:          provider.String(),
			Model:             s.catalog.ResolveModel(provider, req.Model),
			TargetLanguage:    req.TargetLanguage,
			TemplateID:        req.TemplateID,
			TemplateVariables: req.TemplateVariables,
		},
	}
	if err := s.versions.Save(context.WithoutCancel(ctx), v); err != nil {
		s.logger.Warn("failed to save translation version",
			"request_id", requestid.FromContext(ctx),
			"document_url", req.DocumentURL,
			"error", err,
		)
		return
	}
	s.logger.Debug("translation version saved", "version_id", v.ID, "document_url", req.DocumentURL)
}

func versionBlock(block luminote.ContentBlock, translation string, metadata map[string]any) versions.Block {
	return versions.Block{
		ID:             block.ID,
		Type:           block.Type,
		OriginalText:   block.Text,
		TranslatedText: translation,
		Metadata:       metadata,
	}
}

func translatedBlock(block luminote.ContentBlock, result *luminote.TranslationResult) *luminote.TranslatedBlock {
	metadata := make(map[string]any, len(block.Metadata)+3)
	maps.Copy(metadata, block.Metadata)
	metadata["provider"] = result.Provider.String()
	metadata["model"] = result.Model
	metadata["tokens_used"] = result.TokensUsed

	return &luminote.TranslatedBlock{
		ID:       block.ID,
		Type:     block.Type,
		Text:     result.TranslatedText,
		Metadata: metadata,
	}
}

// formatSeconds renders d as "120s" or "0.05s".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
