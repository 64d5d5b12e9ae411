// Package extract turns a web page into translatable content blocks: it
// fetches the URL, isolates the article with readability and splits the
// cleaned HTML into blocks.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/requestid"
)

const (
	// DefaultTimeout bounds one page fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the fetcher to web servers.
	DefaultUserAgent = "Mozilla/5.0 (compatible; Luminote/1.0; +https://github.com/haowjy/luminote-go)"

	// MaxPageSize caps how much of a response body is read.
	MaxPageSize = 10 << 20

	// MethodReadability is reported as the extraction method.
	MethodReadability = "readability"
)

// ErrNoContent means the page yielded no content blocks.
var ErrNoContent = errors.New("extract: no content blocks")

// Document is an extracted page.
type Document struct {
	URL           string                  `json:"url"`
	Title         string                  `json:"title"`
	Author        string                  `json:"author,omitempty"`
	DatePublished string                  `json:"date_published,omitempty"`
	ContentBlocks []luminote.ContentBlock `json:"content_blocks"`
	Metadata      Metadata                `json:"metadata"`
}

// TranslatableBlocks returns the blocks that can be sent for translation,
// dropping images and figures without text.
func (d *Document) TranslatableBlocks() []luminote.ContentBlock {
	out := make([]luminote.ContentBlock, 0, len(d.ContentBlocks))
	for _, b := range d.ContentBlocks {
		if b.Type.IsValid() && strings.TrimSpace(b.Text) != "" {
			out = append(out, b)
		}
	}
	return out
}

// DocumentCache stores extracted documents by URL.
type DocumentCache interface {
	GetDocument(ctx context.Context, url string) ([]byte, bool, error)
	PutDocument(ctx context.Context, url string, data []byte) error
}

// Extractor fetches and extracts pages. It is safe for concurrent use.
type Extractor struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	cache     DocumentCache
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient sets the client used for fetching.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		e.client = c
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Extractor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithCache reuses extracted documents across calls.
func WithCache(c DocumentCache) Option {
	return func(e *Extractor) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the content of the page at rawURL. Failures are
// *luminote.TranslationError values with codes INVALID_URL,
// URL_FETCH_ERROR or EXTRACTION_ERROR.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Document, error) {
	if !luminote.IsHTTPURL(rawURL) {
		return nil, InvalidURLError(rawURL)
	}
	logger := e.logger.With("url", rawURL, "request_id", requestid.FromContext(ctx))

	if doc, ok := e.cached(ctx, rawURL, logger); ok {
		logger.Info("cache hit for extraction")
		return doc, nil
	}
	logger.Info("cache miss for extraction, fetching content")

	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := parsePage(page, rawURL)
	if err != nil {
		logger.Error("extraction failed", "error", err)
		return nil, err
	}
	doc.Metadata.ExtractionMethod = MethodReadability
	doc.Metadata.BlockCount = len(doc.ContentBlocks)

	if e.cache != nil {
		if data, err := json.Marshal(doc); err != nil {
			logger.Warn("failed to encode document for cache", "error", err)
		} else if err := e.cache.PutDocument(ctx, rawURL, data); err != nil {
			logger.Warn("document cache store failed", "error", err)
		}
	}
	return doc, nil
}

func (e *Extractor) cached(ctx context.Context, rawURL string, logger *slog.Logger) (*Document, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, ok, err := e.cache.GetDocument(ctx, rawURL)
	if err != nil {
		logger.Warn("document cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("discarding undecodable cached document", "error", err)
		return nil, false
	}
	doc.Metadata.CacheHit = true
	return &doc, true
}

// fetch downloads the page and returns its body decoded to UTF-8.
func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, InvalidURLError(rawURL)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		status := http.StatusBadGateway
		if resp.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		return nil, FetchError(rawURL, fmt.Sprintf("HTTP %d", resp.StatusCode), status, nil)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "html") {
		return nil, ExtractionError(rawURL, "Non-HTML content type: "+contentType, nil)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, MaxPageSize), contentType)
	if err != nil {
		return nil, ExtractionError(rawURL, "Unsupported charset: "+contentType, err)
	}
	page, err := io.ReadAll(body)
	if err != nil {
		return nil, e.transportError(ctx, rawURL, err)
	}
	return page, nil
}

func (e *Extractor) transportError(ctx context.Context, rawURL string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return FetchError(rawURL, "Request timeout", http.StatusGatewayTimeout, err)
	default:
		return FetchError(rawURL, "Network error (unreachable host)", http.StatusBadGateway, err)
	}
}

// parsePage runs readability over page and splits the article into blocks.
// Page-level metadata is read from the full page, since readability strips
// head tags and structured data.
func parsePage(page []byte, rawURL string) (*Document, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, InvalidURLError(rawURL)
	}

	parser := readability.NewParser()
	parser.KeepClasses = true
	article, err := parser.Parse(bytes.NewReader(page), pageURL)
	if err != nil {
		return nil, ExtractionError(rawURL, fmt.Sprintf("Readability extraction failed: %v", err), err)
	}

	full, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, ExtractionError(rawURL, fmt.Sprintf("HTML parsing failed: %v", err), err)
	}
	content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, ExtractionError(rawURL, fmt.Sprintf("Block parsing failed: %v", err), err)
	}

	blocks := parseBlocks(content.Selection)
	if len(blocks) == 0 {
		return nil, ExtractionError(rawURL, "No content blocks extracted", ErrNoContent)
	}

	meta := extractMetadata(full, blocks)
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = "Untitled"
	}
	return &Document{
		URL:           rawURL,
		Title:         title,
		Author:        meta.Author,
		DatePublished: meta.DatePublished,
		ContentBlocks: blocks,
		Metadata:      meta,
	}, nil
}

// InvalidURLError reports a URL that is not absolute http(s).
func InvalidURLError(rawURL string) *luminote.TranslationError {
	return &luminote.TranslationError{
		Code:       luminote.ErrorCodeInvalidURL,
		Message:    fmt.Sprintf("Invalid URL format: %s", rawURL),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]any{"url": rawURL},
		Err:        luminote.ErrInvalidRequest,
	}
}

// FetchError reports a page that could not be downloaded. Timeouts and
// upstream 5xx are retryable.
func FetchError(rawURL, reason string, status int, cause error) *luminote.TranslationError {
	return &luminote.TranslationError{
		Code:       luminote.ErrorCodeURLFetch,
		Message:    fmt.Sprintf("Failed to fetch URL '%s': %s", rawURL, reason),
		StatusCode: status,
		Details:    map[string]any{"url": rawURL, "reason": reason},
		Retryable:  status != http.StatusNotFound,
		Err:        cause,
	}
}

// ExtractionError reports a page that was fetched but yielded no usable content.
func ExtractionError(rawURL, reason string, cause error) *luminote.TranslationError {
	return &luminote.TranslationError{
		Code:       luminote.ErrorCodeExtraction,
		Message:    fmt.Sprintf("Failed to extract content from '%s': %s", rawURL, reason),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]any{"url": rawURL, "reason": reason},
		Err:        cause,
	}
}
