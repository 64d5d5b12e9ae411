package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haowjy/luminote-go"
)

type streamOptions struct {
	file       string
	url        string
	template   string
	vars       map[string]string
	lang       string
	provider   string
	model      string
	apiKey     string
	baseURL    string
	endpoint   string
	maxRetries int
	retryDelay time.Duration
}

func streamCmd(root *rootOptions) *cobra.Command {
	opts := &streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream [text...]",
		Short: "Stream a translation and print blocks as they arrive",
		Long: `Stream a translation from a Luminote server.

Blocks come from --url (the page is extracted locally first), from --file
(a JSON array of {"id","type","text"} blocks, or "-" for stdin) or from the
positional arguments, one paragraph each. Press Ctrl-C to cancel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			var blocks []luminote.ContentBlock
			if opts.url != "" {
				doc, err := extractDocument(cmd.Context(), cfg, logger, opts.url)
				if err != nil {
					return err
				}
				blocks = doc.TranslatableBlocks()
				if len(blocks) == 0 {
					return fmt.Errorf("no translatable blocks found at %s", opts.url)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "extracted %q: %d blocks\n", doc.Title, len(blocks))
			} else {
				blocks, err = loadBlocks(cmd.InOrStdin(), opts.file, args)
				if err != nil {
					return err
				}
			}

			baseURL := opts.baseURL
			if baseURL == "" {
				baseURL = cfg.Client.BaseURL
			}
			streamOpts := &luminote.StreamOptions{Endpoint: opts.endpoint}
			if cmd.Flags().Changed("max-retries") {
				streamOpts.MaxRetries = &opts.maxRetries
			} else {
				streamOpts.MaxRetries = &cfg.Client.MaxRetries
			}
			if cmd.Flags().Changed("retry-delay") {
				streamOpts.RetryDelay = &opts.retryDelay
			} else {
				streamOpts.RetryDelay = &cfg.Client.RetryDelay.Duration
			}

			apiKey := opts.apiKey
			if apiKey == "" {
				apiKey = os.Getenv(apiKeyEnv(luminote.ProviderID(opts.provider)))
			}
			if apiKey == "" && luminote.ProviderID(opts.provider).Normalize() == luminote.ProviderMock {
				// The mock provider ignores the key, the server only requires one.
				apiKey = "mock"
			}

			req := &luminote.TranslationStreamRequest{
				ContentBlocks:  blocks,
				TargetLanguage: opts.lang,
				Provider:       luminote.ProviderID(opts.provider),
				Model:          opts.model,
				APIKey:         apiKey,
				DocumentURL:    opts.url,
			}
			if opts.template != "" {
				req.TemplateID = opts.template
				req.TemplateVariables = opts.vars
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := luminote.NewClient(baseURL, luminote.WithLogger(logger))
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			for ev := range client.Stream(ctx, req, streamOpts) {
				switch {
				case ev.Block != nil:
					fmt.Fprintf(out, "[%s] %s\n", ev.Block.BlockID, ev.Block.Translation)
				case ev.Error != nil:
					target := "stream"
					if ev.Error.BlockID != nil {
						target = *ev.Error.BlockID
					}
					fmt.Fprintf(errOut, "error [%s] %s: %s\n", target, ev.Error.Code, ev.Error.Message)
				case ev.Done != nil:
					fmt.Fprintf(out, "done: %d translated, %d failed, %d tokens in %ss\n",
						ev.Done.BlocksTranslated, ev.Done.BlocksFailed, ev.Done.TotalTokens,
						strconv.FormatFloat(ev.Done.ProcessingTime, 'f', -1, 64))
				case ev.Err != nil:
					return ev.Err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", `JSON file with content blocks ("-" for stdin)`)
	f.StringVarP(&opts.url, "url", "u", "", "extract and translate the page at this URL")
	f.StringVarP(&opts.template, "template", "t", "", "prompt template id (professional, casual, academic, business, or a custom id)")
	f.StringToStringVar(&opts.vars, "var", nil, "template variable as name=value (repeatable)")
	f.StringVarP(&opts.lang, "lang", "l", "", "target language (ISO 639-1)")
	f.StringVarP(&opts.provider, "provider", "p", string(luminote.ProviderMock), "translation provider")
	f.StringVarP(&opts.model, "model", "m", "", "provider model (provider default when empty)")
	f.StringVar(&opts.apiKey, "api-key", "", "provider API key (defaults to ANTHROPIC_API_KEY / OPENAI_API_KEY)")
	f.StringVar(&opts.baseURL, "base-url", "", "server base URL (overrides client.base_url)")
	f.StringVar(&opts.endpoint, "endpoint", "", "full stream endpoint URL or path")
	f.IntVar(&opts.maxRetries, "max-retries", luminote.DefaultMaxRetries, "retries after the first attempt")
	f.DurationVar(&opts.retryDelay, "retry-delay", luminote.DefaultRetryDelay, "base backoff delay, multiplied by the attempt number")
	_ = cmd.MarkFlagRequired("lang")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	return cmd
}

// loadBlocks reads blocks from path, or builds paragraphs from texts.
func loadBlocks(stdin io.Reader, path string, texts []string) ([]luminote.ContentBlock, error) {
	if path == "" {
		if len(texts) == 0 {
			return nil, errors.New("nothing to translate: pass --file or text arguments")
		}
		blocks := make([]luminote.ContentBlock, len(texts))
		for i, text := range texts {
			blocks[i] = luminote.ContentBlock{
				ID:   "p" + strconv.Itoa(i+1),
				Type: luminote.BlockTypeParagraph,
				Text: text,
			}
		}
		return blocks, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}

	var blocks []luminote.ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		// Also accept a full request body.
		var req luminote.TranslationStreamRequest
		if reqErr := json.Unmarshal(data, &req); reqErr != nil || len(req.ContentBlocks) == 0 {
			return nil, fmt.Errorf("parse blocks: %w", err)
		}
		blocks = req.ContentBlocks
	}
	return blocks, nil
}

func apiKeyEnv(provider luminote.ProviderID) string {
	switch provider.Normalize() {
	case luminote.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case luminote.ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "LUMINOTE_API_KEY"
	}
}
