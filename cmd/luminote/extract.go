package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/haowjy/luminote-go/internal/cache"
	"github.com/haowjy/luminote-go/internal/config"
	"github.com/haowjy/luminote-go/internal/extract"
)

func extractCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract the content blocks of a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			doc, err := extractDocument(cmd.Context(), cfg, logger, args[0])
			if err != nil {
				return err
			}

			if output == "json" {
				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", data)
				return nil
			}

			info := uitable.New()
			info.AddRow("TITLE:", doc.Title)
			if doc.Author != "" {
				info.AddRow("AUTHOR:", doc.Author)
			}
			if doc.Metadata.ArticleType != "" {
				info.AddRow("TYPE:", doc.Metadata.ArticleType)
			}
			info.AddRow("BLOCKS:", len(doc.ContentBlocks))
			info.AddRow("CACHED:", doc.Metadata.CacheHit)
			fmt.Fprintln(cmd.OutOrStdout(), info)
			fmt.Fprintln(cmd.OutOrStdout())

			blocks := uitable.New()
			blocks.MaxColWidth = 80
			blocks.AddRow("ID", "TYPE", "TEXT")
			for _, b := range doc.ContentBlocks {
				blocks.AddRow(b.ID, b.Type, b.Text)
			}
			fmt.Fprintln(cmd.OutOrStdout(), blocks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	return cmd
}

// extractDocument runs the extractor locally, through the document cache
// when caching is enabled.
func extractDocument(ctx context.Context, cfg *config.Config, logger *slog.Logger, url string) (*extract.Document, error) {
	opts := []extract.Option{
		extract.WithTimeout(cfg.Extract.Timeout.Duration),
		extract.WithUserAgent(cfg.Extract.UserAgent),
		extract.WithLogger(logger),
	}
	if cfg.Cache.Enabled {
		c, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		defer c.Close()
		opts = append(opts, extract.WithCache(c))
	}
	return extract.New(opts...).Extract(ctx, url)
}
