package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/cache"
	"github.com/haowjy/luminote-go/internal/config"
	"github.com/haowjy/luminote-go/internal/extract"
	"github.com/haowjy/luminote-go/internal/server"
	"github.com/haowjy/luminote-go/internal/service"
	"github.com/haowjy/luminote-go/internal/versions"
	"github.com/haowjy/luminote-go/providers"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
)

func serveCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the translation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	catalog := luminote.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if err := config.WatchCatalog(ctx, cfg.CatalogPath, catalog, logger); err != nil {
			return err
		}
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithCatalog(catalog),
		service.WithBlockTimeout(cfg.BlockTimeout.Duration),
	}
	extractOpts := []extract.Option{
		extract.WithTimeout(cfg.Extract.Timeout.Duration),
		extract.WithUserAgent(cfg.Extract.UserAgent),
		extract.WithLogger(logger),
	}
	if cfg.Cache.Enabled {
		c, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL.Duration)
		if err != nil {
			return fmt.Errorf("open translation cache: %w", err)
		}
		defer c.Close()
		go purgeLoop(ctx, c, logger)
		opts = append(opts, service.WithCache(c))
		extractOpts = append(extractOpts, extract.WithCache(c))
	}
	if cfg.Versions.Enabled {
		store, err := versions.Open(cfg.Versions.Path, cfg.Versions.Keep)
		if err != nil {
			return fmt.Errorf("open version store: %w", err)
		}
		defer store.Close()
		opts = append(opts, service.WithVersions(store))
	}

	svc := service.New(providers.DefaultRegistry(), opts...)
	srv := server.New(cfg, svc,
		server.WithLogger(logger),
		server.WithExtractor(extract.New(extractOpts...)),
	)

	logger.Info("starting luminote",
		"listen", srv.Addr(),
		"api_prefix", cfg.APIPrefix,
		"cache_enabled", cfg.Cache.Enabled,
		"versions_enabled", cfg.Versions.Enabled,
		"providers", svc.Providers(),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			return err
		}
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// purgeLoop drops expired cache entries until ctx ends.
func purgeLoop(ctx context.Context, c cache.Cache, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			logger.Debug("cache purged", "removed", n)
		}
	}
}
