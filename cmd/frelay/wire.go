package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/franksops/filerelay/config"
	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/provider"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/store"
)

// app holds the components every command relays through.
type app struct {
	orchestrator *relay.Orchestrator
	registry     *prometheus.Registry
	s3           *provider.S3Source
	cache        *store.PathCache
}

type appOptions struct {
	// localFiles registers the file scheme. The API never does.
	localFiles bool
	observers  []relay.Observer
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := relay.NewPrometheusObserver("filerelay", a.registry)
	if err != nil {
		return nil, err
	}

	client := provider.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	fetcher := provider.NewFetcher(
		provider.WithOpenTimeout(cfg.SourceOpenTimeout),
		provider.WithReadTimeout(cfg.ReadTimeout),
	)
	httpSource := provider.NewHTTPSource(client).AllowHosts(cfg.SourceHosts...)
	fetcher.Register("http", httpSource).Register("https", httpSource)

	if opts.localFiles {
		fetcher.Register(provider.SchemeFile, provider.NewLocalSource(""))
	}

	if cfg.TelegramToken != "" {
		var cache provider.PathCache
		if cfg.CacheDir != "" {
			if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
				return nil, fmt.Errorf("creating cache directory: %w", err)
			}
			if a.cache, err = store.NewPathCache(filepath.Join(cfg.CacheDir, "paths.db"), store.DefaultTTL); err != nil {
				return nil, err
			}
			cache = a.cache
		}
		fetcher.Register(provider.SchemeTelegram, provider.NewTelegramSource(cfg.TelegramToken, cfg.TelegramAPI, client, cache))
	}

	if a.s3, err = provider.NewS3SourceFromEnv(ctx); err != nil {
		log.Warnw("s3 handles disabled", "err", err)
	} else {
		fetcher.Register(provider.SchemeS3, a.s3)
	}
	log.Debugw("sources registered", "schemes", fetcher.Schemes())

	streamer := engine.NewStreamer(engine.StreamerConfig{
		Headers:        cfg.Headers,
		SizeLimit:      cfg.SizeLimit,
		ChunkSize:      cfg.ChunkSize,
		ConnectTimeout: cfg.ConnectTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		IdleTimeout:    cfg.IdleTimeout,
	})

	a.orchestrator = relay.NewOrchestrator(relay.Config{
		Fetcher:     fetcher,
		Uploader:    streamer,
		Interpreter: engine.NewResponseInterpreter(cfg.DownloadBase),
		UploadURL:   cfg.UploadURL,
		SizeLimit:   cfg.SizeLimit,
		Observer:    append(relay.MultiObserver{metrics}, opts.observers...),
	})
	return a, nil
}

// pruneCache drops expired path cache entries every interval until ctx ends.
func (a *app) pruneCache(ctx context.Context, interval time.Duration) {
	if a.cache == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.cache.Prune()
			if err != nil {
				log.Warnw("pruning path cache", "err", err)
				continue
			}
			log.Debugw("path cache pruned", "removed", n)
		}
	}
}

func (a *app) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}
