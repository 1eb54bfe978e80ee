// Package app wires configuration into the long-running document watcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Adda-Baaj/fia-docwatch/internal/config"
	"github.com/Adda-Baaj/fia-docwatch/internal/convert"
	"github.com/Adda-Baaj/fia-docwatch/internal/logger"
	"github.com/Adda-Baaj/fia-docwatch/internal/pipeline"
	"github.com/Adda-Baaj/fia-docwatch/internal/storage"
	"github.com/Adda-Baaj/fia-docwatch/pkg/httpclient"
	"github.com/Adda-Baaj/fia-docwatch/pkg/publishers"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

// DefaultSourceID names the source synthesized from flat config keys.
const DefaultSourceID = "default"

// Build constructs a Watcher and all of its collaborators from config.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	srcs, err := loadSources(cfg)
	if err != nil {
		return nil, err
	}

	pubCfgs, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers: %w", err)
	}
	enabled := pubCfgs.Enabled()
	if len(enabled) == 0 {
		return nil, errors.New("no enabled publishers configured")
	}
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, err
	}
	fanout := publishers.NewFanout(pubs)

	store, err := storage.NewStore(cfg.StorageType, storage.Options{
		Dir:             cfg.StateDir,
		BBoltPath:       cfg.BBoltPath,
		Location:        cfg.Location,
		DeliveryTTL:     cfg.DeliveryTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	converter, err := convert.New(cfg.ConvertMode, convert.Options{
		PdftoppmPath:      cfg.PdftoppmPath,
		DPI:               cfg.RenderDPI,
		MaxImageDimension: cfg.MaxImageDimension,
	})
	if err != nil {
		fanout.Close()
		store.Close()
		return nil, fmt.Errorf("init converter: %w", err)
	}

	client := httpclient.NewRestyClient(cfg.HTTPTimeout, httpclient.WithMaxBodyBytes(cfg.MaxBodyBytes))
	fetcher := sources.NewFetcher(client)
	extractor := sources.NewExtractor(cfg.Location)

	deliverer := pipeline.NewDeliverer(fetcher, converter, fanout, store, pipeline.DelivererConfig{
		DownloadDir: cfg.DownloadDir,
		RenderPage:  cfg.RenderPage,
		ItemTimeout: cfg.ItemTimeout,
	}, log)
	svc := pipeline.NewService(fetcher, extractor, store, deliverer, fanout, cfg.ItemTimeout, log)

	log.InfoObj("watcher wired", "wiring", map[string]any{
		"sources":      len(srcs),
		"publishers":   fanout.Size(),
		"storage_type": cfg.StorageType,
		"convert_mode": cfg.ConvertMode,
	})

	return NewWatcher(svc, srcs, WatcherOptions{
		PollInterval: cfg.PollInterval,
		Tick:         cfg.TickInterval,
		ScheduleMode: cfg.ScheduleMode,
	}, log, fanout.Close, store.Close), nil
}

// loadSources reads sources_file when it exists, otherwise a single source is built from
// source_url, source_base_url, title_templates and watch_mode.
func loadSources(cfg *config.Config) ([]sources.Source, error) {
	if cfg.SourcesFile != "" {
		if _, err := os.Stat(cfg.SourcesFile); err == nil {
			reg, err := sources.LoadRegistry(cfg.SourcesFile)
			if err != nil {
				return nil, fmt.Errorf("load sources: %w", err)
			}
			return reg.All(), nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat sources file: %w", err)
		}
	}

	if cfg.SourceURL == "" {
		return nil, errors.New("no sources configured: set sources_file or source_url")
	}
	reg, err := sources.NewRegistry(sources.Source{
		ID:        DefaultSourceID,
		Mode:      cfg.WatchMode,
		SourceURL: cfg.SourceURL,
		BaseURL:   cfg.SourceBaseURL,
		Templates: sources.ParseTemplates(cfg.TitleTemplates),
	})
	if err != nil {
		return nil, fmt.Errorf("default source: %w", err)
	}
	return reg.All(), nil
}
