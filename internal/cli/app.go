package cli

import (
	"context"
	"fmt"

	"github.com/tOgg1/postview/internal/config"
	"github.com/tOgg1/postview/internal/db"
	"github.com/tOgg1/postview/internal/parsing"
	"github.com/tOgg1/postview/internal/popup"
	"github.com/tOgg1/postview/internal/render"
)

// app bundles the components every data command needs.
type app struct {
	cfg      *config.Config
	db       *db.DB
	posts    *db.PostRepository
	resolver *render.Resolver
	hidden   *render.HiddenFilter
	pipeline *parsing.Pipeline
	viewers  *popup.Registry
}

func openApp(ctx context.Context) (*app, error) {
	cfg := GetConfig()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	database, err := db.Open(ctx, db.Config{
		Path:          cfg.DatabasePath(),
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	posts := db.NewPostRepository(database)
	resolver := render.NewResolver(0)
	hidden := render.NewHiddenFilter(cfg.Render.HideRepliesToHidden)
	pipeline := parsing.New(parsing.Config{
		Resolver:     resolver,
		Source:       posts,
		Replies:      posts,
		Sorter:       render.Sorter{Catalog: render.CatalogOrder(cfg.Render.CatalogSort)},
		Filter:       hidden,
		Workers:      cfg.Parsing.Workers,
		BatchSize:    cfg.Parsing.EffectiveBatchSize(),
		StartedDelay: cfg.Parsing.StartedNotifyDelay,
	})
	viewers, err := popup.NewRegistry(popup.ControllerConfig{
		Parser:        pipeline,
		Source:        posts,
		Replies:       posts,
		CacheCapacity: cfg.Popup.CacheCapacity,
		FontSize:      cfg.Render.FontSize,
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create viewer registry: %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       database,
		posts:    posts,
		resolver: resolver,
		hidden:   hidden,
		pipeline: pipeline,
		viewers:  viewers,
	}, nil
}

func (a *app) Close() error {
	a.pipeline.CancelAll()
	a.viewers.DisposeAll()
	return a.db.Close()
}
