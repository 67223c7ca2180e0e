// Package app wires the server components together and owns their
// lifecycle: mongo store, schema registry, query cache, live hub,
// retention sweep and the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/stewones/borda-sub001/internal/retention"
	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/hooks"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/cache"
	"github.com/stewones/borda-sub001/pkg/server/livequery"
	"github.com/stewones/borda-sub001/pkg/server/query"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/server/syncapi"
	"github.com/stewones/borda-sub001/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	reg       *schema.Registry
	store     *store.Store
	cache     *cache.Cache
	watcher   *cache.Watcher
	hub       *livequery.Hub
	sync      *syncapi.Handler
	runner    *query.Runner
	validator *validation.Validator
	hooks     *hooks.Pipeline
	sweeper   *retention.Sweeper

	srv *http.Server
}

// New validates the effective config and opens the resources that do not
// need a running context beyond startup (mongo connection, registry,
// indexes). Call Run to start the background workers and the HTTP server.
func New(ctx context.Context, eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	reg, err := schema.NewRegistry(cfg.Collections)
	if err != nil {
		return nil, fmt.Errorf("invalid collections config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open mongo at %s: %w", cfg.Mongo.Database, err)
	}
	if err := st.EnsureIndexes(ctx, reg.Names()); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		reg:       reg,
		store:     st,
		cache:     cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)),
		runner:    query.New(st, reg),
		validator: validation.New(reg),
		hooks:     hooks.NewPipeline(),
		sync:      syncapi.New(st, reg, cfg.Sync.PageSize, time.Duration(cfg.Sync.ToleranceMs)*time.Millisecond),
		hub:       livequery.New(st, reg, time.Duration(cfg.Live.PingInterval), time.Duration(cfg.Live.WriteTimeout)),
	}
	a.watcher = cache.NewWatcher(st, reg, a.cache)

	if cfg.Retention.Enabled {
		sweeper, err := retention.New(st, reg, cfg.Retention)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		a.sweeper = sweeper
	}
	return a, nil
}

// Hooks exposes the pipeline so embedders can register hooks and
// functions before calling Run.
func (a *App) Hooks() *hooks.Pipeline { return a.hooks }

// Run starts the background workers and the HTTP server, then blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.watcher.Start(ctx)
	defer a.watcher.Stop()
	a.hub.Start(ctx)
	defer a.hub.Stop()
	if a.sweeper != nil {
		cancel := a.sweeper.Start(ctx)
		defer cancel()
	}

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		_ = a.store.Close(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
