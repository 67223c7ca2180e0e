// Package agent wires the client-side replica: the pebble store, the
// pull-sync worker, live subscriptions and the local query endpoint the
// embedding application talks to.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stewones/borda-sub001/pkg/client/iql"
	"github.com/stewones/borda-sub001/pkg/client/live"
	"github.com/stewones/borda-sub001/pkg/client/local"
	syncclient "github.com/stewones/borda-sub001/pkg/client/sync"
	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

// Agent owns the replica and its background machinery.
type Agent struct {
	eff         config.EffectiveConfigResult
	store       *local.Store
	worker      *syncclient.Worker
	live        *live.Client
	collections []string
	maxBody     int64

	srv *http.Server
}

// New opens the replica and builds the sync and live clients. Call Run to
// start everything and block until shutdown.
func New(eff config.EffectiveConfigResult) (*Agent, error) {
	cfg := eff.Config
	if cfg.Client.ServerURL == "" {
		return nil, fmt.Errorf("client server url is empty: set BORDA_SERVER_URL env or client.server_url in config")
	}
	if len(cfg.Collections) == 0 {
		return nil, fmt.Errorf("no collections configured: declare at least one under collections in config")
	}

	reg, err := schema.NewRegistry(cfg.Collections)
	if err != nil {
		return nil, fmt.Errorf("invalid collections config: %w", err)
	}

	// sync only the configured subset; default to every non-reserved
	// collection
	cols := cfg.Client.Collections
	if len(cols) == 0 {
		for _, name := range reg.Names() {
			if !reg.Reserved(name) {
				cols = append(cols, name)
			}
		}
	}
	for _, c := range cols {
		if !reg.Has(c) {
			return nil, fmt.Errorf("client collection %q not declared in schema", c)
		}
	}

	store, err := local.Open(cfg.Client.DBPath, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica at %s: %w", cfg.Client.DBPath, err)
	}

	token := func() string { return cfg.Client.Token }
	batch := syncclient.NewClient(cfg.Client.ServerURL, token)
	engine := syncclient.NewEngine(store, batch, cfg.Sync.PageSize)
	queue := syncclient.NewQueue(cfg.Client.QueueSize)
	worker := syncclient.NewWorker(engine, queue, cols, time.Duration(cfg.Sync.Interval))

	return &Agent{
		eff:         eff,
		store:       store,
		worker:      worker,
		live:        live.NewClient(liveURL(cfg.Client.ServerURL), token, time.Duration(cfg.Live.ReconnectBackoff)),
		collections: cols,
		maxBody:     int64(cfg.Client.MaxBodySize),
	}, nil
}

// Store exposes the replica for embedders that link the agent directly.
func (a *Agent) Store() *local.Store { return a.store }

// Run starts the worker, the live subscriptions and the local query
// endpoint, then blocks until ctx is canceled or the server fails.
func (a *Agent) Run(ctx context.Context) error {
	a.worker.Start(ctx)
	// The queue is never closed here. Live subscription handlers keep
	// producing until their socket goroutines observe cancellation, and
	// there is no join point for them; Close under a live producer would
	// panic. Stop drains the worker and the channel dies with the process.
	defer a.worker.Stop()

	a.subscribeLive(ctx)

	errCh := a.startIQL()

	logger.Info("agent_started",
		"db_path", a.eff.Config.Client.DBPath,
		"server_url", a.eff.Config.Client.ServerURL,
		"collections", strings.Join(a.collections, ","))

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		return a.store.Close()
	case err := <-errCh:
		_ = a.store.Close()
		return err
	}
}

// subscribeLive opens one subscription per collection and change class.
// A push is only a nudge: the worker remains the single writer, so the
// handler just triggers an out-of-schedule sync pass.
func (a *Agent) subscribeLive(ctx context.Context) {
	events := []model.LiveEvent{model.EventInsert, model.EventUpdate, model.EventDelete}
	for _, col := range a.collections {
		col := col
		for _, ev := range events {
			msg := model.SubscribeMessage{Collection: col, Event: ev, Method: model.MethodOn}
			a.live.Subscribe(ctx, msg, func(model.PushMessage) {
				if err := a.worker.Trigger(col); err != nil {
					logger.Debug("live_nudge_dropped", "collection", col, "error", err.Error())
				}
			})
		}
	}
}

// liveURL translates the configured http(s) base URL into the websocket
// endpoint.
func liveURL(base string) string {
	u := strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/live"
}

// startIQL serves the local graph query endpoint for the embedding
// application.
func (a *Agent) startIQL() <-chan error {
	addr := a.eff.Config.Client.IQLAddr
	if addr == "" {
		addr = "127.0.0.1:1378"
	}
	a.srv = &http.Server{Addr: addr, Handler: a.iqlHandler(iql.New(a.store))}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("iql_listening", "addr", addr)
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}
