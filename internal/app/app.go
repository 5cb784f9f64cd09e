// Package app wires the sync core together: config, offline cache, thread
// store, reconciliation engine, suppression, locator, transport, janitor
// and the HTTP surface.
package app

import (
	"context"

	"chatsync/internal/janitor"
	"chatsync/pkg/banner"
	"chatsync/pkg/cache"
	"chatsync/pkg/config"
	"chatsync/pkg/locator"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/reconcile"
	"chatsync/pkg/suppress"
	"chatsync/pkg/threadstore"
	"chatsync/pkg/transport"
)

// App owns the component graph and its lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	cachePath string
	source    string
	version   string

	cache    *cache.Bridge
	store    *threadstore.Store
	suppress *suppress.Set
	engine   *reconcile.Engine
	locator  *locator.Locator
	ws       *transport.Client
}

// New builds the component graph. The transport and HTTP server start in
// Run.
func New(cfg *config.Config, addr, cachePath, source, version string) (*App, error) {
	a := &App{cfg: cfg, addr: addr, cachePath: cachePath, source: source, version: version}

	if cachePath != "" {
		br, err := cache.Open(cachePath)
		if err != nil {
			return nil, err
		}
		a.cache = br
	}

	var mirror threadstore.Mirror
	if a.cache != nil {
		mirror = a.cache
	}
	a.store = threadstore.New(threadstore.Options{
		MaxMessages: cfg.Sync.MaxMessages,
		Mirror:      mirror,
	})

	a.suppress = suppress.NewSet(cfg.Sync.NoticeToleranceMs)

	a.engine = reconcile.New(a.store, reconcile.Options{
		QueueCapacity: cfg.Sync.QueueCapacity,
		SendTimeoutMs: cfg.Sync.SendTimeoutMs,
		Notify: func(n reconcile.Notice) {
			logger.Warn("user_notice", "thread", n.ThreadID, "local_id", n.LocalID, "text", n.Text)
		},
	})

	// the websocket client needs the engine's queue, so it binds after New
	if cfg.Transport.URL != "" {
		a.ws = transport.New(cfg.Transport.URL, a.engine.Queue())
		a.engine.SetSender(a.ws)
	}

	a.locator = locator.New(locator.Options{
		View: func(threadID string) []models.Message {
			return a.suppress.Visible(threadID, a.store.Snapshot(threadID))
		},
		HighlightMs: int64(cfg.Sync.HighlightMs),
	})

	a.hydrateFromCache()
	return a, nil
}

// hydrateFromCache restores cached windows so the first render happens
// before the transport reconnects. The live feed overwrites anything stale
// through the usual merge path.
func (a *App) hydrateFromCache() {
	if a.cache == nil {
		return
	}
	n := 0
	for _, p := range a.cache.ListPreviews() {
		if msgs := a.cache.LoadWindow(p.ThreadID); len(msgs) > 0 {
			a.store.SetMessages(p.ThreadID, msgs)
			n++
		}
	}
	if n > 0 {
		logger.Info("cache_hydrated", "threads", n)
	}
}

// Run starts the transport, janitor and HTTP server, blocking until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.engine.Start(ctx.Done())

	if a.ws != nil {
		go a.ws.Run(ctx)
	}

	cancelJanitor, err := janitor.Start(ctx, a.cfg, janitor.Deps{
		Store:         a.store,
		Suppress:      a.suppress,
		Cache:         a.cache,
		RetentionDays: a.cfg.Suppress.RemovalRetentionDays,
	})
	if err != nil {
		return err
	}
	defer cancelJanitor()

	banner.Print(a.cfg, a.addr, a.cachePath, a.source, a.version)

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.close()
		return nil
	case err := <-errCh:
		a.close()
		return err
	}
}

func (a *App) close() {
	a.engine.Queue().Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warn("cache_close_failed", "err", err)
		}
	}
}
