// Package menusync is the public API for embedding the menusync server.
//
// The server keeps one shared menu, wallet and set of task counters in
// memory, persists them to PostgreSQL or SQLite, and pushes every change to
// connected WebSocket clients. Writes made to the store by other processes
// are picked up and pushed as well.
//
//	app, err := menusync.New(ctx,
//	    menusync.WithVersion(version),
//	    menusync.WithLogger(logger),
//	    menusync.WithStateHook(myAuditHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// Public types (State, Item) are standalone structs with no internal
// imports; conversion happens in this package at the boundary.
package menusync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/menusync/api"
	"github.com/ashita-ai/menusync/internal/config"
	"github.com/ashita-ai/menusync/internal/listener"
	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/normalize"
	"github.com/ashita-ai/menusync/internal/ratelimit"
	"github.com/ashita-ai/menusync/internal/server"
	"github.com/ashita-ai/menusync/internal/service/menu"
	"github.com/ashita-ai/menusync/internal/state"
	"github.com/ashita-ai/menusync/internal/telemetry"
	"github.com/ashita-ai/menusync/ui"
)

const (
	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 2 * time.Second
	hookTimeout      = 10 * time.Second
)

// App is the menusync server lifecycle. Construct with New, run with Run.
type App struct {
	cfg          config.Config
	logger       *slog.Logger
	version      string
	store        *openedStore
	limiter      ratelimit.Limiter
	cache        *state.Cache
	hub          *server.Hub
	listener     *listener.Listener
	srv          *server.Server
	otelShutdown telemetry.Shutdown

	closeOnce sync.Once
}

// New loads configuration from the environment, applies opts, opens and
// migrates the store, loads the initial state and wires every component.
// It does NOT start any goroutines or accept HTTP connections; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := resolveConfig(o)
	if err != nil {
		return nil, err
	}

	catalog, err := model.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	cache := state.NewCache()
	hub := server.NewHub(cache, logger, server.HubOptions{
		QueueSize:    cfg.SubscriberQueue,
		PingInterval: cfg.KeepaliveInterval,
	})
	var publisher menu.Publisher = hub
	if len(o.stateHooks) > 0 {
		publisher = &hookPublisher{next: hub, hooks: o.stateHooks, logger: logger}
	}
	svc := menu.New(st.store, cache, normalize.New(catalog), publisher, logger, menu.Options{
		StoreTimeout: cfg.StoreTimeout,
	})
	svc.Init(ctx)

	lst := listener.New(st.source, svc, logger, listener.Options{
		Debounce: cfg.ReloadDebounce,
		Resync:   cfg.ResyncInterval,
	})

	limiter := newLimiter(ctx, cfg, logger)

	var staticFS fs.FS
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err != nil || !info.IsDir() {
			logger.Warn("static directory not found, frontend disabled", "dir", cfg.StaticDir)
		} else {
			staticFS = os.DirFS(cfg.StaticDir)
		}
	}
	if staticFS == nil {
		bundled, err := ui.Frontend()
		if err != nil {
			logger.Warn("bundled frontend unavailable", "error", err)
		}
		staticFS = bundled
	}

	extraRoutes := make([]func(*http.ServeMux), len(o.routes))
	for i, r := range o.routes {
		extraRoutes[i] = r
	}
	middlewares := make([]func(http.Handler) http.Handler, len(o.middlewares))
	for i, m := range o.middlewares {
		middlewares[i] = m
	}

	srv := server.New(server.ServerConfig{
		Menu:                svc,
		Hub:                 hub,
		Logger:              logger,
		Limiter:             limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		StaticFS:            staticFS,
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		logger:       logger,
		version:      version,
		store:        st,
		limiter:      limiter,
		cache:        cache,
		hub:          hub,
		listener:     lst,
		srv:          srv,
		otelShutdown: otelShutdown,
	}, nil
}

// resolveConfig reads the environment and applies option overrides.
func resolveConfig(o resolvedOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.port != nil {
		cfg.Port = *o.port
	}
	if o.databaseURL != "" {
		cfg.Store = config.StorePostgres
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.sqlitePath != "" {
		cfg.Store = config.StoreSQLite
		cfg.SQLitePath = o.sqlitePath
	}
	if o.staticDir != "" {
		cfg.StaticDir = o.staticDir
	}
	if o.catalogPath != "" {
		cfg.CatalogPath = o.catalogPath
	}
	return cfg, nil
}

// Handler returns the root HTTP handler, for tests and for mounting the
// server inside another one.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// State returns the current snapshot.
func (a *App) State() State {
	return toPublicState(a.cache.Get())
}

// Run starts the change listener and the HTTP server, then blocks until ctx
// is cancelled or a component fails. On return the App is closed: clients
// got a shutdown envelope, in-flight requests were drained, and the store is
// released.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.listener.Run(gctx)
	})
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("menusync shutting down")
		a.hub.Close()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(drainCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		return nil
	})

	snap := a.cache.Get()
	a.logger.Info("menusync ready",
		"addr", a.srv.Addr(),
		"store", a.store.store.Kind(),
		"items", len(snap.Items),
		"version", a.version,
	)

	err := g.Wait()
	a.logger.Info("menusync stopped")
	return err
}

// Close releases the rate limiter, the store and the telemetry exporters.
// Run calls it; call it directly only when Run is never called.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if err := a.limiter.Close(); err != nil {
			a.logger.Warn("rate limiter close failed", "error", err)
		}
		a.store.close()
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(flushCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	})
}

// Migrate brings the configured store's schema up to date and returns the
// store kind. serve does the same on startup.
func Migrate(ctx context.Context, opts ...Option) (string, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := resolveConfig(o)
	if err != nil {
		return "", err
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return "", fmt.Errorf("migrate %s store: %w", cfg.Store, err)
	}
	st.close()
	return cfg.Store, nil
}

// newLimiter picks the shared Redis limiter when configured and reachable,
// the in-process one otherwise, or none when rate limiting is off.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) ratelimit.Limiter {
	if !cfg.RateLimitEnabled() {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}
	}
	if cfg.RedisURL != "" {
		rl, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitRPS, cfg.RateLimitBurst)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
			err = rl.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("rate limiting: redis", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
				return rl
			}
			_ = rl.Close()
		}
		logger.Warn("rate limiting: redis unavailable, using in-process limiter", "error", err)
	}
	logger.Info("rate limiting: memory", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
}

// hookPublisher forwards snapshots to the hub and then, asynchronously, to
// every registered StateHook. Each hook gets its own copy.
type hookPublisher struct {
	next   menu.Publisher
	hooks  []StateHook
	logger *slog.Logger
}

func (p *hookPublisher) Publish(s model.State) {
	p.next.Publish(s)
	for _, h := range p.hooks {
		pub := toPublicState(s)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := h.OnStateChange(ctx, pub); err != nil {
				p.logger.Warn("state hook failed", "error", err)
			}
		}()
	}
}
