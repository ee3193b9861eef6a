package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/ashita-ai/menusync/internal/ratelimit"
	"github.com/ashita-ai/menusync/internal/service/menu"
)

// Server is the menusync HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, StaticFS, OpenAPISpec, ExtraRoutes, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	Menu   *menu.Service
	Hub    *Hub
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional assets.
	StaticFS    fs.FS  // Frontend directory (SPA).
	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Extension points for embedders. ExtraRoutes are registered after the
	// built-in routes; Middlewares wrap the whole chain, first is outermost.
	ExtraRoutes []func(mux *http.ServeMux)
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Menu:                cfg.Menu,
		Hub:                 cfg.Hub,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	mutateRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Reads (gzip when accepted).
	mux.Handle("GET /state", gzhttp.GzipHandler(http.HandlerFunc(h.HandleGetState)))
	mux.Handle("GET /api/menu", gzhttp.GzipHandler(http.HandlerFunc(h.HandleLegacyGetMenu)))

	// Full replacement. Not rate limited: editors save the whole menu at once.
	mux.HandleFunc("PUT /state", h.HandleReplaceState)
	mux.HandleFunc("POST /api/menu", h.HandleReplaceState)

	// Point mutations (rate limited by IP).
	mux.Handle("POST /wallet-adjust", mutateRL(http.HandlerFunc(h.HandleWalletAdjust)))
	mux.Handle("POST /task-complete", mutateRL(http.HandlerFunc(h.HandleTaskComplete)))
	mux.Handle("POST /order", mutateRL(http.HandlerFunc(h.HandleOrder)))

	// Realtime channel (no rate limit, long-lived connection).
	mux.HandleFunc("GET /ws", cfg.Hub.ServeWS)

	// OpenAPI spec.
	mux.Handle("GET /openapi.yaml", gzhttp.GzipHandler(http.HandlerFunc(h.HandleOpenAPISpec)))

	// Health.
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Root: older clients open the realtime channel on "/". Everything else
	// goes to the frontend when one is configured.
	var spa http.Handler
	if cfg.StaticFS != nil {
		spa = newSPAHandler(cfg.StaticFS)
		cfg.Logger.Info("static files enabled, serving SPA at /")
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
			cfg.Hub.ServeWS(w, r)
			return
		}
		if spa == nil {
			http.NotFound(w, r)
			return
		}
		spa.ServeHTTP(w, r)
	})

	// Middleware chain (outermost executes first):
	// embedder middlewares → request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:    handler,
		logger:     cfg.Logger,
	}
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Hijacked WebSocket
// connections are not tracked by net/http; close the hub first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
