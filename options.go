package menusync

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides and extension points.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        *int
	databaseURL string
	notifyURL   string
	sqlitePath  string
	staticDir   string
	catalogPath string
	logger      *slog.Logger
	version     string
	stateHooks  []StateHook
	routes      []RouteRegistrar
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (MENUSYNC_PORT env var).
// Zero picks a free port.
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = &port }
}

// WithDatabaseURL selects the PostgreSQL store at url (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when queries go through a transaction-pooling proxy.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithSQLitePath selects the SQLite store at path, taking precedence over
// MENUSYNC_STORE and WithDatabaseURL.
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) { o.sqlitePath = path }
}

// WithStaticDir serves the frontend from dir (MENUSYNC_STATIC_DIR env var).
func WithStaticDir(dir string) Option {
	return func(o *resolvedOptions) { o.staticDir = dir }
}

// WithCatalog loads currencies and task kinds from a YAML file (MENUSYNC_CATALOG env var).
func WithCatalog(path string) Option {
	return func(o *resolvedOptions) { o.catalogPath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithStateHook registers a hook that receives every published snapshot.
func WithStateHook(hook StateHook) Option {
	return func(o *resolvedOptions) { o.stateHooks = append(o.stateHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Registrars are called in registration order after the built-in routes.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routes = append(o.routes, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
