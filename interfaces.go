package menusync

import (
	"context"
	"net/http"
)

// StateHook receives every snapshot published to realtime subscribers.
// Multiple hooks may be registered via multiple WithStateHook calls.
// Hook methods run in goroutines and must not block indefinitely.
// Failures are logged but do not fail the originating request.
type StateHook interface {
	OnStateChange(ctx context.Context, state State) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the middleware chain and OTEL instrumentation with the
// built-in ones. Registering a pattern that is already taken panics.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /healthz.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
