// Package listener reloads the state cache when the external store reports a
// change made by another writer.
package listener

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/menusync/internal/telemetry"
)

// Defaults for Options.
const (
	DefaultDebounce   = 250 * time.Millisecond
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// Source blocks until the store has changed. The Postgres store (LISTEN/NOTIFY)
// and the SQLite file watcher implement it. An error means the source itself
// failed and will be retried after a backoff.
type Source interface {
	WaitForChange(ctx context.Context) error
}

// Reloader re-reads the store into the cache and reports whether the cached
// content changed. menu.Service implements it.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Options configures a Listener. Zero values take the defaults.
type Options struct {
	// Debounce is how long to wait after the first change signal before
	// reloading. Signals arriving in that window are folded into one reload.
	Debounce time.Duration
	// MinBackoff and MaxBackoff bound the retry delay after a source error.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Resync forces a reload at this interval even without a signal. Zero disables it.
	Resync time.Duration
}

// Listener turns change signals into cache reloads.
type Listener struct {
	source   Source
	reloader Reloader
	logger   *slog.Logger
	opts     Options
	group    singleflight.Group

	reloads      metric.Int64Counter
	sourceErrors metric.Int64Counter
}

// New creates a Listener. Call Run to start it.
func New(source Source, reloader Reloader, logger *slog.Logger, opts Options) *Listener {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.MinBackoff)
	}
	meter := telemetry.Meter("menusync/listener")
	reloads, _ := meter.Int64Counter("menusync.listener.reloads",
		metric.WithDescription("Cache reloads triggered by store changes"),
	)
	sourceErrors, _ := meter.Int64Counter("menusync.listener.source_errors",
		metric.WithDescription("Change source failures"),
	)
	return &Listener{
		source:       source,
		reloader:     reloader,
		logger:       logger,
		opts:         opts,
		reloads:      reloads,
		sourceErrors: sourceErrors,
	}
}

// Run blocks until ctx is cancelled. It never returns an error for a failed
// reload or a failed source; both are logged and retried.
func (l *Listener) Run(ctx context.Context) error {
	signals := make(chan struct{}, 1)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		l.pump(ctx, signals)
	}()
	defer func() { <-pumpDone }()

	debounce := time.NewTimer(l.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()
	pending := false

	var resync <-chan time.Time
	if l.opts.Resync > 0 {
		ticker := time.NewTicker(l.opts.Resync)
		defer ticker.Stop()
		resync = ticker.C
	}

	l.logger.Info("listener: watching for store changes", "debounce", l.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signals:
			if !pending {
				debounce.Reset(l.opts.Debounce)
				pending = true
			}
		case <-debounce.C:
			pending = false
			_, _ = l.Trigger(ctx, "notify")
		case <-resync:
			_, _ = l.Trigger(ctx, "resync")
		}
	}
}

// pump forwards source signals to signals without blocking. A signal that
// finds the channel full is already covered by the pending one. A source
// error is followed by one signal after the backoff, so writes made during
// the outage get reloaded.
func (l *Listener) pump(ctx context.Context, signals chan<- struct{}) {
	backoff := l.opts.MinBackoff
	for {
		err := l.source.WaitForChange(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.sourceErrors.Add(ctx, 1)
			l.logger.Warn("listener: change source failed, retrying", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, l.opts.MaxBackoff)
			// Changes made while the source was down were never signalled.
			notify(signals)
			continue
		}
		backoff = l.opts.MinBackoff
		notify(signals)
	}
}

func notify(signals chan<- struct{}) {
	select {
	case signals <- struct{}{}:
	default:
	}
}

// Trigger reloads now. Concurrent calls share a single reload.
func (l *Listener) Trigger(ctx context.Context, reason string) (bool, error) {
	v, err, _ := l.group.Do("reload", func() (any, error) {
		changed, err := l.reloader.Reload(ctx)
		l.reloads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.Bool("changed", changed),
			attribute.Bool("failed", err != nil),
		))
		return changed, err
	})
	if err != nil {
		l.logger.Error("listener: reload failed, keeping cached state", "reason", reason, "error", err)
		return false, err
	}
	changed := v.(bool)
	if changed {
		l.logger.Info("listener: state reloaded from store", "reason", reason)
	}
	return changed, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
