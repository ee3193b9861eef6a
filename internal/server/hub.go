package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/telemetry"
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("hub: closed")

// Hub defaults.
const (
	DefaultQueueSize    = 16
	DefaultPingInterval = 30 * time.Second
	DefaultWriteWait    = 5 * time.Second
	maxClientMessage    = 4096
)

// StateSource provides the snapshot sent to new subscribers.
type StateSource interface {
	Get() model.State
}

// HubOptions configures a Hub. Zero values take the defaults.
type HubOptions struct {
	// QueueSize is the number of envelopes buffered per subscriber. A
	// subscriber whose queue is full when a publish arrives is dropped.
	QueueSize int
	// PingInterval is how often protocol pings are sent. A connection that
	// sends nothing (including pongs) for twice this long is closed.
	PingInterval time.Duration
	// WriteWait bounds each write to a connection.
	WriteWait time.Duration
}

// Subscriber is one realtime connection registered with the hub. The hub
// closes Send when the subscriber is removed.
type Subscriber struct {
	id     uint64
	send   chan []byte
	failed atomic.Bool
}

// ID identifies the subscriber in logs.
func (s *Subscriber) ID() uint64 { return s.id }

// Send delivers serialized envelopes in order. It is closed on removal.
func (s *Subscriber) Send() <-chan []byte { return s.send }

// Fail marks the subscriber's transport as broken. The next publish drops it.
func (s *Subscriber) Fail() { s.failed.Store(true) }

// Hub fans out state snapshots to realtime subscribers.
type Hub struct {
	source StateSource
	logger *slog.Logger
	opts   HubOptions

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool

	published metric.Int64Counter
	pruned    metric.Int64Counter
	active    metric.Int64UpDownCounter
}

// NewHub creates a Hub that reads init snapshots from source.
func NewHub(source StateSource, logger *slog.Logger, opts HubOptions) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	meter := telemetry.Meter("menusync/hub")
	published, _ := meter.Int64Counter("menusync.hub.published",
		metric.WithDescription("State updates published to subscribers"),
	)
	pruned, _ := meter.Int64Counter("menusync.hub.pruned",
		metric.WithDescription("Subscribers dropped after a failed or blocked send"),
	)
	active, _ := meter.Int64UpDownCounter("menusync.hub.subscribers",
		metric.WithDescription("Connected realtime subscribers"),
	)
	return &Hub{
		source: source,
		logger: logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			// No caller authentication; any page may open the feed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs:      make(map[*Subscriber]struct{}),
		published: published,
		pruned:    pruned,
		active:    active,
	}
}

func encodeEnvelope(t model.EnvelopeType, data any) ([]byte, error) {
	return json.Marshal(model.Envelope{Type: t, Data: data})
}

// Subscribe registers a subscriber and enqueues an init envelope carrying
// the current snapshot. The init is enqueued under the hub lock, so no
// update can precede it.
func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	msg, err := encodeEnvelope(model.EnvelopeInit, h.source.Get())
	if err != nil {
		return nil, err
	}
	sub := &Subscriber{
		id:   h.nextID.Add(1),
		send: make(chan []byte, h.opts.QueueSize),
	}
	sub.send <- msg
	h.subs[sub] = struct{}{}
	h.active.Add(context.Background(), 1)
	return sub, nil
}

// Unsubscribe removes sub and closes its queue. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) bool {
	if _, ok := h.subs[sub]; !ok {
		return false
	}
	delete(h.subs, sub)
	close(sub.send)
	h.active.Add(context.Background(), -1)
	return true
}

// Publish sends an update envelope with s to every subscriber. It never
// blocks on a subscriber: one whose queue is full or whose transport has
// failed is removed after the fan-out.
func (h *Hub) Publish(s model.State) {
	msg, err := encodeEnvelope(model.EnvelopeUpdate, s)
	if err != nil {
		h.logger.Error("hub: encode update", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	var dead []*Subscriber
	for sub := range h.subs {
		if sub.failed.Load() {
			dead = append(dead, sub)
			continue
		}
		select {
		case sub.send <- msg:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.removeLocked(sub)
		h.logger.Debug("hub: subscriber pruned", "subscriber", sub.id)
	}
	ctx := context.Background()
	h.published.Add(ctx, 1)
	if len(dead) > 0 {
		h.pruned.Add(ctx, int64(len(dead)))
	}
}

// enqueue sends one message to a single subscriber without blocking.
func (h *Hub) enqueue(sub *Subscriber, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	select {
	case sub.send <- msg:
	default:
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close sends a shutdown envelope to every subscriber and removes them all.
// Their writers flush what is queued and then close the connection. A full
// queue drops its oldest message to make room for the shutdown envelope.
func (h *Hub) Close() {
	msg, _ := encodeEnvelope(model.EnvelopeShutdown, nil)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			// Only the hub sends, under h.mu, so one receive frees a slot.
			select {
			case <-sub.send:
			default:
			}
			sub.send <- msg
		}
		h.removeLocked(sub)
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.logger.Debug("hub: upgrade failed", "error", err)
		return
	}
	sub, err := h.Subscribe()
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.opts.WriteWait))
		_ = conn.Close()
		return
	}
	h.logger.Debug("hub: subscriber connected", "subscriber", sub.id, "remote_addr", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(conn, sub)
	}()
	h.readLoop(conn, sub)
	<-done
	h.logger.Debug("hub: subscriber disconnected", "subscriber", sub.id)
}

// writeLoop is the only goroutine that writes to conn.
func (h *Hub) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.opts.WriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("hub: write failed", "subscriber", sub.id, "error", err)
				sub.Fail()
				h.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
				sub.Fail()
				h.Unsubscribe(sub)
				return
			}
		}
	}
}

// readLoop consumes client frames so that pongs and close frames are
// processed. A client may send {"type":"heartbeat"} and gets one back.
func (h *Hub) readLoop(conn *websocket.Conn, sub *Subscriber) {
	defer h.Unsubscribe(sub)

	pongWait := 2 * h.opts.PingInterval
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	heartbeat, _ := encodeEnvelope(model.EnvelopeHeartbeat, nil)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		var env model.Envelope
		if json.Unmarshal(msg, &env) == nil && env.Type == model.EnvelopeHeartbeat {
			h.enqueue(sub, heartbeat)
		}
	}
}
