// Package livequery multiplexes mongo change streams onto websocket
// subscriptions. One watcher per collection+filter pair; subscriptions
// sharing the pair share the stream.
package livequery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// Hub owns the watcher table and upgrades /live requests.
type Hub struct {
	store        *store.Store
	reg          *schema.Registry
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	watchers map[string]*watcher
}

// New builds the hub. Ping keeps idle connections alive through proxies;
// writes that stall past writeTimeout drop the connection.
func New(st *store.Store, reg *schema.Registry, pingInterval, writeTimeout time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	h := &Hub{
		store:        st,
		reg:          reg,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		watchers:     make(map[string]*watcher),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// Start reparents the hub onto the process lifecycle context. Optional;
// without it the hub runs until Stop.
func (h *Hub) Start(ctx context.Context) {
	h.cancel()
	h.ctx, h.cancel = context.WithCancel(ctx)
}

// Stop cancels every watcher.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// ServeHTTP upgrades the connection and runs the subscription session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("live_upgrade_failed", "error", err)
		return
	}
	go h.session(conn, ident)
}

func (h *Hub) session(conn *websocket.Conn, ident auth.Identity) {
	defer conn.Close()
	telemetry.LiveConnections.Inc()
	defer telemetry.LiveConnections.Dec()

	var msg model.SubscribeMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return
	}
	if ident.Role == auth.RoleUnauth {
		h.closeWith(conn, model.CloseAuthFailure, "unauthorized")
		return
	}
	col, err := h.reg.Get(msg.Collection)
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	if col.Reserved && ident.Role != auth.RoleBackend {
		h.closeWith(conn, websocket.ClosePolicyViolation, "reserved collection")
		return
	}

	sub := newSubscription(msg)
	w := h.acquireWatcher(msg.Collection, msg.Filter)
	w.add(sub)
	defer h.releaseWatcher(w, sub)

	logger.Info("live_subscribed", "collection", msg.Collection, "event", msg.Event, "method", msg.Method)

	// reader only exists to notice the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case push := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(push); err != nil {
				return
			}
			if msg.Method == model.MethodOnce {
				h.closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-sub.closed:
			h.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		case <-h.ctx.Done():
			h.closeWith(conn, websocket.CloseGoingAway, "")
			return
		}
	}
}

func (h *Hub) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// acquireWatcher returns the watcher for the collection+filter pair,
// starting its change stream loop on first use.
func (h *Hub) acquireWatcher(collection string, filter map[string]any) *watcher {
	key := watchKey(collection, filter)
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watchers[key]; ok {
		return w
	}
	w := newWatcher(key, collection, filter)
	h.watchers[key] = w
	ctx, cancel := context.WithCancel(h.ctx)
	w.cancel = cancel
	go w.run(ctx, h.store)
	return w
}

// releaseWatcher drops the subscription and tears the watcher down when
// nobody is left listening.
func (h *Hub) releaseWatcher(w *watcher, sub *subscription) {
	w.remove(sub)
	h.mu.Lock()
	defer h.mu.Unlock()
	if w.empty() {
		delete(h.watchers, w.key)
		w.cancel()
	}
}

// watchKey is collection + "|" + SHA-1 of the canonical filter JSON.
func watchKey(collection string, filter map[string]any) string {
	raw, _ := json.Marshal(filter)
	sum := sha1.Sum(raw)
	return collection + "|" + hex.EncodeToString(sum[:])
}
