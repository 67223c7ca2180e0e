package livequery

import (
	"context"
	"sync"
	"time"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// subscription is one websocket listener on a watcher. The channel is
// buffered and sends are non-blocking: a stalled consumer loses events
// rather than stalling the stream.
type subscription struct {
	event  model.LiveEvent
	method string
	ch     chan model.PushMessage
	closed chan struct{}
	once   sync.Once
}

func newSubscription(msg model.SubscribeMessage) *subscription {
	return &subscription{
		event:  msg.Event,
		method: msg.Method,
		ch:     make(chan model.PushMessage, 16),
		closed: make(chan struct{}),
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.closed) })
}

// watcher runs one change stream and fans events out to its
// subscriptions.
type watcher struct {
	key        string
	collection string
	filter     map[string]any
	cancel     context.CancelFunc

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newWatcher(key, collection string, filter map[string]any) *watcher {
	return &watcher{
		key:        key,
		collection: collection,
		filter:     filter,
		subs:       make(map[*subscription]struct{}),
	}
}

func (w *watcher) add(sub *subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs[sub] = struct{}{}
}

func (w *watcher) remove(sub *subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subs, sub)
}

func (w *watcher) empty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs) == 0
}

func (w *watcher) run(ctx context.Context, st *store.Store) {
	telemetry.LiveWatchers.Inc()
	defer telemetry.LiveWatchers.Dec()
	for ctx.Err() == nil {
		cs, err := st.Watch(ctx, w.collection)
		if err != nil {
			logger.Warn("live_watch_failed", "collection", w.collection, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		logger.Info("live_watch_opened", "collection", w.collection, "key", w.key)
		for cs.Next(ctx) {
			var ev store.ChangeEvent
			if err := cs.Decode(&ev); err != nil {
				logger.Warn("live_event_decode_failed", "collection", w.collection, "error", err)
				continue
			}
			if event, doc, ok := classify(ev); ok {
				w.dispatch(event, doc, ev)
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("live_stream_closed", "collection", w.collection, "error", err)
		}
		_ = cs.Close(context.Background())
	}
}

// classify maps a change stream notification to a live event class.
// Soft deletes arrive as updates that set _expires_at; only the update
// that gains the field is re-labeled delete, so later touches of an
// already tombstoned document stay silent. Physical removals (the
// retention sweep) produce nothing: the tombstoning update already
// notified everyone.
func classify(ev store.ChangeEvent) (model.LiveEvent, model.Document, bool) {
	doc := ev.FullDocument
	switch ev.OperationType {
	case "insert":
		if doc == nil {
			return "", nil, false
		}
		return model.EventInsert, doc, true
	case "update", "replace":
		if doc == nil {
			return "", nil, false
		}
		if gainedTombstone(ev) {
			return model.EventDelete, doc, true
		}
		if doc.IsTombstone() {
			return "", nil, false
		}
		return model.EventUpdate, doc, true
	default:
		return "", nil, false
	}
}

// gainedTombstone reports whether this very event set _expires_at.
// Replace events carry no update description, so the post-image decides.
func gainedTombstone(ev store.ChangeEvent) bool {
	if ev.OperationType == "replace" {
		return ev.FullDocument.IsTombstone()
	}
	_, ok := ev.UpdateDescription.UpdatedFields[model.FieldExpiresAt]
	return ok
}

// dispatch delivers to every subscription registered for the event class
// whose filter matches the post-image. Once-mode subscriptions are closed
// after their single delivery.
func (w *watcher) dispatch(event model.LiveEvent, doc model.Document, ev store.ChangeEvent) {
	if len(w.filter) > 0 && !doc.Matches(w.filter) {
		return
	}
	push := model.PushMessage{
		Doc:             doc,
		UpdatedFields:   ev.UpdateDescription.UpdatedFields,
		RemovedFields:   ev.UpdateDescription.RemovedFields,
		TruncatedArrays: ev.UpdateDescription.TruncatedArrays,
	}

	w.mu.Lock()
	targets := make([]*subscription, 0, len(w.subs))
	for sub := range w.subs {
		if sub.event == event {
			targets = append(targets, sub)
		}
	}
	w.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- push:
			telemetry.LiveEventsTotal.WithLabelValues(w.collection, string(event)).Inc()
		default:
			logger.Warn("live_subscriber_lagging", "collection", w.collection, "event", event)
		}
	}
}
