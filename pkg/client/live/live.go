// Package live maintains websocket live-query subscriptions against the
// server, redialing with a fixed backoff on transport failures.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
)

// TokenSource supplies the bearer credential for the ws handshake.
type TokenSource func() string

// Handler receives pushed events for a subscription.
type Handler func(model.PushMessage)

// Client dials the server live endpoint.
type Client struct {
	url     string
	token   TokenSource
	backoff time.Duration
	dialer  *websocket.Dialer
}

// NewClient returns a live client for the given ws:// or wss:// URL.
func NewClient(url string, token TokenSource, backoff time.Duration) *Client {
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	return &Client{
		url:     url,
		token:   token,
		backoff: backoff,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Subscription is one live predicate held open by the client.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   gosync.Once
}

// Close cancels the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(func() { s.cancel() })
	<-s.done
}

// Subscribe opens a connection for one predicate and delivers events to
// handler until the subscription is closed. On unexpected close it waits
// the fixed backoff and resubscribes with the same predicate; an auth
// failure close is terminal and is never retried. Method "once" ends the
// subscription after the first delivery.
func (c *Client) Subscribe(ctx context.Context, msg model.SubscribeMessage, handler Handler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go c.run(ctx, msg, handler, sub)
	return sub
}

func (c *Client) run(ctx context.Context, msg model.SubscribeMessage, handler Handler, sub *Subscription) {
	defer close(sub.done)
	for {
		if ctx.Err() != nil {
			return
		}
		retry := c.session(ctx, msg, handler)
		if !retry {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

// session runs one connect-subscribe-read cycle. It reports whether the
// caller should reconnect.
func (c *Client) session(ctx context.Context, msg model.SubscribeMessage, handler Handler) bool {
	header := http.Header{}
	if c.token != nil {
		if t := c.token(); t != "" {
			header.Set("Authorization", "Bearer "+t)
		}
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			logger.Warn("live_auth_rejected", "collection", msg.Collection)
			return false
		}
		logger.Warn("live_dial_failed", "collection", msg.Collection, "error", err.Error())
		return ctx.Err() == nil
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	if err := ws.WriteJSON(msg); err != nil {
		logger.Warn("live_subscribe_failed", "collection", msg.Collection, "error", err.Error())
		return ctx.Err() == nil
	}
	logger.Debug("live_subscribed", "collection", msg.Collection, "event", string(msg.Event))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if websocket.IsCloseError(err, model.CloseAuthFailure) {
				logger.Warn("live_auth_rejected", "collection", msg.Collection)
				return false
			}
			logger.Debug("live_connection_lost", "collection", msg.Collection, "error", err.Error())
			return true
		}
		var push model.PushMessage
		if err := json.Unmarshal(data, &push); err != nil {
			logger.Warn("live_push_invalid", "collection", msg.Collection, "error", err.Error())
			continue
		}
		handler(push)
		if msg.Method == model.MethodOnce {
			return false
		}
	}
}
