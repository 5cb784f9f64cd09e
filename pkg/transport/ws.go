// Package transport connects the reconciliation engine to a websocket
// delivery feed. The read loop feeds raw payloads into the engine queue;
// outbound sends are fire-and-forget writes correlated later by localId.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/logger"
	"chatsync/pkg/reconcile"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// Client maintains a websocket connection with reconnect and implements
// reconcile.Sender for outbound submissions.
type Client struct {
	url   string
	queue *reconcile.Queue

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Client feeding the given queue.
func New(url string, queue *reconcile.Queue) *Client {
	return &Client{url: url, queue: queue}
}

// Run dials and reads until ctx is cancelled, reconnecting with capped
// exponential backoff. Payloads that do not fit the queue are dropped by
// the queue itself; the feed is at-least-once so a later redelivery or
// refetch heals the gap.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			logger.Warn("ws_dial_failed", "url", c.url, "err", err, "retry_in", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		logger.Info("ws_connected", "url", c.url)
		backoff = initialBackoff

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("ws_read_failed", "err", err)
			}
			return
		}
		if err := c.queue.TryEnqueue(raw); err != nil {
			logger.Debug("ws_enqueue_dropped", "err", err)
		}
	}
}

// Send submits an outbound event fire-and-forget. An error here means the
// submission itself failed; delivery confirmation arrives separately as an
// echo on the read side.
func (c *Client) Send(ev reconcile.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
