// Package push consumes the backend's rider websocket. Order events trigger
// an immediate forced refresh so the rider does not wait out a poll interval
// to learn about a new offer or an out-of-band cancellation; polling remains
// the fallback when the socket is down.
package push

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/rider-agent/internal/observability"
)

// Refresher is the slice of the order synchronizer the listener needs.
type Refresher interface {
	RefreshActive(ctx context.Context, force bool) error
}

// Event is one message from the rider socket.
type Event struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId,omitempty"`
}

type Listener struct {
	url       string
	refresher Refresher
	logger    *slog.Logger
	dialer    *websocket.Dialer
}

func NewListener(url string, refresher Refresher, logger *slog.Logger) *Listener {
	return &Listener{url: url, refresher: refresher, logger: logger, dialer: websocket.DefaultDialer}
}

// Run connects and consumes events until ctx is cancelled, reconnecting with
// capped exponential backoff.
func (l *Listener) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, resp, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			l.logger.Warn("push connect failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		l.consume(ctx, conn)
		_ = conn.Close()
	}
}

func (l *Listener) consume(ctx context.Context, conn *websocket.Conn) {
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
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("push read failed", "error", err)
			}
			return
		}
		observability.PushEventsTotal.Inc()
		switch ev.Type {
		case "order_offered", "order_updated", "order_cancelled":
			if err := l.refresher.RefreshActive(ctx, true); err != nil {
				l.logger.Warn("push-triggered refresh failed", "error", err)
			}
		default:
			l.logger.Debug("ignoring push event", "type", ev.Type)
		}
	}
}
