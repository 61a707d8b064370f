package eventsub

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/streambot/telemetry"
)

// DefaultURL is the EventSub websocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

// Client owns the websocket connection and feeds frames to a Listener.
type Client struct {
	URL        string
	Listener   *Listener
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Run connects, follows server reconnect URLs immediately and otherwise
// reconnects with backoff until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	base := c.URL
	if base == "" {
		base = DefaultURL
	}
	minB, maxB := c.MinBackoff, c.MaxBackoff
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 2 * time.Minute
	}

	url := base
	attempt := 0
	for {
		start := time.Now()
		next, err := c.runOnce(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if next != "" {
			c.Listener.Reset(true)
			url = next
			continue
		}
		c.Listener.Reset(false)
		url = base
		if time.Since(start) > time.Minute {
			attempt = 0
		}
		backoff := min(minB*time.Duration(1<<min(attempt, 8)), maxB)
		//nolint:gosec // G404: jitter only
		backoff += time.Duration(rand.Int63n(int64(minB)))
		attempt++
		telemetry.IncReconnect("eventsub")
		slog.Warn("eventsub connection lost; reconnecting", slog.Any("err", err), slog.Int("attempt", attempt), slog.Duration("backoff", backoff), slog.String("component", "eventsub"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// runOnce serves one connection. A non-empty return is the URL the server asked us to move to.
func (c *Client) runOnce(ctx context.Context, url string) (string, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", err
	}
	telemetry.SetSessionUp("eventsub", true)
	defer func() {
		telemetry.SetSessionUp("eventsub", false)
		_ = conn.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		// Twitch sends a keepalive at least every keepalive window; silence past it means a dead socket
		window := c.Listener.Keepalive()
		if window <= 0 {
			window = 10 * time.Second
		}
		_ = conn.SetReadDeadline(time.Now().Add(window + 10*time.Second))

		typ, data, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if typ != websocket.TextMessage {
			continue
		}
		if err := c.Listener.HandleFrame(ctx, data); err != nil {
			return "", err
		}
		if next := c.Listener.TakeReconnectURL(); next != "" {
			return next, nil
		}
	}
}
