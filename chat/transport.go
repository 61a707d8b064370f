package chat

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/streambot/telemetry"
)

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("chat transport not connected")

// Hooks is what the transport drives. Session implements it.
type Hooks interface {
	OnOpen(send func(line string) error) error
	OnFrame(ctx context.Context, frame string)
	OnClose(reason string)
	ReconnectRequested() <-chan struct{}
}

// Transport keeps a websocket connection to the chat server alive and feeds frames to Hooks.
type Transport struct {
	URL        string
	Hooks      Hooks
	Dialer     *websocket.Dialer
	Tracer     *FrameTracer
	MinBackoff time.Duration
	MaxBackoff time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// Send writes one line as a text frame on the current connection.
func (t *Transport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return err
	}
	t.Tracer.Outbound(line)
	return nil
}

// Run connects and reconnects with exponential backoff until ctx is canceled.
func (t *Transport) Run(ctx context.Context) error {
	minB, maxB := t.MinBackoff, t.MaxBackoff
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 2 * time.Minute
	}
	attempt := 0
	for {
		start := time.Now()
		err := t.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a connection that stayed up for a while resets the backoff
		if time.Since(start) > time.Minute {
			attempt = 0
		}
		backoff := minB * time.Duration(1<<min(attempt, 8))
		if backoff > maxB {
			backoff = maxB
		}
		//nolint:gosec // G404: jitter only
		backoff += time.Duration(rand.Int63n(int64(minB)))
		attempt++
		telemetry.IncReconnect("irc")
		slog.Warn("chat connection lost; reconnecting", slog.Any("err", err), slog.Int("attempt", attempt), slog.Duration("backoff", backoff), slog.String("component", "chat"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (t *Transport) runOnce(ctx context.Context) error {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	conn, _, err := dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	reason := "closed"
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()
		t.Hooks.OnClose(reason)
	}()

	if err := t.Hooks.OnOpen(t.Send); err != nil {
		reason = "handshake failed"
		return err
	}

	// unblock ReadMessage on shutdown or server-requested reconnect
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-t.Hooks.ReconnectRequested():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		t.Hooks.OnFrame(ctx, string(data))
	}
}
