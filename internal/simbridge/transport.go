// Package simbridge implements the sim.Simulator interface over a WebSocket
// bridge to the external traffic micro-simulator. The protocol is strict
// request/response JSON: every request carries a fresh id, and the bridge
// answers each request exactly once, in order.
package simbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// #region transport

// Transport is the byte-level request/response channel to the bridge. It is
// an interface so tests can substitute an in-memory implementation.
type Transport interface {
	RoundTrip(ctx context.Context, request []byte) ([]byte, error)
	Close() error
}

// #endregion transport

// #region ws-transport

// wsTransport runs the protocol over one WebSocket connection. The mutex
// serializes round trips so interleaved requests cannot steal each other's
// replies.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialBridge connects to the bridge endpoint.
func DialBridge(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}
	// Vehicle listings on saturated lanes can exceed the default 32 KiB read
	// limit; raise it well past any realistic reply.
	conn.SetReadLimit(1 << 22)
	return &wsTransport{conn: conn}, nil
}

// RoundTrip writes one request and reads one reply.
func (t *wsTransport) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.Write(ctx, websocket.MessageText, request); err != nil {
		return nil, fmt.Errorf("bridge write: %w", err)
	}
	_, reply, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge read: %w", err)
	}
	return reply, nil
}

// Close shuts the connection down cleanly.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}

// #endregion ws-transport

// #region timeout

// withTimeout bounds a single round trip. Zero disables the bound.
func withTimeout(ctx context.Context, seconds float64) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
}

// #endregion timeout
