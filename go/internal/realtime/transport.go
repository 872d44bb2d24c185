package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the manager relies on. Tests supply
// in-memory implementations.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a transport session to the given URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the game server with gorilla/websocket.
type WebsocketDialer struct {
	dialer         *websocket.Dialer
	header         http.Header
	maxMessageSize int64
}

// NewWebsocketDialer creates a dialer from the connection configuration.
func NewWebsocketDialer(config ConnectionConfig) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		header:         config.Header,
		maxMessageSize: config.MaxMessageSize,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	if d.maxMessageSize > 0 {
		conn.SetReadLimit(d.maxMessageSize)
	}
	return conn, nil
}
