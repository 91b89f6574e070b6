package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the minimal surface ExchangeStream needs from a WebSocket
// connection. *websocket.Conn satisfies it directly; tests substitute a
// fake peer dialed over a loopback HTTP server so the full handshake and
// classify/transform path runs without reaching a real exchange.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Socket to a URL. Swappable in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// gorillaDialer is the production Dialer, backed by gorilla/websocket.
type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DefaultDialer is the Dialer used when none is supplied to New.
var DefaultDialer Dialer = gorillaDialer{}
