package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/codewandler/realtime-go/internal/websocket"
)

// Transport is an open duplex channel of JSON text messages.
type Transport interface {
	Send(data []byte) error
	IsOpen() bool
	Close(ctx context.Context) error
}

type DialConfig struct {
	URL     string
	Headers http.Header
	// OnMessage receives every inbound message in arrival order.
	OnMessage func(data []byte)
	// OnClose is called once when the transport terminates, err is nil for a
	// clean close.
	OnClose func(err error)
	Logger  *slog.Logger
}

// Dialer opens a Transport. The default dials a websocket.
type Dialer func(ctx context.Context, cfg DialConfig) (Transport, error)

type wsTransport struct {
	*websocket.Client
}

func (t wsTransport) Send(data []byte) error { return t.WriteText(data) }

func dialWebsocket(ctx context.Context, cfg DialConfig) (Transport, error) {
	c, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:     cfg.URL,
		Headers: cfg.Headers,
		Logger:  cfg.Logger,
		OnText: func(data []byte) error {
			cfg.OnMessage(data)
			return nil
		},
		OnClose: cfg.OnClose,
	})
	if err != nil {
		return nil, err
	}
	return wsTransport{c}, nil
}
