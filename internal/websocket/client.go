package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type HandlerFunc func(data []byte) error

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	// OnText receives every text frame. Binary frames are not part of the
	// realtime protocol and are dropped.
	OnText HandlerFunc
	// OnClose is called once when the read loop ends. err is nil for a
	// clean close.
	OnClose func(err error)
	Logger  *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	closing  atomic.Bool
	logger   *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// IsOpen reports whether the connection is still usable for writes.
func (c *Client) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return !c.closing.Load()
	}
}

// Done is closed once the connection has terminated.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close sends a close frame and waits for the peer to acknowledge it. When
// ctx ends first the connection is torn down anyway.
func (c *Client) Close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	if err := c.SendClose(ws.StatusNormalClosure, "closing"); err != nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.setDone()
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	// handshake timeout only, the connection outlives ctx
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, br, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.String("protocol", hs.Protocol))

	// frames sent right after the handshake may already sit in br
	var r io.Reader = conn
	if br != nil {
		r = br
	}

	client := &Client{
		conn:   conn,
		out:    make(chan wsutil.Message, 1000),
		done:   make(chan struct{}),
		logger: logger,
	}

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}

	go client.writeLoop()
	go func() {
		err := client.readLoop(r, onText)
		client.setDone()
		if br != nil {
			ws.PutReader(br)
		}
		if config.OnClose != nil {
			config.OnClose(err)
		}
	}()

	logger.Info("connected to websocket")

	return client, nil
}

// writeLoop is the only writer of the connection.
func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			if err := wsutil.WriteClientMessage(c.conn, msg.OpCode, msg.Payload); err != nil {
				c.logger.Error("message write failed", slog.Any("err", err))
				c.setDone()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.out:
					_ = wsutil.WriteClientMessage(c.conn, msg.OpCode, msg.Payload)
				default:
					_ = c.conn.Close()
					return
				}
			}
		}
	}
}

func (c *Client) readLoop(r io.Reader, onText HandlerFunc) error {
	for {
		messages, err := wsutil.ReadServerMessage(r, nil)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.closing.Load() {
				return nil
			}
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return nil
			}
			c.logger.Error("ws read failed", slog.Any("err", err))
			return err
		}

		for _, msg := range messages {
			if msg.OpCode.IsControl() {
				c.logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))
				switch msg.OpCode {
				case ws.OpPing:
					_ = c.Write(ws.OpPong, msg.Payload)
				case ws.OpClose:
					if !c.closing.Load() {
						c.closing.Store(true)
						_ = c.Write(ws.OpClose, msg.Payload)
					}
					return nil
				}
				continue
			}

			switch msg.OpCode {
			case ws.OpText:
				c.logger.Debug("rcv: text", slog.Int("len", len(msg.Payload)))
				if err := onText(msg.Payload); err != nil {
					c.logger.Error("text message handler failed", slog.Any("err", err))
				}
			case ws.OpBinary:
				c.logger.Debug("rcv: binary dropped", slog.Int("len", len(msg.Payload)))
			}
		}
	}
}
