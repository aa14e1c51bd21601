// ABOUTME: WebSocket connection carrying renderer messages
// ABOUTME: Non-blocking send queue, writer loop with pings and typed reads
package wire

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/emuaudio/pkg/protocol"
)

const (
	writeDeadline    = 10 * time.Second
	pingInterval     = 30 * time.Second
	DefaultSendQueue = 256
)

var (
	// ErrQueueFull is returned when the peer is not draining fast enough
	ErrQueueFull = errors.New("send queue full")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("connection closed")
)

type frame struct {
	kind int
	data []byte
}

// Conn wraps a websocket with an ordered, drop-when-full send queue.
// Reads happen on the caller's goroutine, writes on Run's.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan frame

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// New wraps ws; call Run to start writing
func New(ws *websocket.Conn, logger *slog.Logger, queue int) *Conn {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:     ws,
		logger: logger,
		send:   make(chan frame, queue),
		done:   make(chan struct{}),
	}
}

// WriteJSON writes a control message synchronously. Only valid before Run.
func (c *Conn) WriteJSON(msg protocol.Message) error {
	data, err := protocol.EncodeJSON(msg)
	if err != nil {
		return err
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadHandshake reads one control message within timeout
func (c *Conn) ReadHandshake(timeout time.Duration) (protocol.Message, error) {
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer c.ws.SetReadDeadline(time.Time{})

	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	if kind != websocket.TextMessage {
		return protocol.Message{}, fmt.Errorf("%w: expected text handshake frame", protocol.ErrMalformed)
	}
	return protocol.DecodeJSON(data)
}

// Read returns the next message. Errors wrapping protocol.ErrMalformed are
// recoverable; anything else means the connection is gone.
func (c *Conn) Read() (protocol.Message, error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}

	switch kind {
	case websocket.BinaryMessage:
		chunk, err := protocol.DecodePCMFrame(data)
		if err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{Type: protocol.TypePCM, Payload: chunk}, nil
	case websocket.TextMessage:
		return protocol.DecodeJSON(data)
	default:
		return protocol.Message{}, fmt.Errorf("%w: unexpected frame kind %d", protocol.ErrMalformed, kind)
	}
}

// Send queues a message without blocking. PCM travels as a binary frame.
func (c *Conn) Send(msg protocol.Message) error {
	if msg.Type == protocol.TypePCM {
		chunk, ok := msg.Payload.(protocol.PCMChunk)
		if !ok {
			return fmt.Errorf("%w: pcm payload is %T", protocol.ErrMalformed, msg.Payload)
		}
		return c.enqueue(frame{kind: websocket.BinaryMessage, data: protocol.EncodePCMFrame(chunk.Seq, chunk.Data)})
	}

	data, err := protocol.EncodeJSON(msg)
	if err != nil {
		return err
	}
	return c.enqueue(frame{kind: websocket.TextMessage, data: data})
}

func (c *Conn) enqueue(f frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run writes queued frames and pings until the connection closes
func (c *Conn) Run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(f.kind, f.data); err != nil {
				c.logger.Debug("WebSocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// Done is closed once the connection is closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many messages were discarded because the queue was full
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
