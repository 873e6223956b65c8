package coord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairwaylab/strobeshot/internal/log"
)

// Channel is the asynchronous point-to-point transport between the two
// nodes. Delivery is at-most-once from the protocol's point of view;
// ordering is only relied on per correlation id. Receive's channel closes
// when the underlying transport dies.
type Channel interface {
	Send(m *Message) error
	Receive() <-chan *Message
	Close() error
}

// ErrChannelClosed is returned by Send after the channel shut down.
var ErrChannelClosed = errors.New("coordination channel closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Strobe frames at full resolution stay well under this.
	maxMessageSize = 8 << 20

	sendBuffer = 32
	recvBuffer = 32
)

// WSChannel is a Channel over a WebSocket connection. All writes funnel
// through a single pump goroutine so the trigger path never contends on
// the socket.
type WSChannel struct {
	conn *websocket.Conn
	send chan *Message
	recv chan *Message

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the peer's coordination endpoint.
func Dial(ctx context.Context, url string) (*WSChannel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial peer %s: %w", url, err)
	}
	return newWSChannel(conn), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The coordination port is peer-to-peer on a closed rig network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Upgrade accepts an inbound peer connection on the listening node.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WSChannel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade peer connection: %w", err)
	}
	return newWSChannel(conn), nil
}

func newWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{
		conn: conn,
		send: make(chan *Message, sendBuffer),
		recv: make(chan *Message, recvBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Send queues a message for the write pump. It never blocks on the
// network; a full queue or closed channel is an error the caller logs.
func (c *WSChannel) Send(m *Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- m:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return fmt.Errorf("send queue full, dropping %s", m.Type)
	}
}

// Receive returns the inbound message stream.
func (c *WSChannel) Receive() <-chan *Message {
	return c.recv
}

// Close tears down the transport. Safe to call more than once.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *WSChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case m := <-c.send:
			data, err := m.Bytes()
			if err != nil {
				log.Error("encode coordination message", "type", m.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("coordination write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSChannel) readPump() {
	defer func() {
		c.Close()
		close(c.recv)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn("coordination read failed", "error", err)
			}
			return
		}
		m, err := ParseMessage(data)
		if err != nil {
			// Malformed payloads abort nothing but the message itself.
			log.Warn("discarding malformed coordination message", "error", err)
			continue
		}
		select {
		case c.recv <- m:
		case <-c.done:
			return
		}
	}
}

// PipeChannel is an in-memory Channel half, for tests and single-process
// rigs. Create pairs with Pipe.
type PipeChannel struct {
	out  chan<- *Message
	recv chan *Message

	closeOnce *sync.Once
	done      chan struct{}
}

// Pipe returns two connected channel halves. Closing either half closes
// both, mirroring a dropped socket: Receive on each half closes, same as
// WSChannel when its transport dies.
func Pipe() (*PipeChannel, *PipeChannel) {
	ab := make(chan *Message, sendBuffer)
	ba := make(chan *Message, sendBuffer)
	done := make(chan struct{})
	once := new(sync.Once)
	a := &PipeChannel{out: ab, recv: make(chan *Message, recvBuffer), done: done, closeOnce: once}
	b := &PipeChannel{out: ba, recv: make(chan *Message, recvBuffer), done: done, closeOnce: once}
	go pipeForward(ba, a.recv, done)
	go pipeForward(ab, b.recv, done)
	return a, b
}

func pipeForward(src <-chan *Message, dst chan<- *Message, done <-chan struct{}) {
	defer close(dst)
	for {
		select {
		case <-done:
			return
		case m := <-src:
			select {
			case dst <- m:
			case <-done:
				return
			}
		}
	}
}

func (p *PipeChannel) Send(m *Message) error {
	// The closed check runs alone first: with both cases ready a select
	// picks at random, and a send after close must always fail.
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}
	select {
	case <-p.done:
		return ErrChannelClosed
	case p.out <- m:
		return nil
	default:
		return fmt.Errorf("pipe full, dropping %s", m.Type)
	}
}

func (p *PipeChannel) Receive() <-chan *Message { return p.recv }

func (p *PipeChannel) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
