// Package stomp implements a minimal STOMP 1.2 client over a WebSocket
// transport. It covers exactly what subscribing to the analyzer's log topics
// needs: CONNECT, SUBSCRIBE, MESSAGE dispatch, and DISCONNECT. Server
// heart-beats are tolerated and ignored; the client never reconnects on its
// own.
package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Subscribe after the connection has terminated.
var ErrClosed = errors.New("stomp: connection closed")

// handshakeTimeout bounds the wait for the server's CONNECTED frame.
const handshakeTimeout = 10 * time.Second

// Message is one MESSAGE frame delivered to a subscription.
type Message struct {
	Destination string
	Body        []byte
}

// Subscription receives the MESSAGE frames published to one destination.
// C preserves server delivery order and is closed when the connection
// terminates, cleanly or not.
type Subscription struct {
	ID          string
	Destination string
	C           <-chan Message
}

// Conn is an established STOMP session over a single WebSocket connection.
type Conn struct {
	ws   *websocket.Conn
	done chan struct{}

	wmu sync.Mutex // gorilla allows one concurrent writer

	mu     sync.Mutex
	subs   map[string]chan Message
	nextID int
	closed bool
	err    error
}

// Dial opens the WebSocket at rawURL, performs the STOMP CONNECT handshake,
// and starts the read loop. rawURL must use the ws or wss scheme.
func Dial(ctx context.Context, rawURL string) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rawURL, err)
	}

	c := &Conn{
		ws:   ws,
		done: make(chan struct{}),
		subs: make(map[string]chan Message),
	}

	connect := Frame{
		Command: "CONNECT",
		Headers: map[string]string{
			"accept-version": "1.2,1.1",
			"host":           u.Host,
			"heart-beat":     "0,0",
		},
	}
	if err := c.writeFrame(connect); err != nil {
		ws.Close()
		return nil, fmt.Errorf("sending CONNECT: %w", err)
	}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)

	f, err := c.readFrame()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("waiting for CONNECTED: %w", err)
	}
	switch f.Command {
	case "CONNECTED":
	case "ERROR":
		ws.Close()
		return nil, fmt.Errorf("broker refused connection: %s", errorText(f))
	default:
		ws.Close()
		return nil, fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}
	_ = ws.SetReadDeadline(time.Time{})

	go c.readLoop()
	return c, nil
}

// Subscribe registers for messages published to destination.
func (c *Conn) Subscribe(destination string) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id := fmt.Sprintf("sub-%d", c.nextID)
	c.nextID++
	ch := make(chan Message, 64)
	c.subs[id] = ch
	c.mu.Unlock()

	frame := Frame{
		Command: "SUBSCRIBE",
		Headers: map[string]string{
			"id":          id,
			"destination": destination,
			"ack":         "auto",
		},
	}
	if err := c.writeFrame(frame); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribing to %s: %w", destination, err)
	}

	return &Subscription{ID: id, Destination: destination, C: ch}, nil
}

// Close sends DISCONNECT on a best-effort basis and tears the connection
// down. It is idempotent and safe to call after a failure.
func (c *Conn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.mu.Unlock()
	if !already {
		_ = c.writeFrame(Frame{Command: "DISCONNECT"})
	}
	c.terminate(nil)
	return nil
}

// Err reports why the connection terminated: nil before termination and
// after a clean Close, the transport or broker error otherwise.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection terminates.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// readLoop dispatches frames until the connection dies. It is the sole
// closer of subscription channels, which keeps closing and dispatching from
// racing each other.
func (c *Conn) readLoop() {
	defer c.closeSubs()
	for {
		f, err := c.readFrame()
		if err != nil {
			c.terminate(err)
			return
		}
		switch f.Command {
		case "MESSAGE":
			c.dispatch(f)
		case "ERROR":
			c.terminate(fmt.Errorf("broker error: %s", errorText(f)))
			return
		default:
			// RECEIPT and anything else we did not ask for.
		}
	}
}

// readFrame reads the next frame, skipping heart-beat messages.
func (c *Conn) readFrame() (Frame, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		for len(data) > 0 && (data[0] == '\n' || data[0] == '\r') {
			data = data[1:]
		}
		if len(data) == 0 {
			continue
		}
		return parseFrame(data)
	}
}

func (c *Conn) dispatch(f Frame) {
	c.mu.Lock()
	ch, ok := c.subs[f.Headers["subscription"]]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- Message{Destination: f.Headers["destination"], Body: f.Body}:
	case <-c.done:
	}
}

// terminate records the first termination cause and closes the socket. Later
// calls are no-ops, so the error from tearing down the socket never masks
// the original failure.
func (c *Conn) terminate(err error) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.err = err
		close(c.done)
	}
	c.mu.Unlock()
	c.ws.Close()
}

func (c *Conn) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

func (c *Conn) writeFrame(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, f.encode())
}
