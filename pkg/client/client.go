// Package client is a Go peer for the auction websocket protocol.
//
// Do sends a request tagged with a fresh correlation id and waits for the response carrying the same
// id. Every other frame (pushes, and responses nobody waits for) is delivered on Pushes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionLost is returned for requests still waiting when the connection ends.
var ErrConnectionLost = errors.New("connection lost")

const (
	pushBuffer = 256
	writeWait  = 10 * time.Second
)

type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Response
	lost    bool

	pushes    chan protocol.Response
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the auction websocket at url. header may carry an Authorization bearer token.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan protocol.Response),
		pushes:  make(chan protocol.Response, pushBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Pushes delivers server-initiated frames. It is closed when the connection ends. Frames arriving
// while the buffer is full are dropped.
func (c *Client) Pushes() <-chan protocol.Response { return c.pushes }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Do sends a request of type t and waits for its response.
func (c *Client) Do(ctx context.Context, t protocol.Type, payload any) (protocol.Response, error) {
	req := protocol.Request{Type: t, CorrelationID: uuid.NewString()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		req.Payload = raw
	}

	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	if c.lost {
		c.mu.Unlock()
		return protocol.Response{}, ErrConnectionLost
	}
	c.pending[req.CorrelationID] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.forget(req.CorrelationID)
		return protocol.Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Response{}, ErrConnectionLost
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.CorrelationID)
		return protocol.Response{}, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) write(req protocol.Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write %s: %w", req.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.fail()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		c.deliver(resp)
	}
}

// deliver hands resp to the request waiting for its correlation id, exactly once.
func (c *Client) deliver(resp protocol.Response) {
	if resp.CorrelationID != nil {
		c.mu.Lock()
		ch, ok := c.pending[*resp.CorrelationID]
		delete(c.pending, *resp.CorrelationID)
		c.mu.Unlock()
		if ok {
			ch <- resp
			return
		}
	}
	select {
	case c.pushes <- resp:
	default:
	}
}

// fail ends every pending request with ErrConnectionLost.
func (c *Client) fail() {
	c.mu.Lock()
	c.lost = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	close(c.pushes)
	close(c.done)
	c.conn.Close()
}

// Close announces the disconnect to the server and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.write(protocol.Request{Type: protocol.Disconnect, CorrelationID: uuid.NewString()})
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}
