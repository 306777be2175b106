package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/internal/hub"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Options tune the keepalive and buffering of a Client.
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan []byte   // Queue drained by WriteMessages, the only writer of Conn
	RateLimiter *rate.Limiter // Rate limiter to prevent spamming

	hub  *hub.Hub
	opts Options

	mu   sync.RWMutex
	user *types.User // Logged-in user, nil when anonymous

	done      chan struct{} // Closed once by Disconnect
	closing   chan struct{} // Closed once by Shutdown
	closeOnce sync.Once
	shutOnce  sync.Once
}

func NewClient(id string, conn *websocket.Conn, h *hub.Hub, limiter *rate.Limiter, opts Options) *Client {
	return &Client{
		ID:          id,
		Conn:        conn,
		Send:        make(chan []byte, opts.SendBuffer),
		RateLimiter: limiter,
		hub:         h,
		opts:        opts,
		done:        make(chan struct{}),
		closing:     make(chan struct{}),
	}
}

// User returns the logged-in user of the session.
func (c *Client) User() (types.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return types.User{}, false
	}
	return *c.user, true
}

// Login binds the session to user and makes it the user's push target.
func (c *Client) Login(user types.User) {
	c.mu.Lock()
	c.user = &user
	c.mu.Unlock()
	c.hub.Bind(c, user.ID)
}

// Logout forgets the logged-in user and stops user-targeted pushes to this session.
func (c *Client) Logout() {
	c.hub.Unbind(c)
	c.Deauthenticate()
}

func (c *Client) Deauthenticate() {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
}

// Push queues resp without blocking. A full queue drops it.
func (c *Client) Push(resp protocol.Response) bool {
	message, err := json.Marshal(resp)
	if err != nil {
		log.Error("Failed to encode push", "client", c.ID, "type", resp.Type, "err", err)
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- message:
		return true
	default:
		log.Warn("Send queue full, dropping push", "client", c.ID, "type", resp.Type)
		return false
	}
}

// Reply queues resp, waiting for room unless the session closes first.
func (c *Client) Reply(resp protocol.Response) {
	message, err := json.Marshal(resp)
	if err != nil {
		log.Error("Failed to encode response", "client", c.ID, "type", resp.Type, "err", err)
		return
	}
	select {
	case c.Send <- message:
	case <-c.done:
	}
}

// Shutdown queues notice and closes the connection with a close frame once the queue is flushed.
func (c *Client) Shutdown(notice protocol.Response) {
	c.Push(notice)
	c.shutOnce.Do(func() { close(c.closing) })
}

// Done is closed when the session has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadMessages listens for incoming messages from the client until handleMessage returns false or
// the transport fails.
func (c *Client) ReadMessages(handleMessage func(*Client, []byte) bool) {
	defer func() {
		c.Disconnect() // Ensure cleanup
		log.Debugf("Connection closed for client %s", c.ID)
	}()

	c.Conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("Error reading message from client %s: %v", c.ID, err)
			}
			return
		}
		if !handleMessage(c, message) {
			return
		}
	}
}

// WriteMessages sends queued messages and keepalive pings to the client.
func (c *Client) WriteMessages() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Disconnect()
	}()

	for {
		select {
		case message := <-c.Send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debugf("Error sending message to client %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debugf("Ping failed for client %s: %v", c.ID, err)
				return
			}
		case <-c.closing:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case message := <-c.Send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.Conn.WriteMessage(messageType, data)
}

// Disconnect releases the session exactly once: it leaves the hub and closes the connection.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Unregister(c)
		c.Conn.Close()
		log.Debugf("Client %s cleanup completed", c.ID) // Lower-level log here
	})
}
