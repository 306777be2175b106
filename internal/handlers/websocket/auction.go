package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/Martin-Hayot/live-auction-server/configs"
	"github.com/Martin-Hayot/live-auction-server/internal/auth"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/internal/hub"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ShutdownNotice is pushed to every session when the server stops.
var ShutdownNotice = protocol.Push(protocol.ServerShutdown, "Server is shutting down.", nil)

type AuctionHandler struct {
	router   *Router
	hub      *hub.Hub
	db       database.Service
	auth     *auth.Authenticator
	cfg      *configs.Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	draining bool
	readers  sync.WaitGroup // Running ReadMessages loops
}

func NewAuctionWebSocketHandler(router *Router, h *hub.Hub, db database.Service, a *auth.Authenticator, cfg *configs.Config) *AuctionHandler {
	handler := &AuctionHandler{router: router, hub: h, db: db, auth: a, cfg: cfg}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if cfg.Features.AllowCrossOrigin {
		handler.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return handler
}

// Drain makes the handler refuse new connections.
func (h *AuctionHandler) Drain() {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()
}

func (h *AuctionHandler) isDraining() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draining
}

// track runs fn in a goroutine counted by Wait, unless the handler is draining.
func (h *AuctionHandler) track(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.readers.Add(1)
	go func() {
		defer h.readers.Done()
		fn()
	}()
	return true
}

// Wait blocks until every session has stopped processing requests. Call it after Drain.
func (h *AuctionHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleAuctions upgrades the HTTP request to a WebSocket connection and starts the session.
func (h *AuctionHandler) handleAuctions(w http.ResponseWriter, r *http.Request, user *types.User) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	ws := h.cfg.WebSocket
	client := NewClient(uuid.NewString(), conn, h.hub,
		rate.NewLimiter(rate.Limit(h.cfg.RateLimit.PerSecond), h.cfg.RateLimit.Burst),
		Options{
			PingInterval:   ws.PingInterval,
			PongWait:       ws.PongWait,
			WriteWait:      ws.WriteWait,
			MaxMessageSize: ws.MaxMessageSize,
			SendBuffer:     ws.SendBuffer,
		})

	h.hub.Register(client)
	if user != nil {
		client.Login(*user)
	}
	log.Debug("Client connected", "client", client.ID, "remote", r.RemoteAddr, "user", userName(user))

	// Start handling the client
	go client.WriteMessages()
	if !h.track(func() { client.ReadMessages(h.router.HandleMessage) }) {
		// A shutdown began during the upgrade and has already walked the session set.
		client.Shutdown(ShutdownNotice)
	}
}

// HandleAuctionWebSocket authenticates an optional session token and upgrades the connection.
// Connections without a token start anonymous and may log in over the socket.
func (h *AuctionHandler) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isDraining() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	token, ok := h.auth.TokenFromRequest(r)
	if !ok {
		h.handleAuctions(w, r, nil)
		return
	}

	claims, err := h.auth.Verify(token)
	if err != nil {
		log.Warn("Invalid session token", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Check if the user exists
	user, err := h.db.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		log.Warn("Token user not found", "user", claims.UserID, "err", err)
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Pass to WebSocket handler
	h.handleAuctions(w, r, &user)
}

func userName(u *types.User) string {
	if u == nil {
		return "anonymous"
	}
	return u.Username
}
