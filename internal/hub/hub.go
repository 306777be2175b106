// Package hub tracks live sessions, which user each one is logged in as, and which auctions each one
// watches, and delivers server pushes to them.
package hub

import (
	"sync"

	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/charmbracelet/log"
)

// Session is the hub's view of a connected client.
type Session interface {
	// Push queues resp without blocking, reporting false when it was dropped.
	Push(resp protocol.Response) bool
	// Deauthenticate forgets the session's logged-in user.
	Deauthenticate()
	// Shutdown sends notice best-effort and closes the connection.
	Shutdown(notice protocol.Response)
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[Session]struct{}
	users    map[int64]Session
	bound    map[Session]int64
	auctions map[int64]map[Session]struct{}
	watching map[Session]map[int64]struct{}
	metrics  *metrics.Metrics
}

func New(m *metrics.Metrics) *Hub {
	return &Hub{
		sessions: make(map[Session]struct{}),
		users:    make(map[int64]Session),
		bound:    make(map[Session]int64),
		auctions: make(map[int64]map[Session]struct{}),
		watching: make(map[Session]map[int64]struct{}),
		metrics:  m,
	}
}

// Register adds s to the live-session set.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SessionsActive.Set(float64(n))
}

// Unregister removes s from the live set, the user index and every subscriber set.
func (h *Hub) Unregister(s Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	h.unbindLocked(s)
	for id := range h.watching[s] {
		h.leaveLocked(id, s)
	}
	delete(h.watching, s)
	n := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SessionsActive.Set(float64(n))
}

// Bind records s as the delivery target for userID. A later binding of the same user replaces it and
// deauthenticates the session it replaced.
func (h *Hub) Bind(s Session, userID int64) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	h.unbindLocked(s)
	prev, replaced := h.users[userID]
	replaced = replaced && prev != s
	if replaced {
		delete(h.bound, prev)
		log.Debug("User logged in from a new session", "user", userID)
	}
	h.users[userID] = s
	h.bound[s] = userID
	h.mu.Unlock()

	if replaced {
		prev.Deauthenticate()
	}
}

// Unbind drops s from the user index.
func (h *Hub) Unbind(s Session) {
	h.mu.Lock()
	h.unbindLocked(s)
	h.mu.Unlock()
}

func (h *Hub) unbindLocked(s Session) {
	userID, ok := h.bound[s]
	if !ok {
		return
	}
	delete(h.bound, s)
	if h.users[userID] == s {
		delete(h.users, userID)
	}
}

// UnbindUser detaches userID's session, if any, and deauthenticates it.
func (h *Hub) UnbindUser(userID int64) {
	h.mu.Lock()
	s, ok := h.users[userID]
	if ok {
		delete(h.users, userID)
		delete(h.bound, s)
	}
	h.mu.Unlock()

	if ok {
		s.Deauthenticate()
	}
}

// Subscribe adds s to the subscriber set of auctionID. Sessions that already closed are ignored.
func (h *Hub) Subscribe(s Session, auctionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	subs, ok := h.auctions[auctionID]
	if !ok {
		subs = make(map[Session]struct{})
		h.auctions[auctionID] = subs
	}
	subs[s] = struct{}{}

	w, ok := h.watching[s]
	if !ok {
		w = make(map[int64]struct{})
		h.watching[s] = w
	}
	w[auctionID] = struct{}{}
}

func (h *Hub) leaveLocked(auctionID int64, s Session) {
	subs := h.auctions[auctionID]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.auctions, auctionID)
	}
}

// DropAuction forgets every subscriber of auctionID.
func (h *Hub) DropAuction(auctionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.auctions[auctionID] {
		delete(h.watching[s], auctionID)
	}
	delete(h.auctions, auctionID)
}

// Subscribers returns the number of sessions watching auctionID.
func (h *Hub) Subscribers(auctionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.auctions[auctionID])
}

// Broadcast pushes resp to every subscriber of auctionID and returns how many accepted it.
func (h *Hub) Broadcast(auctionID int64, resp protocol.Response) int {
	h.mu.RLock()
	targets := make([]Session, 0, len(h.auctions[auctionID]))
	for s := range h.auctions[auctionID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if h.push(s, resp) {
			delivered++
		}
	}
	return delivered
}

// SendToUser pushes resp to the session bound to userID, reporting false when the user is offline
// or the push was dropped.
func (h *Hub) SendToUser(userID int64, resp protocol.Response) bool {
	h.mu.RLock()
	s, ok := h.users[userID]
	h.mu.RUnlock()

	if !ok {
		h.metrics.PushesTotal.WithLabelValues(string(resp.Type), "offline").Inc()
		return false
	}
	return h.push(s, resp)
}

func (h *Hub) push(s Session, resp protocol.Response) bool {
	ok := s.Push(resp)
	outcome := "delivered"
	if !ok {
		outcome = "dropped"
	}
	h.metrics.PushesTotal.WithLabelValues(string(resp.Type), outcome).Inc()
	return ok
}

// Sessions returns a snapshot of the live-session set.
func (h *Hub) Sessions() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll sends notice to every live session and closes it.
func (h *Hub) CloseAll(notice protocol.Response) {
	sessions := h.Sessions()
	log.Infof("Closing %d sessions", len(sessions))
	for _, s := range sessions {
		s.Shutdown(notice)
	}
}
