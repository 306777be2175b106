package hub

import (
	"sync"
	"testing"

	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	pushes   []protocol.Response
	full     bool
	deauthed bool
	closed   bool
}

func (f *fakeSession) Push(resp protocol.Response) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.pushes = append(f.pushes, resp)
	return true
}

func (f *fakeSession) Deauthenticate() {
	f.mu.Lock()
	f.deauthed = true
	f.mu.Unlock()
}

func (f *fakeSession) Shutdown(notice protocol.Response) {
	f.Push(notice)
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSession) received() []protocol.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Response(nil), f.pushes...)
}

func TestBroadcast_OnlySubscribers(t *testing.T) {
	h := New(metrics.New())
	a, b, c := &fakeSession{}, &fakeSession{}, &fakeSession{}
	for _, s := range []*fakeSession{a, b, c} {
		h.Register(s)
	}
	h.Subscribe(a, 1)
	h.Subscribe(b, 1)
	h.Subscribe(c, 2)

	n := h.Broadcast(1, protocol.Push(protocol.AuctionUpdate, "update", nil))
	assert.Equal(t, 2, n)
	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
	assert.Empty(t, c.received())
}

func TestBroadcast_DroppedPushDoesNotBlockOthers(t *testing.T) {
	h := New(metrics.New())
	slow, fast := &fakeSession{full: true}, &fakeSession{}
	h.Register(slow)
	h.Register(fast)
	h.Subscribe(slow, 1)
	h.Subscribe(fast, 1)

	n := h.Broadcast(1, protocol.Push(protocol.AuctionUpdate, "update", nil))
	assert.Equal(t, 1, n)
	assert.Len(t, fast.received(), 1)
}

func TestUnregister_ScrubsEverything(t *testing.T) {
	h := New(metrics.New())
	s := &fakeSession{}
	h.Register(s)
	h.Bind(s, 7)
	h.Subscribe(s, 1)
	h.Subscribe(s, 2)

	h.Unregister(s)

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Subscribers(1))
	assert.Equal(t, 0, h.Subscribers(2))
	assert.False(t, h.SendToUser(7, protocol.Push(protocol.WinnerNotification, "won", nil)))

	// A late subscribe from a request still in flight must not resurrect the session.
	h.Subscribe(s, 3)
	assert.Equal(t, 0, h.Subscribers(3))
}

func TestBind_MostRecentWins(t *testing.T) {
	h := New(metrics.New())
	first, second := &fakeSession{}, &fakeSession{}
	h.Register(first)
	h.Register(second)

	h.Bind(first, 5)
	h.Bind(second, 5)
	require.True(t, h.SendToUser(5, protocol.Push(protocol.OutbidNotification, "outbid", nil)))
	assert.Empty(t, first.received())
	assert.Len(t, second.received(), 1)
	assert.True(t, first.deauthed, "the replaced session loses the user")
	assert.False(t, second.deauthed)

	// Closing the older session leaves the newer binding intact.
	h.Unregister(first)
	assert.True(t, h.SendToUser(5, protocol.Push(protocol.OutbidNotification, "outbid", nil)))

	h.Unbind(second)
	assert.False(t, h.SendToUser(5, protocol.Push(protocol.OutbidNotification, "outbid", nil)))
}

func TestBind_RebindMovesUser(t *testing.T) {
	h := New(metrics.New())
	s := &fakeSession{}
	h.Register(s)
	h.Bind(s, 1)
	h.Bind(s, 2)
	h.Bind(s, 2)
	assert.False(t, s.deauthed, "rebinding a session never deauthenticates it")

	assert.False(t, h.SendToUser(1, protocol.Push(protocol.NewMessageNotification, "m", nil)))
	assert.True(t, h.SendToUser(2, protocol.Push(protocol.NewMessageNotification, "m", nil)))
}

func TestUnbindUser_Deauthenticates(t *testing.T) {
	h := New(metrics.New())
	s := &fakeSession{}
	h.Register(s)
	h.Bind(s, 9)

	h.UnbindUser(9)
	assert.True(t, s.deauthed)
	assert.False(t, h.SendToUser(9, protocol.Push(protocol.NewMessageNotification, "m", nil)))
}

func TestDropAuction(t *testing.T) {
	h := New(metrics.New())
	s := &fakeSession{}
	h.Register(s)
	h.Subscribe(s, 4)
	h.DropAuction(4)

	assert.Equal(t, 0, h.Broadcast(4, protocol.Push(protocol.AuctionUpdate, "u", nil)))
	h.Unregister(s)
	assert.Equal(t, 0, h.Len())
}

func TestCloseAll(t *testing.T) {
	h := New(metrics.New())
	a, b := &fakeSession{}, &fakeSession{}
	h.Register(a)
	h.Register(b)

	h.CloseAll(protocol.Push(protocol.ServerShutdown, "Server is shutting down.", nil))

	for _, s := range []*fakeSession{a, b} {
		require.Len(t, s.received(), 1)
		assert.Equal(t, protocol.ServerShutdown, s.received()[0].Type)
		assert.True(t, s.closed)
	}
}

func TestConcurrentChurn(t *testing.T) {
	h := New(metrics.New())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s := &fakeSession{}
			h.Register(s)
			h.Bind(s, int64(i))
			h.Subscribe(s, int64(i%3))
			h.Unregister(s)
		}(i)
		go func(i int) {
			defer wg.Done()
			h.Broadcast(int64(i%3), protocol.Push(protocol.AuctionUpdate, "u", nil))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.Len())
	for id := int64(0); id < 3; id++ {
		assert.Equal(t, 0, h.Subscribers(id))
	}
}
