package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Martin-Hayot/live-auction-server/internal/auth"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu     sync.Mutex
	online map[int64]bool
	pushes map[int64][]protocol.Response
}

func (i *inbox) SendToUser(userID int64, resp protocol.Response) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.online[userID] {
		return false
	}
	i.pushes[userID] = append(i.pushes[userID], resp)
	return true
}

type env struct {
	ctx      context.Context
	store    database.Service
	auth     *auth.Authenticator
	users    *Users
	items    *Items
	messages *Messages
	catalog  *Catalog
	inbox    *inbox
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := database.NewMemory()
	a, err := auth.New("test-secret", time.Hour, "session")
	require.NoError(t, err)
	box := &inbox{online: map[int64]bool{}, pushes: map[int64][]protocol.Response{}}
	return &env{
		ctx:      context.Background(),
		store:    store,
		auth:     a,
		users:    NewUsers(store, a),
		items:    NewItems(store),
		messages: NewMessages(store, box),
		catalog:  NewCatalog(store),
		inbox:    box,
	}
}

func (e *env) register(t *testing.T, name string, role types.Role) types.User {
	t.Helper()
	u, err := e.users.Register(e.ctx, protocol.RegisterPayload{
		Username: name, Password: "secret123", Email: name + "@example.com", Role: role,
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", types.RoleBuyer)

	tests := []struct {
		name string
		p    protocol.RegisterPayload
		code int
	}{
		{"duplicate username", protocol.RegisterPayload{Username: "alice", Password: "secret123", Email: "other@example.com"}, errors.ErrAlreadyExists},
		{"duplicate email", protocol.RegisterPayload{Username: "bob", Password: "secret123", Email: "ALICE@example.com"}, errors.ErrAlreadyExists},
		{"admin refused", protocol.RegisterPayload{Username: "root", Password: "secret123", Email: "root@example.com", Role: types.RoleAdmin}, errors.ErrForbidden},
		{"unknown role", protocol.RegisterPayload{Username: "x", Password: "secret123", Email: "x@example.com", Role: "GUEST"}, errors.ErrInvalidArgument},
		{"short password", protocol.RegisterPayload{Username: "y", Password: "123", Email: "y@example.com"}, errors.ErrInvalidArgument},
		{"password too long", protocol.RegisterPayload{Username: "v", Password: strings.Repeat("p", 73), Email: "v@example.com"}, errors.ErrInvalidArgument},
		{"bad email", protocol.RegisterPayload{Username: "z", Password: "secret123", Email: "not-an-email"}, errors.ErrInvalidArgument},
		{"blank username", protocol.RegisterPayload{Username: "  ", Password: "secret123", Email: "w@example.com"}, errors.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.users.Register(e.ctx, tt.p)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestRegister_LongestPassword(t *testing.T) {
	e := newEnv(t)
	password := strings.Repeat("p", 72)
	_, err := e.users.Register(e.ctx, protocol.RegisterPayload{Username: "dan", Password: password, Email: "dan@example.com"})
	require.NoError(t, err)

	_, err = e.users.Login(e.ctx, protocol.LoginPayload{Username: "dan", Password: password})
	require.NoError(t, err)
}

func TestRegister_DefaultsToBuyer(t *testing.T) {
	e := newEnv(t)
	u, err := e.users.Register(e.ctx, protocol.RegisterPayload{Username: "carol", Password: "secret123", Email: "carol@example.com"})
	require.NoError(t, err)
	assert.Equal(t, types.RoleBuyer, u.Role)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)

	res, err := e.users.Login(e.ctx, protocol.LoginPayload{Username: "sam", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, seller.ID, res.User.ID)

	claims, err := e.auth.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, seller.ID, claims.UserID)
	assert.Equal(t, types.RoleSeller, claims.Role)

	_, err = e.users.Login(e.ctx, protocol.LoginPayload{Username: "sam", Password: "wrong"})
	assert.Equal(t, errors.ErrInvalidCredentials, errors.CodeOf(err))
	_, err = e.users.Login(e.ctx, protocol.LoginPayload{Username: "nobody", Password: "secret123"})
	assert.Equal(t, errors.ErrInvalidCredentials, errors.CodeOf(err))
}

func TestUpdateEmail(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice", types.RoleBuyer)
	e.register(t, "bob", types.RoleBuyer)

	u, err := e.users.UpdateEmail(e.ctx, alice.ID, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)

	_, err = e.users.UpdateEmail(e.ctx, alice.ID, "bob@example.com")
	assert.Equal(t, errors.ErrAlreadyExists, errors.CodeOf(err))
	_, err = e.users.UpdateEmail(e.ctx, alice.ID, " ")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
	_, err = e.users.UpdateEmail(e.ctx, 999, "ghost@example.com")
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestItems(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)

	_, err := e.items.Create(e.ctx, seller.ID, protocol.ItemPayload{Name: " "})
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	first, err := e.items.Create(e.ctx, seller.ID, protocol.ItemPayload{Name: "Lamp", ID: 42})
	require.NoError(t, err)
	assert.NotEqual(t, int64(42), first.ID)
	assert.Equal(t, seller.ID, first.SellerID)
	second, err := e.items.Create(e.ctx, seller.ID, protocol.ItemPayload{Name: "Chair"})
	require.NoError(t, err)

	items, err := e.items.OwnedBy(e.ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)

	none, err := e.items.OwnedBy(e.ctx, 999)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func (e *env) openAuction(t *testing.T, sellerID int64) types.Auction {
	t.Helper()
	item, err := e.items.Create(e.ctx, sellerID, protocol.ItemPayload{Name: "Vase"})
	require.NoError(t, err)
	a, err := e.store.CreateAuction(e.ctx, types.Auction{
		ItemID: item.ID, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), StartPrice: 10,
	})
	require.NoError(t, err)
	return a
}

func TestSendMessage_DefaultsToSeller(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)
	buyer := e.register(t, "bob", types.RoleBuyer)
	a := e.openAuction(t, seller.ID)
	e.inbox.online[seller.ID] = true

	msg, err := e.messages.Send(e.ctx, buyer.ID, protocol.SendMessagePayload{AuctionID: a.ID, Text: "Is it chipped?"})
	require.NoError(t, err)
	assert.Equal(t, seller.ID, msg.ReceiverID)
	assert.Equal(t, "bob", msg.SenderName)

	require.Len(t, e.inbox.pushes[seller.ID], 1)
	push := e.inbox.pushes[seller.ID][0]
	assert.Equal(t, protocol.NewMessageNotification, push.Type)
	assert.Equal(t, "You have a new message from bob", push.Message)
	assert.True(t, push.IsPush())

	// Offline receivers still get the stored message.
	reply, err := e.messages.Send(e.ctx, seller.ID, protocol.SendMessagePayload{AuctionID: a.ID, ReceiverID: buyer.ID, Text: "No"})
	require.NoError(t, err)
	assert.Empty(t, e.inbox.pushes[buyer.ID])

	inbox, err := e.messages.Inbox(e.ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, reply.ID, inbox[0].ID)
}

func TestSendMessage_Rejections(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)
	buyer := e.register(t, "bob", types.RoleBuyer)
	a := e.openAuction(t, seller.ID)

	_, err := e.messages.Send(e.ctx, seller.ID, protocol.SendMessagePayload{AuctionID: a.ID, Text: "hi"})
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err), "seller writing to itself")

	_, err = e.messages.Send(e.ctx, buyer.ID, protocol.SendMessagePayload{AuctionID: 999, Text: "hi"})
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	_, err = e.messages.Send(e.ctx, buyer.ID, protocol.SendMessagePayload{AuctionID: a.ID, Text: ""})
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	_, err = e.messages.Send(e.ctx, buyer.ID, protocol.SendMessagePayload{AuctionID: a.ID, ReceiverID: 999, Text: "hi"})
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestMarkRead_ReceiverOnly(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)
	buyer := e.register(t, "bob", types.RoleBuyer)
	a := e.openAuction(t, seller.ID)

	msg, err := e.messages.Send(e.ctx, buyer.ID, protocol.SendMessagePayload{AuctionID: a.ID, Text: "hello"})
	require.NoError(t, err)

	err = e.messages.MarkRead(e.ctx, buyer.ID, msg.ID)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	require.NoError(t, e.messages.MarkRead(e.ctx, seller.ID, msg.ID))
	inbox, err := e.messages.Inbox(e.ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.True(t, inbox[0].Read)
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)
	seller := e.register(t, "sam", types.RoleSeller)
	buyer := e.register(t, "bob", types.RoleBuyer)
	a := e.openAuction(t, seller.ID)

	_, err := e.catalog.Auction(e.ctx, 999)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
	_, err = e.catalog.Bids(e.ctx, 999)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	bids, err := e.catalog.Bids(e.ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, bids)
	assert.Empty(t, bids)

	created, err := e.catalog.CreatedBy(e.ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, a.ID, created[0].ID)

	won, err := e.catalog.WonBy(e.ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, won)

	all, err := e.catalog.All(e.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	users, err := e.users.List(e.ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
