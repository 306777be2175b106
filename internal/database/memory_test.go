package database

import (
	"context"
	"testing"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      Service
	seller  types.User
	buyer   types.User
	item    types.Item
	auction types.Auction
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := NewMemory()

	seller, err := db.CreateUser(ctx, types.User{Username: "sam", Email: "sam@example.com", Role: types.RoleSeller}, "h")
	require.NoError(t, err)
	buyer, err := db.CreateUser(ctx, types.User{Username: "bea", Email: "bea@example.com", Role: types.RoleBuyer}, "h")
	require.NoError(t, err)
	item, err := db.CreateItem(ctx, types.Item{SellerID: seller.ID, Name: "Vase"})
	require.NoError(t, err)
	start := time.Now().Add(-time.Minute)
	a, err := db.CreateAuction(ctx, types.Auction{ItemID: item.ID, StartTime: start, EndTime: start.Add(time.Hour), StartPrice: 100})
	require.NoError(t, err)

	return fixture{db: db, seller: seller, buyer: buyer, item: item, auction: a}
}

func TestMemory_CreateUser_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.CreateUser(context.Background(), types.User{Username: "sam", Email: "other@example.com"}, "h")
	require.ErrorIs(t, err, errors.ErrDuplicate)
	_, err = f.db.CreateUser(context.Background(), types.User{Username: "other", Email: "sam@example.com"}, "h")
	require.ErrorIs(t, err, errors.ErrDuplicate)
}

func TestMemory_CreateAuction_JoinsItem(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, types.StatusUpcoming, f.auction.Status)
	assert.Equal(t, types.PaymentPending, f.auction.PaymentStatus)
	assert.Equal(t, int64(100), f.auction.CurrentHighestBid)
	assert.Equal(t, "Vase", f.auction.Item.Name)
	assert.Equal(t, f.seller.ID, f.auction.SellerID())

	open, err := f.db.ItemHasOpenAuction(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.True(t, open)

	_, err = f.db.CreateAuction(context.Background(), types.Auction{ItemID: f.item.ID, StartPrice: 5})
	require.ErrorIs(t, err, errors.ErrDuplicate)
}

func TestMemory_RecordBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.RecordBid(ctx, types.Bid{AuctionID: f.auction.ID, BidderID: f.buyer.ID, Amount: 150})
	require.ErrorIs(t, err, errors.ErrConflict, "upcoming auctions refuse bids")

	ok, err := f.db.ActivateAuction(ctx, f.auction.ID)
	require.NoError(t, err)
	require.True(t, ok)

	tests := []struct {
		amount  int64
		wantErr error
	}{
		{amount: 100, wantErr: errors.ErrConflict},
		{amount: 150},
		{amount: 150, wantErr: errors.ErrConflict},
		{amount: 151},
	}
	for _, tt := range tests {
		bid, err := f.db.RecordBid(ctx, types.Bid{AuctionID: f.auction.ID, BidderID: f.buyer.ID, Amount: tt.amount})
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr, "amount %d", tt.amount)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, "bea", bid.BidderName)
	}

	a, err := f.db.GetAuctionByID(ctx, f.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(151), a.CurrentHighestBid)
	assert.True(t, a.IsWinner(f.buyer.ID))
	assert.Equal(t, "bea", a.WinningBidderName)

	bids, err := f.db.ListBidsForAuction(ctx, f.auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(151), bids[0].Amount, "newest first")

	mine, err := f.db.ListBidsByUser(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Vase", mine[0].ItemName)
	assert.Equal(t, types.StatusActive, mine[0].AuctionStatus)
}

func TestMemory_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.db.FinishAuction(ctx, f.auction.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "upcoming auctions cannot finish")

	due, err := f.db.ListDueUpcoming(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{f.auction.ID}, due)

	ok, _ = f.db.ActivateAuction(ctx, f.auction.ID)
	require.True(t, ok)
	ok, _ = f.db.ActivateAuction(ctx, f.auction.ID)
	assert.False(t, ok)
	ok, _ = f.db.CancelAuction(ctx, f.auction.ID)
	assert.False(t, ok, "active auctions cannot be cancelled")

	due, err = f.db.ListDueActive(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{f.auction.ID}, due)

	ok, _ = f.db.FinishAuction(ctx, f.auction.ID, types.Int64(f.buyer.ID))
	require.True(t, ok)

	ok, _ = f.db.MarkPaid(ctx, f.auction.ID, f.seller.ID)
	assert.False(t, ok, "only the winner pays")
	ok, _ = f.db.MarkPaid(ctx, f.auction.ID, f.buyer.ID)
	assert.True(t, ok)
	ok, _ = f.db.MarkPaid(ctx, f.auction.ID, f.buyer.ID)
	assert.False(t, ok)

	won, err := f.db.ListWonAuctions(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, types.PaymentPaid, won[0].PaymentStatus)

	open, _ := f.db.ItemHasOpenAuction(ctx, f.item.ID)
	assert.False(t, open)
}

func TestMemory_Messages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.db.CreateMessage(ctx, types.Message{AuctionID: f.auction.ID, SenderID: f.buyer.ID, ReceiverID: f.seller.ID, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "bea", msg.SenderName)
	assert.Equal(t, "sam", msg.ReceiverName)
	assert.Equal(t, "Vase", msg.ItemName)

	_, err = f.db.CreateMessage(ctx, types.Message{AuctionID: 999, SenderID: f.buyer.ID, ReceiverID: f.seller.ID, Text: "hi"})
	require.ErrorIs(t, err, errors.ErrRecordNotFound)

	ok, _ := f.db.MarkMessageRead(ctx, msg.ID, f.buyer.ID)
	assert.False(t, ok, "only the receiver marks read")
	ok, _ = f.db.MarkMessageRead(ctx, msg.ID, f.seller.ID)
	assert.True(t, ok)

	for _, id := range []int64{f.buyer.ID, f.seller.ID} {
		list, err := f.db.ListMessagesForUser(ctx, id)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Read)
	}
}

func TestMemory_DeleteUser_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.db.ActivateAuction(ctx, f.auction.ID)
	_, err := f.db.RecordBid(ctx, types.Bid{AuctionID: f.auction.ID, BidderID: f.buyer.ID, Amount: 120})
	require.NoError(t, err)
	_, err = f.db.CreateMessage(ctx, types.Message{AuctionID: f.auction.ID, SenderID: f.buyer.ID, ReceiverID: f.seller.ID, Text: "hi"})
	require.NoError(t, err)

	res, err := f.db.DeleteUser(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.auction.ID}, res.Deleted)
	assert.Empty(t, res.Repriced)

	_, err = f.db.GetItemByID(ctx, f.item.ID)
	require.ErrorIs(t, err, errors.ErrRecordNotFound)
	bids, _ := f.db.ListBidsByUser(ctx, f.buyer.ID)
	assert.Empty(t, bids)
	msgs, _ := f.db.ListMessagesForUser(ctx, f.buyer.ID)
	assert.Empty(t, msgs)

	_, err = f.db.DeleteUser(ctx, f.seller.ID)
	require.ErrorIs(t, err, errors.ErrRecordNotFound)
}

func TestMemory_DeleteUser_RepricesOpenAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.db.CreateUser(ctx, types.User{Username: "ola", Email: "ola@example.com", Role: types.RoleBuyer}, "h")
	require.NoError(t, err)
	_, _ = f.db.ActivateAuction(ctx, f.auction.ID)
	_, err = f.db.RecordBid(ctx, types.Bid{AuctionID: f.auction.ID, BidderID: other.ID, Amount: 150})
	require.NoError(t, err)
	_, err = f.db.RecordBid(ctx, types.Bid{AuctionID: f.auction.ID, BidderID: f.buyer.ID, Amount: 200})
	require.NoError(t, err)

	res, err := f.db.DeleteUser(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, []int64{f.auction.ID}, res.Repriced)

	a, err := f.db.GetAuctionByID(ctx, f.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), a.CurrentHighestBid)
	require.NotNil(t, a.WinningBidderID)
	assert.Equal(t, other.ID, *a.WinningBidderID)
	assert.Equal(t, "ola", a.WinningBidderName)

	_, err = f.db.DeleteUser(ctx, other.ID)
	require.NoError(t, err)
	a, err = f.db.GetAuctionByID(ctx, f.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.CurrentHighestBid, "back to the start price")
	assert.Nil(t, a.WinningBidderID)
}

func TestMemory_DeleteAuction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.DeleteAuction(ctx, f.auction.ID))
	require.ErrorIs(t, f.db.DeleteAuction(ctx, f.auction.ID), errors.ErrRecordNotFound)

	all, err := f.db.ListAllAuctions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemory_UpdateItemAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.UpdateItem(ctx, types.Item{ID: f.item.ID, Name: "Blue vase"}))
	a, err := f.db.GetAuctionByID(ctx, f.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue vase", a.Item.Name)

	require.ErrorIs(t, f.db.UpdateUserEmail(ctx, f.buyer.ID, "sam@example.com"), errors.ErrDuplicate)
	require.NoError(t, f.db.UpdateUserEmail(ctx, f.buyer.ID, "bea@new.example.com"))
	u, err := f.db.GetUserByID(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, "bea@new.example.com", u.Email)

	users, err := f.db.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bea", users[0].Username)
}
