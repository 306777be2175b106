package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("auctions"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	db := NewPostgres(pool)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresIntegration_BidLifecycle(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	seller, err := db.CreateUser(ctx, types.User{Username: "seller", Email: "s@example.com", Role: types.RoleSeller}, "h")
	require.NoError(t, err)
	buyer, err := db.CreateUser(ctx, types.User{Username: "buyer", Email: "b@example.com", Role: types.RoleBuyer}, "h")
	require.NoError(t, err)
	item, err := db.CreateItem(ctx, types.Item{SellerID: seller.ID, Name: "Lamp"})
	require.NoError(t, err)

	start := time.Now().Add(-time.Minute)
	a, err := db.CreateAuction(ctx, types.Auction{
		ItemID: item.ID, StartTime: start, EndTime: start.Add(time.Hour), StartPrice: 100,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusUpcoming, a.Status)
	require.Equal(t, int64(100), a.CurrentHighestBid)
	require.Equal(t, seller.ID, a.SellerID())

	_, err = db.CreateAuction(ctx, types.Auction{
		ItemID: item.ID, StartTime: start, EndTime: start.Add(time.Hour), StartPrice: 100,
	})
	require.ErrorIs(t, err, errors.ErrDuplicate)

	due, err := db.ListDueUpcoming(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, due)

	ok, err := db.ActivateAuction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)

	bid, err := db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: buyer.ID, Amount: 150})
	require.NoError(t, err)
	require.Equal(t, "buyer", bid.BidderName)

	_, err = db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: buyer.ID, Amount: 150})
	require.ErrorIs(t, err, errors.ErrConflict)

	got, err := db.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150), got.CurrentHighestBid)
	require.True(t, got.IsWinner(buyer.ID))
	require.Equal(t, "buyer", got.WinningBidderName)

	ok, err = db.FinishAuction(ctx, a.ID, types.Int64(buyer.ID))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.FinishAuction(ctx, a.ID, types.Int64(buyer.ID))
	require.NoError(t, err)
	require.False(t, ok)

	won, err := db.ListWonAuctions(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, won, 1)

	ok, err = db.MarkPaid(ctx, a.ID, buyer.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.MarkPaid(ctx, a.ID, buyer.ID)
	require.NoError(t, err)
	require.False(t, ok)

	msg, err := db.CreateMessage(ctx, types.Message{AuctionID: a.ID, SenderID: buyer.ID, ReceiverID: seller.ID, Text: "paid"})
	require.NoError(t, err)
	require.Equal(t, "Lamp", msg.ItemName)

	res, err := db.DeleteUser(ctx, seller.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, res.Deleted)
	_, err = db.GetAuctionByID(ctx, a.ID)
	require.ErrorIs(t, err, errors.ErrRecordNotFound)
}

func TestPostgresIntegration_ConcurrentBids(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	seller, err := db.CreateUser(ctx, types.User{Username: "seller", Email: "s@example.com", Role: types.RoleSeller}, "h")
	require.NoError(t, err)
	item, err := db.CreateItem(ctx, types.Item{SellerID: seller.ID, Name: "Clock"})
	require.NoError(t, err)
	start := time.Now().Add(-time.Minute)
	a, err := db.CreateAuction(ctx, types.Auction{ItemID: item.ID, StartTime: start, EndTime: start.Add(time.Hour), StartPrice: 10})
	require.NoError(t, err)
	_, err = db.ActivateAuction(ctx, a.ID)
	require.NoError(t, err)

	var bidders []int64
	for _, name := range []string{"b1", "b2", "b3", "b4"} {
		u, err := db.CreateUser(ctx, types.User{Username: name, Email: name + "@example.com", Role: types.RoleBuyer}, "h")
		require.NoError(t, err)
		bidders = append(bidders, u.ID)
	}

	// Every bidder races for the same amount: exactly one may win.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, id := range bidders {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: id, Amount: 50}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, accepted)
	bids, err := db.ListBidsForAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
}

func TestPostgresIntegration_DeleteLeadingBidder(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	seller, err := db.CreateUser(ctx, types.User{Username: "seller", Email: "s@example.com", Role: types.RoleSeller}, "h")
	require.NoError(t, err)
	x, err := db.CreateUser(ctx, types.User{Username: "x", Email: "x@example.com", Role: types.RoleBuyer}, "h")
	require.NoError(t, err)
	y, err := db.CreateUser(ctx, types.User{Username: "y", Email: "y@example.com", Role: types.RoleBuyer}, "h")
	require.NoError(t, err)
	item, err := db.CreateItem(ctx, types.Item{SellerID: seller.ID, Name: "Painting"})
	require.NoError(t, err)
	start := time.Now().Add(-time.Minute)
	a, err := db.CreateAuction(ctx, types.Auction{ItemID: item.ID, StartTime: start, EndTime: start.Add(time.Hour), StartPrice: 100})
	require.NoError(t, err)
	_, err = db.ActivateAuction(ctx, a.ID)
	require.NoError(t, err)

	_, err = db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: x.ID, Amount: 150})
	require.NoError(t, err)
	_, err = db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: y.ID, Amount: 200})
	require.NoError(t, err)

	res, err := db.DeleteUser(ctx, y.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, res.Repriced)

	got, err := db.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150), got.CurrentHighestBid)
	require.NotNil(t, got.WinningBidderID)
	require.Equal(t, x.ID, *got.WinningBidderID)

	_, err = db.RecordBid(ctx, types.Bid{AuctionID: a.ID, BidderID: x.ID, Amount: 180})
	require.NoError(t, err)

	_, err = db.DeleteUser(ctx, x.ID)
	require.NoError(t, err)
	got, err = db.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.CurrentHighestBid)
	require.Nil(t, got.WinningBidderID)
}
