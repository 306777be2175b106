package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Martin-Hayot/live-auction-server/configs"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service represents the durable store behind the auction server.
//
// Conditional writes (RecordBid, ActivateAuction, FinishAuction, CancelAuction, MarkPaid) report
// errors.ErrConflict or false when their guard matched no row, so a caller holding stale state can
// never overwrite a newer transition.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health(ctx context.Context) map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// USER METHODS
	CreateUser(ctx context.Context, user types.User, passwordHash string) (types.User, error)
	GetUserByID(ctx context.Context, id int64) (types.User, error)
	GetUserCredentials(ctx context.Context, username string) (types.User, string, error)
	ListUsers(ctx context.Context) ([]types.User, error)
	UpdateUserEmail(ctx context.Context, id int64, email string) error
	// DeleteUser removes the user's messages, bids, items and their auctions, then the user row.
	// ACTIVE auctions that lose bids are repriced against the remaining ones in the same write.
	DeleteUser(ctx context.Context, id int64) (UserRemoval, error)

	// ITEM METHODS
	CreateItem(ctx context.Context, item types.Item) (types.Item, error)
	GetItemByID(ctx context.Context, id int64) (types.Item, error)
	ListItemsBySeller(ctx context.Context, sellerID int64) ([]types.Item, error)
	UpdateItem(ctx context.Context, item types.Item) error
	ItemHasOpenAuction(ctx context.Context, itemID int64) (bool, error)

	// AUCTION METHODS
	CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	GetAuctionByID(ctx context.Context, id int64) (types.Auction, error)
	ListActiveAuctions(ctx context.Context) ([]types.Auction, error)
	ListAllAuctions(ctx context.Context) ([]types.Auction, error)
	ListAuctionsBySeller(ctx context.Context, sellerID int64) ([]types.Auction, error)
	ListWonAuctions(ctx context.Context, userID int64) ([]types.Auction, error)
	ListDueUpcoming(ctx context.Context, now time.Time) ([]int64, error)
	ListDueActive(ctx context.Context, now time.Time) ([]int64, error)
	ActivateAuction(ctx context.Context, id int64) (bool, error)
	FinishAuction(ctx context.Context, id int64, winnerID *int64) (bool, error)
	CancelAuction(ctx context.Context, id int64) (bool, error)
	MarkPaid(ctx context.Context, id, buyerID int64) (bool, error)
	DeleteAuction(ctx context.Context, id int64) error

	// BID METHODS
	// RecordBid inserts the bid and moves the auction's highest bid and winner to it in one
	// transaction. The update only applies while the auction is ACTIVE and the amount exceeds the
	// stored highest bid; otherwise nothing is written and errors.ErrConflict is returned.
	RecordBid(ctx context.Context, bid types.Bid) (types.Bid, error)
	ListBidsForAuction(ctx context.Context, auctionID int64) ([]types.Bid, error)
	ListBidsByUser(ctx context.Context, userID int64) ([]types.Bid, error)

	// MESSAGE METHODS
	CreateMessage(ctx context.Context, msg types.Message) (types.Message, error)
	ListMessagesForUser(ctx context.Context, userID int64) ([]types.Message, error)
	MarkMessageRead(ctx context.Context, messageID, receiverID int64) (bool, error)
}

// UserRemoval lists the auctions a DeleteUser call touched.
type UserRemoval struct {
	Deleted  []int64 // auctions on the user's items
	Repriced []int64 // ACTIVE auctions the user had bid on
}

// New opens the store selected by cfg.Database.Driver. For PostgreSQL, pending migrations are
// applied first when cfg.Database.Migrate is set.
func New(ctx context.Context, cfg *configs.Config) (Service, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("Using in-memory store, data is lost on shutdown")
		return NewMemory(), nil
	}

	dsn := cfg.DSN()
	if cfg.Database.Migrate {
		if err := Migrate(ctx, dsn); err != nil {
			return nil, fmt.Errorf("error with migration: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	log.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)
	return NewPostgres(pool), nil
}
