package services

import (
	"context"

	"github.com/Martin-Hayot/live-auction-server/pkg/types"
)

// Active returns the ACTIVE auctions, soonest ending first.
func (c *Catalog) Active(ctx context.Context) ([]types.Auction, error) {
	return list(ctx, "list active auctions", c.store.ListActiveAuctions)
}

// All returns every auction, newest first.
func (c *Catalog) All(ctx context.Context) ([]types.Auction, error) {
	return list(ctx, "list all auctions", c.store.ListAllAuctions)
}

func (c *Catalog) Auction(ctx context.Context, auctionID int64) (types.Auction, error) {
	a, err := c.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return types.Auction{}, storeErr("get auction", err, errAuctionNotFound)
	}
	return a, nil
}

// Bids returns the bids on auctionID, most recent first.
func (c *Catalog) Bids(ctx context.Context, auctionID int64) ([]types.Bid, error) {
	if _, err := c.Auction(ctx, auctionID); err != nil {
		return nil, err
	}
	return list(ctx, "list bids", func(ctx context.Context) ([]types.Bid, error) {
		return c.store.ListBidsForAuction(ctx, auctionID)
	})
}

func (c *Catalog) CreatedBy(ctx context.Context, sellerID int64) ([]types.Auction, error) {
	return list(ctx, "list seller auctions", func(ctx context.Context) ([]types.Auction, error) {
		return c.store.ListAuctionsBySeller(ctx, sellerID)
	})
}

func (c *Catalog) BidsBy(ctx context.Context, bidderID int64) ([]types.Bid, error) {
	return list(ctx, "list user bids", func(ctx context.Context) ([]types.Bid, error) {
		return c.store.ListBidsByUser(ctx, bidderID)
	})
}

// WonBy returns the ENDED auctions buyerID won.
func (c *Catalog) WonBy(ctx context.Context, buyerID int64) ([]types.Auction, error) {
	return list(ctx, "list won auctions", func(ctx context.Context) ([]types.Auction, error) {
		return c.store.ListWonAuctions(ctx, buyerID)
	})
}
