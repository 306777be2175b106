package websocket

import (
	"context"

	"github.com/Martin-Hayot/live-auction-server/internal/services"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

func (r *Router) register(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.RegisterPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	user, err := r.users.Register(ctx, p)
	if err != nil {
		return "", nil, err
	}
	return "Registration successful", user, nil
}

func (r *Router) login(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.LoginPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	res, err := r.users.Login(ctx, p)
	if err != nil {
		return "", nil, err
	}
	c.client.Login(res.User)
	log.Info("User logged in", "user", res.User.Username, "client", c.client.ID)
	return "Login successful", res, nil
}

func (r *Router) logout(ctx context.Context, c call) (string, any, error) {
	c.client.Logout()
	log.Info("User logged out", "user", c.user.Username, "client", c.client.ID)
	return "Logged out.", nil, nil
}

func (r *Router) activeAuctions(ctx context.Context, c call) (string, any, error) {
	auctions, err := r.catalog.Active(ctx)
	if err != nil {
		return "", nil, err
	}
	return "Fetched active auctions.", auctions, nil
}

// auctionDetails also subscribes the session to the auction's updates.
func (r *Router) auctionDetails(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	a, err := r.catalog.Auction(ctx, id)
	if err != nil {
		return "", nil, err
	}
	r.hub.Subscribe(c.client, id)
	return "Fetched auction details.", a, nil
}

func (r *Router) bidsForAuction(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	bids, err := r.catalog.Bids(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return "Fetched bids.", bids, nil
}

func (r *Router) profile(ctx context.Context, c call) (string, any, error) {
	user, err := r.users.Profile(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Profile fetched.", user, nil
}

func (r *Router) updateProfile(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.UpdateProfilePayload](c.req)
	if err != nil {
		return "", nil, err
	}
	user, err := r.users.UpdateEmail(ctx, c.user.ID, p.Email)
	if err != nil {
		return "", nil, err
	}
	return "Email updated successfully.", user, nil
}

func (r *Router) listItem(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.ItemPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	item, err := r.items.Create(ctx, c.user.ID, p)
	if err != nil {
		return "", nil, err
	}
	return "Item listed successfully.", item, nil
}

func (r *Router) updateItem(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.ItemPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	item, err := r.engine.UpdateItem(ctx, c.user.ID, services.FromPayload(p))
	if err != nil {
		return "", nil, err
	}
	return "Item updated successfully.", item, nil
}

func (r *Router) sellerItems(ctx context.Context, c call) (string, any, error) {
	items, err := r.items.OwnedBy(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Fetched seller items.", items, nil
}

func (r *Router) createAuction(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.CreateAuctionPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	a, err := r.engine.CreateAuction(ctx, c.user.ID, types.Auction{
		ItemID:       p.ItemID,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		StartPrice:   p.StartPrice,
		ReservePrice: p.ReservePrice,
	})
	if err != nil {
		return "", nil, err
	}
	return "Auction created successfully.", a, nil
}

func (r *Router) cancelAuction(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	if _, err := r.engine.CancelUpcoming(ctx, c.user.ID, id); err != nil {
		return "", nil, err
	}
	return "Auction cancelled successfully.", id, nil
}

func (r *Router) createdAuctions(ctx context.Context, c call) (string, any, error) {
	auctions, err := r.catalog.CreatedBy(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Fetched your created auctions.", auctions, nil
}

func (r *Router) placeBid(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.PlaceBidPayload](c.req)
	if err != nil {
		return "", nil, err
	}
	bid, err := r.engine.PlaceBid(ctx, c.user.ID, p.AuctionID, p.Amount)
	if err != nil {
		return "", nil, err
	}
	return "Bid placed successfully.", bid, nil
}

func (r *Router) myBids(ctx context.Context, c call) (string, any, error) {
	bids, err := r.catalog.BidsBy(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Fetched your bids.", bids, nil
}

func (r *Router) wonAuctions(ctx context.Context, c call) (string, any, error) {
	auctions, err := r.catalog.WonBy(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Fetched your won auctions.", auctions, nil
}

func (r *Router) processPayment(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	if _, err := r.engine.ProcessPayment(ctx, c.user.ID, id); err != nil {
		return "", nil, err
	}
	return "Payment processed successfully.", id, nil
}

func (r *Router) sendMessage(ctx context.Context, c call) (string, any, error) {
	p, err := decode[protocol.SendMessagePayload](c.req)
	if err != nil {
		return "", nil, err
	}
	msg, err := r.messages.Send(ctx, c.user.ID, p)
	if err != nil {
		return "", nil, err
	}
	return "Message sent.", msg, nil
}

func (r *Router) myMessages(ctx context.Context, c call) (string, any, error) {
	msgs, err := r.messages.Inbox(ctx, c.user.ID)
	if err != nil {
		return "", nil, err
	}
	return "Fetched your messages.", msgs, nil
}

func (r *Router) markRead(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	if err := r.messages.MarkRead(ctx, c.user.ID, id); err != nil {
		return "", nil, err
	}
	return "Message marked as read.", id, nil
}

func (r *Router) allUsers(ctx context.Context, c call) (string, any, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return "", nil, err
	}
	return "Fetched all users.", users, nil
}

func (r *Router) allAuctions(ctx context.Context, c call) (string, any, error) {
	auctions, err := r.catalog.All(ctx)
	if err != nil {
		return "", nil, err
	}
	return "Fetched all auctions.", auctions, nil
}

func (r *Router) deleteUser(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	if err := r.engine.DeleteUser(ctx, c.user.ID, id); err != nil {
		return "", nil, err
	}
	return "User deleted successfully.", id, nil
}

func (r *Router) deleteAuction(ctx context.Context, c call) (string, any, error) {
	id, err := decodeID(c.req)
	if err != nil {
		return "", nil, err
	}
	if err := r.engine.DeleteAuction(ctx, id); err != nil {
		return "", nil, err
	}
	return "Auction deleted successfully.", id, nil
}
