// Package auction arbitrates bids and drives the auction lifecycle.
//
// Every write to an auction happens under that auction's lock: the engine reads the current row,
// applies policy and writes through a Store call whose own guard rejects stale state. Pushes are
// queued after the write commits and before the lock is released, so subscribers observe updates in
// commit order.
package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

// Notifier delivers pushes to sessions. *hub.Hub implements it.
type Notifier interface {
	Broadcast(auctionID int64, resp protocol.Response) int
	SendToUser(userID int64, resp protocol.Response) bool
	DropAuction(auctionID int64)
	UnbindUser(userID int64)
}

type Engine struct {
	store   database.Service
	notify  Notifier
	metrics *metrics.Metrics
	locks   *lockTable
	now     func() time.Time
}

func NewEngine(store database.Service, notify Notifier, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		notify:  notify,
		metrics: m,
		locks:   newLockTable(),
		now:     time.Now,
	}
}

var (
	errAuctionNotFound = errors.New(errors.ErrNotFound, "Auction not found.")
	errItemNotFound    = errors.New(errors.ErrNotFound, "Item not found.")
	errUserNotFound    = errors.New(errors.ErrNotFound, "User not found.")
)

// storeErr converts a Store failure into a failure the peer may see, logging the cause.
func storeErr(op string, err error, notFound *errors.AppError) error {
	if notFound != nil && errors.Is(err, errors.ErrRecordNotFound) {
		return notFound
	}
	log.Error("Store call failed", "op", op, "err", err)
	return errors.Internal(err)
}

// PlaceBid accepts amount from bidderID on auctionID when the auction is ACTIVE, the bidder does not
// own the item and the amount beats the current highest bid. Rejections carry a policy code;
// persistence failures carry errors.ErrInternalServer.
func (e *Engine) PlaceBid(ctx context.Context, bidderID, auctionID, amount int64) (types.Bid, error) {
	bid, err := e.placeBid(ctx, bidderID, auctionID, amount)
	switch {
	case err == nil:
		e.metrics.BidsTotal.WithLabelValues("accepted").Inc()
	case errors.IsPolicy(err):
		e.metrics.BidsTotal.WithLabelValues("rejected").Inc()
	default:
		e.metrics.BidsTotal.WithLabelValues("error").Inc()
	}
	return bid, err
}

func (e *Engine) placeBid(ctx context.Context, bidderID, auctionID, amount int64) (types.Bid, error) {
	if amount <= 0 {
		return types.Bid{}, errors.New(errors.ErrInvalidArgument, "Bid amount must be positive.")
	}

	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	a, err := e.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return types.Bid{}, storeErr("get auction", err, errAuctionNotFound)
	}
	if a.Status != types.StatusActive {
		return types.Bid{}, errors.New(errors.ErrAuctionClosed, "Auction is not active.")
	}
	if a.SellerID() == bidderID {
		return types.Bid{}, errors.New(errors.ErrSelfBid, "You cannot bid on your own auction.")
	}
	if amount <= a.CurrentHighestBid {
		return types.Bid{}, errors.New(errors.ErrBidTooLow,
			fmt.Sprintf("Bid must be higher than the current highest bid of %d.", a.CurrentHighestBid))
	}

	previous := a.WinningBidderID
	bid, err := e.store.RecordBid(ctx, types.Bid{AuctionID: auctionID, BidderID: bidderID, Amount: amount})
	if errors.Is(err, errors.ErrConflict) {
		return types.Bid{}, errors.New(errors.ErrBidTooLow, "Bid was not accepted, the auction changed. Please refresh.")
	}
	if err != nil {
		return types.Bid{}, storeErr("record bid", err, errAuctionNotFound)
	}

	log.Info("Bid accepted", "auction", auctionID, "bidder", bidderID, "amount", amount)

	a.CurrentHighestBid = bid.Amount
	a.WinningBidderID = types.Int64(bidderID)
	a.WinningBidderName = bid.BidderName
	e.notify.Broadcast(auctionID, protocol.Push(protocol.AuctionUpdate,
		fmt.Sprintf("New highest bid of %d on %s", bid.Amount, a.Item.Name), a))
	if previous != nil && *previous != bidderID {
		e.notify.SendToUser(*previous, protocol.Push(protocol.OutbidNotification,
			"You have been outbid on "+a.Item.Name, a))
	}

	return bid, nil
}

// Activate promotes an UPCOMING auction, reporting whether it changed.
func (e *Engine) Activate(ctx context.Context, auctionID int64) (bool, error) {
	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	ok, err := e.store.ActivateAuction(ctx, auctionID)
	if err != nil || !ok {
		return false, err
	}
	e.metrics.TransitionsTotal.WithLabelValues(string(types.StatusActive)).Inc()

	a, err := e.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return true, err
	}
	log.Info("Auction started", "auction", auctionID, "item", a.Item.Name)
	e.notify.Broadcast(auctionID, protocol.Push(protocol.AuctionUpdate, "Auction started: "+a.Item.Name, a))
	return true, nil
}

// Resolve ends an ACTIVE auction, keeping the winner only when the reserve is met, reporting whether
// it changed.
func (e *Engine) Resolve(ctx context.Context, auctionID int64) (bool, error) {
	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	a, err := e.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return false, err
	}
	if a.Status != types.StatusActive {
		return false, nil
	}

	hasWinner := a.WinningBidderID != nil
	reserveMet := !a.HasReserve() || (hasWinner && a.CurrentHighestBid >= *a.ReservePrice)
	sold := hasWinner && reserveMet

	var winner *int64
	if sold {
		winner = a.WinningBidderID
	}
	ok, err := e.store.FinishAuction(ctx, auctionID, winner)
	if err != nil || !ok {
		return false, err
	}
	e.metrics.TransitionsTotal.WithLabelValues(string(types.StatusEnded)).Inc()

	a.Status = types.StatusEnded
	if !sold {
		a.WinningBidderID = nil
		a.WinningBidderName = ""
	}

	e.notify.Broadcast(auctionID, protocol.Push(protocol.AuctionUpdate, "Auction ended: "+a.Item.Name, a))

	var sellerText string
	if sold {
		log.Info("Auction sold", "auction", auctionID, "winner", a.WinningBidderName, "price", a.CurrentHighestBid)
		e.notify.SendToUser(*winner, protocol.Push(protocol.WinnerNotification,
			"Congratulations! You won the auction for "+a.Item.Name, a))
		sellerText = fmt.Sprintf("Your auction for '%s' has ended. Sold to %s for %d.",
			a.Item.Name, a.WinningBidderName, a.CurrentHighestBid)
	} else {
		reason := "no bids"
		if hasWinner {
			reason = "reserve not met"
		}
		log.Info("Auction ended unsold", "auction", auctionID, "reason", reason)
		sellerText = fmt.Sprintf("Your auction for '%s' has ended. Item was not sold (%s).", a.Item.Name, reason)
	}
	e.notify.SendToUser(a.SellerID(), protocol.Push(protocol.AuctionEndedSellerNotification, sellerText, a))

	return true, nil
}

// CancelUpcoming cancels sellerID's UPCOMING auction, notifies its watchers and forgets them.
func (e *Engine) CancelUpcoming(ctx context.Context, sellerID, auctionID int64) (types.Auction, error) {
	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	a, err := e.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return types.Auction{}, storeErr("get auction", err, errAuctionNotFound)
	}
	if a.SellerID() != sellerID {
		return types.Auction{}, errors.New(errors.ErrForbidden, "You can only cancel your own auctions.")
	}
	if a.Status != types.StatusUpcoming {
		return types.Auction{}, errors.New(errors.ErrInvalidState, "Only upcoming auctions can be cancelled.")
	}

	ok, err := e.store.CancelAuction(ctx, auctionID)
	if err != nil {
		return types.Auction{}, storeErr("cancel auction", err, nil)
	}
	if !ok {
		return types.Auction{}, errors.New(errors.ErrInvalidState, "Only upcoming auctions can be cancelled.")
	}
	e.metrics.TransitionsTotal.WithLabelValues(string(types.StatusCancelled)).Inc()

	a.Status = types.StatusCancelled
	log.Info("Auction cancelled", "auction", auctionID, "seller", sellerID)
	e.notify.Broadcast(auctionID, protocol.Push(protocol.AuctionUpdate, "Auction cancelled: "+a.Item.Name, a))
	e.notify.DropAuction(auctionID)
	return a, nil
}

// ProcessPayment marks buyerID's won auction as paid.
func (e *Engine) ProcessPayment(ctx context.Context, buyerID, auctionID int64) (types.Auction, error) {
	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	a, err := e.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return types.Auction{}, storeErr("get auction", err, errAuctionNotFound)
	}
	if a.Status != types.StatusEnded {
		return types.Auction{}, errors.New(errors.ErrInvalidState, "Auction has not ended.")
	}
	if !a.IsWinner(buyerID) {
		return types.Auction{}, errors.New(errors.ErrForbidden, "Only the winning bidder can pay for this auction.")
	}
	if a.PaymentStatus == types.PaymentPaid {
		return types.Auction{}, errors.New(errors.ErrInvalidState, "Auction is already paid.")
	}

	ok, err := e.store.MarkPaid(ctx, auctionID, buyerID)
	if err != nil {
		return types.Auction{}, storeErr("mark paid", err, nil)
	}
	if !ok {
		return types.Auction{}, errors.New(errors.ErrInvalidState, "Auction is already paid.")
	}

	a.PaymentStatus = types.PaymentPaid
	log.Info("Payment processed", "auction", auctionID, "buyer", buyerID)
	e.notify.Broadcast(auctionID, protocol.Push(protocol.AuctionUpdate, "Payment received for "+a.Item.Name, a))
	return a, nil
}

// DeleteAuction removes an auction with its bids and messages.
func (e *Engine) DeleteAuction(ctx context.Context, auctionID int64) error {
	unlock := e.locks.Lock(auctionKey(auctionID))
	defer unlock()

	if err := e.store.DeleteAuction(ctx, auctionID); err != nil {
		return storeErr("delete auction", err, errAuctionNotFound)
	}
	log.Warn("Auction deleted", "auction", auctionID)
	e.notify.DropAuction(auctionID)
	return nil
}

// DeleteUser removes targetID and everything it owns. Admins cannot be deleted, including by themselves.
func (e *Engine) DeleteUser(ctx context.Context, adminID, targetID int64) error {
	if adminID == targetID {
		return errors.New(errors.ErrInvalidArgument, "Admin cannot delete themselves.")
	}
	target, err := e.store.GetUserByID(ctx, targetID)
	if err != nil {
		return storeErr("get user", err, errUserNotFound)
	}
	if target.Role == types.RoleAdmin {
		return errors.New(errors.ErrForbidden, "Cannot delete an admin user.")
	}

	bids, err := e.store.ListBidsByUser(ctx, targetID)
	if err != nil {
		return storeErr("list bids", err, errUserNotFound)
	}
	bidOn := make([]int64, 0, len(bids))
	for _, b := range bids {
		bidOn = append(bidOn, b.AuctionID)
	}
	unlock := e.locks.LockAuctions(bidOn)
	defer unlock()

	res, err := e.store.DeleteUser(ctx, targetID)
	if err != nil {
		return storeErr("delete user", err, errUserNotFound)
	}
	for _, id := range res.Deleted {
		e.notify.DropAuction(id)
	}
	for _, id := range res.Repriced {
		a, err := e.store.GetAuctionByID(ctx, id)
		if err != nil {
			log.Error("Store call failed", "op", "get auction", "auction", id, "err", err)
			continue
		}
		e.notify.Broadcast(id, protocol.Push(protocol.AuctionUpdate,
			fmt.Sprintf("Highest bid on %s is now %d", a.Item.Name, a.CurrentHighestBid), a))
	}
	e.notify.UnbindUser(targetID)
	log.Warn("User deleted", "user", target.Username, "auctions", len(res.Deleted), "repriced", len(res.Repriced))
	return nil
}

// CreateAuction opens an UPCOMING auction on one of sellerID's items that has no other open auction.
func (e *Engine) CreateAuction(ctx context.Context, sellerID int64, draft types.Auction) (types.Auction, error) {
	if draft.StartPrice <= 0 {
		return types.Auction{}, errors.New(errors.ErrInvalidArgument, "Start price must be positive.")
	}
	if draft.ReservePrice != nil && *draft.ReservePrice < 0 {
		return types.Auction{}, errors.New(errors.ErrInvalidArgument, "Reserve price cannot be negative.")
	}
	if draft.StartTime.IsZero() || draft.EndTime.IsZero() || !draft.StartTime.Before(draft.EndTime) {
		return types.Auction{}, errors.New(errors.ErrInvalidArgument, "Start time must be before end time.")
	}
	if !draft.EndTime.After(e.now()) {
		return types.Auction{}, errors.New(errors.ErrInvalidArgument, "End time must be in the future.")
	}
	if !draft.HasReserve() {
		draft.ReservePrice = nil
	}

	unlock := e.locks.Lock(itemKey(draft.ItemID))
	defer unlock()

	item, err := e.store.GetItemByID(ctx, draft.ItemID)
	if err != nil {
		return types.Auction{}, storeErr("get item", err, errItemNotFound)
	}
	if item.SellerID != sellerID {
		return types.Auction{}, errors.New(errors.ErrForbidden, "You can only auction your own items.")
	}
	open, err := e.store.ItemHasOpenAuction(ctx, item.ID)
	if err != nil {
		return types.Auction{}, storeErr("check item", err, nil)
	}
	if open {
		return types.Auction{}, errors.New(errors.ErrItemEncumbered, "Item already has an upcoming or active auction.")
	}

	a, err := e.store.CreateAuction(ctx, draft)
	if errors.Is(err, errors.ErrDuplicate) {
		return types.Auction{}, errors.New(errors.ErrItemEncumbered, "Item already has an upcoming or active auction.")
	}
	if err != nil {
		return types.Auction{}, storeErr("create auction", err, errItemNotFound)
	}
	log.Info("Auction created", "auction", a.ID, "item", item.Name, "start", a.StartTime, "end", a.EndTime)
	return a, nil
}

// UpdateItem edits one of sellerID's items while no UPCOMING or ACTIVE auction references it.
func (e *Engine) UpdateItem(ctx context.Context, sellerID int64, item types.Item) (types.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return types.Item{}, errors.New(errors.ErrInvalidArgument, "Item name is required.")
	}

	unlock := e.locks.Lock(itemKey(item.ID))
	defer unlock()

	current, err := e.store.GetItemByID(ctx, item.ID)
	if err != nil {
		return types.Item{}, storeErr("get item", err, errItemNotFound)
	}
	if current.SellerID != sellerID {
		return types.Item{}, errors.New(errors.ErrForbidden, "You can only edit your own items.")
	}
	open, err := e.store.ItemHasOpenAuction(ctx, item.ID)
	if err != nil {
		return types.Item{}, storeErr("check item", err, nil)
	}
	if open {
		return types.Item{}, errors.New(errors.ErrItemEncumbered, "Item cannot be edited while it has an upcoming or active auction.")
	}

	item.SellerID = current.SellerID
	item.CreatedAt = current.CreatedAt
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return types.Item{}, storeErr("update item", err, errItemNotFound)
	}
	return item, nil
}
