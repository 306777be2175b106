package database

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
)

type memUser struct {
	types.User
	hash string
}

// memory keeps every table in maps guarded by one RWMutex. Writes that span tables run under the
// write lock, which gives them the same all-or-nothing behaviour as the PostgreSQL transactions.
type memory struct {
	mu       sync.RWMutex
	seq      int64
	users    map[int64]*memUser
	items    map[int64]*types.Item
	auctions map[int64]*types.Auction
	bids     map[int64]*types.Bid
	messages map[int64]*types.Message
	now      func() time.Time
}

func NewMemory() Service {
	return &memory{
		users:    make(map[int64]*memUser),
		items:    make(map[int64]*types.Item),
		auctions: make(map[int64]*types.Auction),
		bids:     make(map[int64]*types.Bid),
		messages: make(map[int64]*types.Message),
		now:      time.Now,
	}
}

func (m *memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *memory) Health(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"status":   "up",
		"message":  "It's healthy",
		"driver":   "memory",
		"users":    strconv.Itoa(len(m.users)),
		"auctions": strconv.Itoa(len(m.auctions)),
		"bids":     strconv.Itoa(len(m.bids)),
	}
}

func (m *memory) Close() error { return nil }

func (m *memory) CreateUser(ctx context.Context, user types.User, passwordHash string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return types.User{}, fmt.Errorf("user %q: %w", user.Username, errors.ErrDuplicate)
		}
	}
	user.ID = m.nextID()
	user.CreatedAt = m.now()
	m.users[user.ID] = &memUser{User: user, hash: passwordHash}
	return user, nil
}

func (m *memory) GetUserByID(ctx context.Context, id int64) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, fmt.Errorf("user %d: %w", id, errors.ErrRecordNotFound)
	}
	return u.User, nil
}

func (m *memory) GetUserCredentials(ctx context.Context, username string) (types.User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u.User, u.hash, nil
		}
	}
	return types.User{}, "", fmt.Errorf("user %q: %w", username, errors.ErrRecordNotFound)
}

func (m *memory) ListUsers(ctx context.Context) ([]types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memory) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, errors.ErrRecordNotFound)
	}
	for _, other := range m.users {
		if other.ID != id && other.Email == email {
			return fmt.Errorf("email %q: %w", email, errors.ErrDuplicate)
		}
	}
	u.Email = email
	return nil
}

func (m *memory) DeleteUser(ctx context.Context, id int64) (UserRemoval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return UserRemoval{}, fmt.Errorf("user %d: %w", id, errors.ErrRecordNotFound)
	}

	for mid, msg := range m.messages {
		if msg.SenderID == id || msg.ReceiverID == id {
			delete(m.messages, mid)
		}
	}
	bidOn := make(map[int64]bool)
	for bid, b := range m.bids {
		if b.BidderID == id {
			bidOn[b.AuctionID] = true
			delete(m.bids, bid)
		}
	}
	var res UserRemoval
	for aid, a := range m.auctions {
		if it, ok := m.items[a.ItemID]; ok && it.SellerID == id {
			m.deleteAuctionLocked(aid)
			res.Deleted = append(res.Deleted, aid)
		}
	}
	for iid, it := range m.items {
		if it.SellerID == id {
			delete(m.items, iid)
		}
	}
	for aid, a := range m.auctions {
		switch {
		case bidOn[aid] && a.Status == types.StatusActive:
			m.repriceLocked(a)
			res.Repriced = append(res.Repriced, aid)
		case a.IsWinner(id):
			a.WinningBidderID = nil
		}
	}
	delete(m.users, id)

	sort.Slice(res.Deleted, func(i, j int) bool { return res.Deleted[i] < res.Deleted[j] })
	sort.Slice(res.Repriced, func(i, j int) bool { return res.Repriced[i] < res.Repriced[j] })
	return res, nil
}

// repriceLocked resets a to its highest remaining bid, or to the start price with no leader.
func (m *memory) repriceLocked(a *types.Auction) {
	a.CurrentHighestBid = a.StartPrice
	a.WinningBidderID = nil
	var top *types.Bid
	for _, b := range m.bids {
		if b.AuctionID != a.ID {
			continue
		}
		if top == nil || b.Amount > top.Amount || (b.Amount == top.Amount && b.ID > top.ID) {
			top = b
		}
	}
	if top != nil {
		a.CurrentHighestBid = top.Amount
		a.WinningBidderID = types.Int64(top.BidderID)
	}
}

func (m *memory) CreateItem(ctx context.Context, item types.Item) (types.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[item.SellerID]; !ok {
		return types.Item{}, fmt.Errorf("seller %d: %w", item.SellerID, errors.ErrRecordNotFound)
	}
	item.ID = m.nextID()
	item.CreatedAt = m.now()
	stored := item
	m.items[item.ID] = &stored
	return item, nil
}

func (m *memory) GetItemByID(ctx context.Context, id int64) (types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return types.Item{}, fmt.Errorf("item %d: %w", id, errors.ErrRecordNotFound)
	}
	return *it, nil
}

func (m *memory) ListItemsBySeller(ctx context.Context, sellerID int64) ([]types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Item, 0)
	for _, it := range m.items {
		if it.SellerID == sellerID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memory) UpdateItem(ctx context.Context, item types.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[item.ID]
	if !ok {
		return fmt.Errorf("item %d: %w", item.ID, errors.ErrRecordNotFound)
	}
	it.Name = item.Name
	it.Description = item.Description
	it.ImagePath = item.ImagePath
	it.Category = item.Category
	it.Tags = item.Tags
	return nil
}

func (m *memory) ItemHasOpenAuction(ctx context.Context, itemID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemHasOpenAuctionLocked(itemID), nil
}

func (m *memory) itemHasOpenAuctionLocked(itemID int64) bool {
	for _, a := range m.auctions {
		if a.ItemID == itemID && a.Status.Open() {
			return true
		}
	}
	return false
}

func (m *memory) CreateAuction(ctx context.Context, a types.Auction) (types.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ItemID]; !ok {
		return types.Auction{}, fmt.Errorf("item %d: %w", a.ItemID, errors.ErrRecordNotFound)
	}
	if m.itemHasOpenAuctionLocked(a.ItemID) {
		return types.Auction{}, fmt.Errorf("open auction for item %d: %w", a.ItemID, errors.ErrDuplicate)
	}
	a.ID = m.nextID()
	a.CurrentHighestBid = a.StartPrice
	a.WinningBidderID = nil
	a.Status = types.StatusUpcoming
	a.PaymentStatus = types.PaymentPending
	a.CreatedAt = m.now()
	stored := a
	m.auctions[a.ID] = &stored
	return m.auctionLocked(&stored), nil
}

// auctionLocked returns a copy of a joined with its item and winner name.
func (m *memory) auctionLocked(a *types.Auction) types.Auction {
	out := *a
	if a.ReservePrice != nil {
		out.ReservePrice = types.Int64(*a.ReservePrice)
	}
	if a.WinningBidderID != nil {
		out.WinningBidderID = types.Int64(*a.WinningBidderID)
		if u, ok := m.users[*a.WinningBidderID]; ok {
			out.WinningBidderName = u.Username
		}
	} else {
		out.WinningBidderName = ""
	}
	if it, ok := m.items[a.ItemID]; ok {
		out.Item = *it
	}
	return out
}

func (m *memory) GetAuctionByID(ctx context.Context, id int64) (types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return types.Auction{}, fmt.Errorf("auction %d: %w", id, errors.ErrRecordNotFound)
	}
	return m.auctionLocked(a), nil
}

func (m *memory) filterAuctions(keep func(*types.Auction) bool, less func(a, b types.Auction) bool) []types.Auction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Auction, 0)
	for _, a := range m.auctions {
		if keep(a) {
			out = append(out, m.auctionLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestFirst(a, b types.Auction) bool { return a.ID > b.ID }

func (m *memory) ListActiveAuctions(ctx context.Context) ([]types.Auction, error) {
	return m.filterAuctions(
		func(a *types.Auction) bool { return a.Status == types.StatusActive },
		func(a, b types.Auction) bool {
			if !a.EndTime.Equal(b.EndTime) {
				return a.EndTime.Before(b.EndTime)
			}
			return a.ID < b.ID
		},
	), nil
}

func (m *memory) ListAllAuctions(ctx context.Context) ([]types.Auction, error) {
	return m.filterAuctions(func(*types.Auction) bool { return true }, newestFirst), nil
}

func (m *memory) ListAuctionsBySeller(ctx context.Context, sellerID int64) ([]types.Auction, error) {
	return m.filterAuctions(func(a *types.Auction) bool {
		it, ok := m.items[a.ItemID]
		return ok && it.SellerID == sellerID
	}, newestFirst), nil
}

func (m *memory) ListWonAuctions(ctx context.Context, userID int64) ([]types.Auction, error) {
	return m.filterAuctions(
		func(a *types.Auction) bool { return a.Status == types.StatusEnded && a.IsWinner(userID) },
		func(a, b types.Auction) bool {
			if !a.EndTime.Equal(b.EndTime) {
				return a.EndTime.After(b.EndTime)
			}
			return a.ID > b.ID
		},
	), nil
}

func (m *memory) dueIDs(status types.AuctionStatus, at func(*types.Auction) time.Time, now time.Time) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type due struct {
		id int64
		at time.Time
	}
	list := make([]due, 0)
	for _, a := range m.auctions {
		if a.Status == status && !at(a).After(now) {
			list = append(list, due{a.ID, at(a)})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].at.Equal(list[j].at) {
			return list[i].at.Before(list[j].at)
		}
		return list[i].id < list[j].id
	})
	ids := make([]int64, len(list))
	for i, d := range list {
		ids[i] = d.id
	}
	return ids
}

func (m *memory) ListDueUpcoming(ctx context.Context, now time.Time) ([]int64, error) {
	return m.dueIDs(types.StatusUpcoming, func(a *types.Auction) time.Time { return a.StartTime }, now), nil
}

func (m *memory) ListDueActive(ctx context.Context, now time.Time) ([]int64, error) {
	return m.dueIDs(types.StatusActive, func(a *types.Auction) time.Time { return a.EndTime }, now), nil
}

// transition applies fn to the auction when guard holds, reporting whether it did.
func (m *memory) transition(id int64, guard func(*types.Auction) bool, fn func(*types.Auction)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || !guard(a) {
		return false
	}
	fn(a)
	return true
}

func (m *memory) ActivateAuction(ctx context.Context, id int64) (bool, error) {
	return m.transition(id,
		func(a *types.Auction) bool { return a.Status == types.StatusUpcoming },
		func(a *types.Auction) { a.Status = types.StatusActive },
	), nil
}

func (m *memory) FinishAuction(ctx context.Context, id int64, winnerID *int64) (bool, error) {
	return m.transition(id,
		func(a *types.Auction) bool { return a.Status == types.StatusActive },
		func(a *types.Auction) {
			a.Status = types.StatusEnded
			a.WinningBidderID = nil
			if winnerID != nil {
				a.WinningBidderID = types.Int64(*winnerID)
			}
		},
	), nil
}

func (m *memory) CancelAuction(ctx context.Context, id int64) (bool, error) {
	return m.transition(id,
		func(a *types.Auction) bool { return a.Status == types.StatusUpcoming },
		func(a *types.Auction) { a.Status = types.StatusCancelled },
	), nil
}

func (m *memory) MarkPaid(ctx context.Context, id, buyerID int64) (bool, error) {
	return m.transition(id,
		func(a *types.Auction) bool {
			return a.Status == types.StatusEnded && a.IsWinner(buyerID) && a.PaymentStatus != types.PaymentPaid
		},
		func(a *types.Auction) { a.PaymentStatus = types.PaymentPaid },
	), nil
}

func (m *memory) DeleteAuction(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[id]; !ok {
		return fmt.Errorf("auction %d: %w", id, errors.ErrRecordNotFound)
	}
	m.deleteAuctionLocked(id)
	return nil
}

func (m *memory) deleteAuctionLocked(id int64) {
	for mid, msg := range m.messages {
		if msg.AuctionID == id {
			delete(m.messages, mid)
		}
	}
	for bid, b := range m.bids {
		if b.AuctionID == id {
			delete(m.bids, bid)
		}
	}
	delete(m.auctions, id)
}

func (m *memory) RecordBid(ctx context.Context, bid types.Bid) (types.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[bid.AuctionID]
	if !ok {
		return types.Bid{}, fmt.Errorf("auction %d: %w", bid.AuctionID, errors.ErrRecordNotFound)
	}
	u, ok := m.users[bid.BidderID]
	if !ok {
		return types.Bid{}, fmt.Errorf("user %d: %w", bid.BidderID, errors.ErrRecordNotFound)
	}
	if a.Status != types.StatusActive || bid.Amount <= a.CurrentHighestBid {
		return types.Bid{}, fmt.Errorf("bid %d on auction %d: %w", bid.Amount, bid.AuctionID, errors.ErrConflict)
	}

	bid.ID = m.nextID()
	bid.BidTime = m.now()
	bid.BidderName = u.Username
	stored := bid
	m.bids[bid.ID] = &stored

	a.CurrentHighestBid = bid.Amount
	a.WinningBidderID = types.Int64(bid.BidderID)
	return bid, nil
}

func (m *memory) ListBidsForAuction(ctx context.Context, auctionID int64) ([]types.Bid, error) {
	return m.filterBids(func(b *types.Bid) bool { return b.AuctionID == auctionID }, false), nil
}

func (m *memory) ListBidsByUser(ctx context.Context, userID int64) ([]types.Bid, error) {
	return m.filterBids(func(b *types.Bid) bool { return b.BidderID == userID }, true), nil
}

func (m *memory) filterBids(keep func(*types.Bid) bool, withAuction bool) []types.Bid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Bid, 0)
	for _, b := range m.bids {
		if !keep(b) {
			continue
		}
		v := *b
		if u, ok := m.users[b.BidderID]; ok {
			v.BidderName = u.Username
		}
		if withAuction {
			if a, ok := m.auctions[b.AuctionID]; ok {
				v.AuctionStatus = a.Status
				if it, ok := m.items[a.ItemID]; ok {
					v.ItemName = it.Name
				}
			}
		}
		out = append(out, v)
	}
	// ids are assigned in insertion order, so they order bids with equal timestamps
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memory) CreateMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[msg.AuctionID]
	if !ok {
		return types.Message{}, fmt.Errorf("auction %d: %w", msg.AuctionID, errors.ErrRecordNotFound)
	}
	sender, ok := m.users[msg.SenderID]
	if !ok {
		return types.Message{}, fmt.Errorf("user %d: %w", msg.SenderID, errors.ErrRecordNotFound)
	}
	receiver, ok := m.users[msg.ReceiverID]
	if !ok {
		return types.Message{}, fmt.Errorf("user %d: %w", msg.ReceiverID, errors.ErrRecordNotFound)
	}

	msg.ID = m.nextID()
	msg.Timestamp = m.now()
	msg.Read = false
	stored := msg
	m.messages[msg.ID] = &stored

	msg.SenderName = sender.Username
	msg.ReceiverName = receiver.Username
	if it, ok := m.items[a.ItemID]; ok {
		msg.ItemName = it.Name
	}
	return msg, nil
}

func (m *memory) ListMessagesForUser(ctx context.Context, userID int64) ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Message, 0)
	for _, msg := range m.messages {
		if msg.SenderID != userID && msg.ReceiverID != userID {
			continue
		}
		v := *msg
		if u, ok := m.users[v.SenderID]; ok {
			v.SenderName = u.Username
		}
		if u, ok := m.users[v.ReceiverID]; ok {
			v.ReceiverName = u.Username
		}
		if a, ok := m.auctions[v.AuctionID]; ok {
			if it, ok := m.items[a.ItemID]; ok {
				v.ItemName = it.Name
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memory) MarkMessageRead(ctx context.Context, messageID, receiverID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.ReceiverID != receiverID {
		return false, nil
	}
	msg.Read = true
	return true, nil
}
