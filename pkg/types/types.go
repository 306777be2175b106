package types

import (
	"time"
)

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

type AuctionStatus string

const (
	StatusUpcoming  AuctionStatus = "UPCOMING"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// Open reports whether the auction still encumbers its item.
func (s AuctionStatus) Open() bool {
	return s == StatusUpcoming || s == StatusActive
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Item struct {
	ID          int64     `json:"id"`
	SellerID    int64     `json:"sellerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImagePath   string    `json:"imagePath"`
	Category    string    `json:"category"`
	Tags        string    `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Auction struct {
	ID                int64         `json:"id"`
	ItemID            int64         `json:"itemId"`
	Item              Item          `json:"item"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	StartPrice        int64         `json:"startPrice"`
	ReservePrice      *int64        `json:"reservePrice,omitempty"`
	CurrentHighestBid int64         `json:"currentHighestBid"`
	WinningBidderID   *int64        `json:"winningBidderId,omitempty"`
	WinningBidderName string        `json:"winningBidderName,omitempty"`
	Status            AuctionStatus `json:"status"`
	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// SellerID returns the owner of the auctioned item.
func (a Auction) SellerID() int64 { return a.Item.SellerID }

// HasReserve reports whether a positive reserve price is set.
func (a Auction) HasReserve() bool {
	return a.ReservePrice != nil && *a.ReservePrice > 0
}

// IsWinner reports whether userID is the recorded winning bidder.
func (a Auction) IsWinner(userID int64) bool {
	return a.WinningBidderID != nil && *a.WinningBidderID == userID
}

type Bid struct {
	ID            int64         `json:"id"`
	AuctionID     int64         `json:"auctionId"`
	BidderID      int64         `json:"bidderId"`
	BidderName    string        `json:"bidderName"`
	Amount        int64         `json:"amount"`
	BidTime       time.Time     `json:"bidTime"`
	ItemName      string        `json:"itemName,omitempty"`
	AuctionStatus AuctionStatus `json:"auctionStatus,omitempty"`
}

type Message struct {
	ID           int64     `json:"id"`
	AuctionID    int64     `json:"auctionId"`
	SenderID     int64     `json:"senderId"`
	SenderName   string    `json:"senderName"`
	ReceiverID   int64     `json:"receiverId"`
	ReceiverName string    `json:"receiverName"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
	ItemName     string    `json:"itemName,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
