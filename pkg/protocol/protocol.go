// Package protocol defines the JSON envelopes exchanged over the auction websocket.
//
// Every request carries an operation type, a payload and a correlation id. The server answers each
// request with exactly one Response echoing both the type and the correlation id. Server-initiated
// pushes reuse the Response shape with a null correlation id.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/types"
)

type Type string

// Request types.
const (
	RegisterUser          Type = "REGISTER_USER"
	LoginUser             Type = "LOGIN_USER"
	LogoutUser            Type = "LOGOUT_USER"
	GetActiveAuctions     Type = "GET_ACTIVE_AUCTIONS"
	GetAuctionDetails     Type = "GET_AUCTION_DETAILS"
	GetBidsForAuction     Type = "GET_BIDS_FOR_AUCTION"
	GetUserProfile        Type = "GET_USER_PROFILE"
	UpdateUserProfile     Type = "UPDATE_USER_PROFILE"
	ListItem              Type = "LIST_ITEM"
	UpdateItem            Type = "UPDATE_ITEM"
	GetSellerItems        Type = "GET_SELLER_ITEMS"
	CreateAuction         Type = "CREATE_AUCTION"
	CancelUpcomingAuction Type = "CANCEL_UPCOMING_AUCTION"
	GetMyCreatedAuctions  Type = "GET_MY_CREATED_AUCTIONS"
	PlaceBid              Type = "PLACE_BID"
	GetMyBids             Type = "GET_MY_BIDS"
	GetMyWonAuctions      Type = "GET_MY_WON_AUCTIONS"
	ProcessPayment        Type = "PROCESS_PAYMENT"
	SendMessage           Type = "SEND_MESSAGE"
	GetMyMessages         Type = "GET_MY_MESSAGES"
	MarkMessageAsRead     Type = "MARK_MESSAGE_AS_READ"
	GetAllUsers           Type = "GET_ALL_USERS"
	GetAllAuctions        Type = "GET_ALL_AUCTIONS"
	DeleteUser            Type = "DELETE_USER"
	DeleteAuction         Type = "DELETE_AUCTION"
	Disconnect            Type = "DISCONNECT"
)

// Push types.
const (
	AuctionUpdate                  Type = "AUCTION_UPDATE"
	OutbidNotification             Type = "OUTBID_NOTIFICATION"
	WinnerNotification             Type = "WINNER_NOTIFICATION"
	AuctionEndedSellerNotification Type = "AUCTION_ENDED_SELLER_NOTIFICATION"
	NewMessageNotification         Type = "NEW_MESSAGE_NOTIFICATION"
	ServerShutdown                 Type = "SERVER_SHUTDOWN"
	ProtocolError                  Type = "PROTOCOL_ERROR"
)

type Request struct {
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId"`
}

type Response struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Code          int             `json:"code,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Type          Type            `json:"type"`
	CorrelationID *string         `json:"correlationId"`
}

// IsPush reports whether r was not sent in reply to a request.
func (r Response) IsPush() bool { return r.CorrelationID == nil }

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// OK builds a successful reply to a request.
func OK(t Type, correlationID, message string, data any) Response {
	return Response{Success: true, Message: message, Data: marshal(data), Type: t, CorrelationID: &correlationID}
}

// Fail builds a failed reply to a request.
func Fail(t Type, correlationID string, code int, message string) Response {
	return Response{Success: false, Message: message, Code: code, Type: t, CorrelationID: &correlationID}
}

// Push builds an unsolicited server notification.
func Push(t Type, message string, data any) Response {
	return Response{Success: true, Message: message, Data: marshal(data), Type: t}
}

func marshal(data any) json.RawMessage {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return b
}

type RegisterPayload struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Email    string     `json:"email"`
	Role     types.Role `json:"role"`
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type UpdateProfilePayload struct {
	Email string `json:"email"`
}

type ItemPayload struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"imagePath"`
	Category    string `json:"category"`
	Tags        string `json:"tags"`
}

type CreateAuctionPayload struct {
	ItemID       int64     `json:"itemId"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	StartPrice   int64     `json:"startPrice"`
	ReservePrice *int64    `json:"reservePrice,omitempty"`
}

type PlaceBidPayload struct {
	AuctionID int64 `json:"auctionId"`
	Amount    int64 `json:"amount"`
}

// SendMessagePayload addresses the auction's seller when ReceiverID is zero.
type SendMessagePayload struct {
	AuctionID  int64  `json:"auctionId"`
	ReceiverID int64  `json:"receiverId,omitempty"`
	Text       string `json:"text"`
}
