package services

import (
	"context"
	"strings"

	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

type Messages struct {
	store  database.Service
	notify Notifier
}

func NewMessages(store database.Service, notify Notifier) *Messages {
	return &Messages{store: store, notify: notify}
}

// Send stores a note from senderID about an auction and pushes it to the receiver when online.
// A zero receiver addresses the auction's seller.
func (m *Messages) Send(ctx context.Context, senderID int64, p protocol.SendMessagePayload) (types.Message, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return types.Message{}, errors.New(errors.ErrInvalidArgument, "Message text is required.")
	}

	a, err := m.store.GetAuctionByID(ctx, p.AuctionID)
	if err != nil {
		return types.Message{}, storeErr("get auction", err, errAuctionNotFound)
	}
	receiverID := p.ReceiverID
	if receiverID == 0 {
		receiverID = a.SellerID()
	}
	if receiverID == senderID {
		return types.Message{}, errors.New(errors.ErrInvalidArgument, "You cannot send a message to yourself.")
	}

	msg, err := m.store.CreateMessage(ctx, types.Message{
		AuctionID:  a.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	})
	if err != nil {
		return types.Message{}, storeErr("create message", err, errUserNotFound)
	}

	log.Debug("Message sent", "auction", a.ID, "from", senderID, "to", receiverID)
	m.notify.SendToUser(receiverID, protocol.Push(protocol.NewMessageNotification,
		"You have a new message from "+msg.SenderName, msg))
	return msg, nil
}

// Inbox returns the messages userID sent or received, newest first.
func (m *Messages) Inbox(ctx context.Context, userID int64) ([]types.Message, error) {
	return list(ctx, "list messages", func(ctx context.Context) ([]types.Message, error) {
		return m.store.ListMessagesForUser(ctx, userID)
	})
}

// MarkRead flags messageID as read. Only its receiver may do so.
func (m *Messages) MarkRead(ctx context.Context, receiverID, messageID int64) error {
	ok, err := m.store.MarkMessageRead(ctx, messageID, receiverID)
	if err != nil {
		return storeErr("mark message read", err, errMessageNotFound)
	}
	if !ok {
		return errMessageNotFound
	}
	return nil
}
