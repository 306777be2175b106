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

type Items struct {
	store database.Service
}

func NewItems(store database.Service) *Items {
	return &Items{store: store}
}

// FromPayload converts the wire form of an item.
func FromPayload(p protocol.ItemPayload) types.Item {
	return types.Item{
		ID:          p.ID,
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		ImagePath:   p.ImagePath,
		Category:    p.Category,
		Tags:        p.Tags,
	}
}

// Create lists a new item owned by sellerID.
func (i *Items) Create(ctx context.Context, sellerID int64, p protocol.ItemPayload) (types.Item, error) {
	item := FromPayload(p)
	if item.Name == "" {
		return types.Item{}, errors.New(errors.ErrInvalidArgument, "Item name is required.")
	}
	item.ID = 0
	item.SellerID = sellerID

	created, err := i.store.CreateItem(ctx, item)
	if err != nil {
		return types.Item{}, storeErr("create item", err, errUserNotFound)
	}
	log.Info("Item listed", "item", created.ID, "seller", sellerID)
	return created, nil
}

// OwnedBy returns sellerID's items, newest first.
func (i *Items) OwnedBy(ctx context.Context, sellerID int64) ([]types.Item, error) {
	return list(ctx, "list seller items", func(ctx context.Context) ([]types.Item, error) {
		return i.store.ListItemsBySeller(ctx, sellerID)
	})
}
