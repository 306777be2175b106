// Package services implements the user, item, message and read-only auction operations that do not
// move an auction through its lifecycle.
package services

import (
	"context"

	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/charmbracelet/log"
)

// Notifier delivers a push to the session bound to a user. *hub.Hub implements it.
type Notifier interface {
	SendToUser(userID int64, resp protocol.Response) bool
}

var (
	errUserNotFound    = errors.New(errors.ErrNotFound, "User not found.")
	errAuctionNotFound = errors.New(errors.ErrNotFound, "Auction not found.")
	errMessageNotFound = errors.New(errors.ErrNotFound, "Message not found.")
)

// storeErr logs a Store failure and converts it into a failure the peer may see.
func storeErr(op string, err error, notFound *errors.AppError) error {
	if notFound != nil && errors.Is(err, errors.ErrRecordNotFound) {
		return notFound
	}
	log.Error("Store call failed", "op", op, "err", err)
	return errors.Internal(err)
}

// Catalog answers the read-only auction and bid queries.
type Catalog struct {
	store database.Service
}

func NewCatalog(store database.Service) *Catalog {
	return &Catalog{store: store}
}

// list runs fn and never returns a nil slice, so empty results encode as [].
func list[T any](ctx context.Context, op string, fn func(context.Context) ([]T, error)) ([]T, error) {
	out, err := fn(ctx)
	if err != nil {
		return nil, storeErr(op, err, nil)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
