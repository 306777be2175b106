package websocket

import (
	"context"

	"github.com/Martin-Hayot/live-auction-server/internal/auction"
	"github.com/Martin-Hayot/live-auction-server/internal/hub"
	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/Martin-Hayot/live-auction-server/internal/services"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
)

// access is the requirement a session must meet before a handler runs.
type access struct {
	login  bool
	role   types.Role
	denied string
}

var (
	public        = access{}
	authenticated = access{login: true, denied: "Not logged in."}
	sellerOnly    = access{login: true, role: types.RoleSeller, denied: "Unauthorized or not logged in as Seller."}
	buyerOnly     = access{login: true, role: types.RoleBuyer, denied: "Unauthorized or not logged in as Buyer."}
	adminOnly     = access{login: true, role: types.RoleAdmin, denied: "Unauthorized. Admin access required."}
)

func (a access) check(c *Client) (types.User, error) {
	user, ok := c.User()
	if !a.login {
		return user, nil
	}
	if !ok {
		return types.User{}, errors.New(errors.ErrUnauthenticated, a.denied)
	}
	if a.role != "" && user.Role != a.role {
		return types.User{}, errors.New(errors.ErrForbidden, a.denied)
	}
	return user, nil
}

// call is one request as seen by a handler.
type call struct {
	client *Client
	user   types.User
	req    protocol.Request
}

// handlerFunc returns the success message and result data of a request.
type handlerFunc func(ctx context.Context, c call) (string, any, error)

type route struct {
	access access
	handle handlerFunc
}

type Router struct {
	engine   *auction.Engine
	users    *services.Users
	items    *services.Items
	messages *services.Messages
	catalog  *services.Catalog
	hub      *hub.Hub
	metrics  *metrics.Metrics
	routes   map[protocol.Type]route
}

func NewRouter(
	engine *auction.Engine,
	users *services.Users,
	items *services.Items,
	messages *services.Messages,
	catalog *services.Catalog,
	h *hub.Hub,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		engine:   engine,
		users:    users,
		items:    items,
		messages: messages,
		catalog:  catalog,
		hub:      h,
		metrics:  m,
	}
	r.routes = map[protocol.Type]route{
		protocol.RegisterUser:      {public, r.register},
		protocol.LoginUser:         {public, r.login},
		protocol.LogoutUser:        {authenticated, r.logout},
		protocol.GetActiveAuctions: {public, r.activeAuctions},
		protocol.GetAuctionDetails: {public, r.auctionDetails},
		protocol.GetBidsForAuction: {public, r.bidsForAuction},

		protocol.GetUserProfile:    {authenticated, r.profile},
		protocol.UpdateUserProfile: {authenticated, r.updateProfile},

		protocol.ListItem:              {sellerOnly, r.listItem},
		protocol.UpdateItem:            {sellerOnly, r.updateItem},
		protocol.GetSellerItems:        {sellerOnly, r.sellerItems},
		protocol.CreateAuction:         {sellerOnly, r.createAuction},
		protocol.CancelUpcomingAuction: {sellerOnly, r.cancelAuction},
		protocol.GetMyCreatedAuctions:  {sellerOnly, r.createdAuctions},

		protocol.PlaceBid:         {buyerOnly, r.placeBid},
		protocol.GetMyBids:        {buyerOnly, r.myBids},
		protocol.GetMyWonAuctions: {buyerOnly, r.wonAuctions},
		protocol.ProcessPayment:   {buyerOnly, r.processPayment},

		protocol.SendMessage:       {authenticated, r.sendMessage},
		protocol.GetMyMessages:     {authenticated, r.myMessages},
		protocol.MarkMessageAsRead: {authenticated, r.markRead},

		protocol.GetAllUsers:    {adminOnly, r.allUsers},
		protocol.GetAllAuctions: {adminOnly, r.allAuctions},
		protocol.DeleteUser:     {adminOnly, r.deleteUser},
		protocol.DeleteAuction:  {adminOnly, r.deleteAuction},
	}
	return r
}
