package database

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the store uses. pgxmock.PgxPoolIface satisfies it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type postgres struct {
	pool PgxPool
}

func NewPostgres(pool PgxPool) Service {
	return &postgres{pool: pool}
}

const userColumns = `id, username, email, role, created_at`

const auctionSelect = `
	SELECT a.id, a.item_id, a.start_time, a.end_time, a.start_price, a.reserve_price,
	       a.current_highest_bid, a.winning_bidder_id, COALESCE(w.username, ''), a.status,
	       a.payment_status, a.created_at,
	       i.seller_id, i.name, i.description, i.image_path, i.category, i.tags, i.created_at
	FROM auctions a
	JOIN items i ON i.id = a.item_id
	LEFT JOIN users w ON w.id = a.winning_bidder_id`

const itemColumns = `id, seller_id, name, description, image_path, category, tags, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt)
	return u, err
}

func scanItem(row scanner) (types.Item, error) {
	var it types.Item
	err := row.Scan(&it.ID, &it.SellerID, &it.Name, &it.Description, &it.ImagePath, &it.Category, &it.Tags, &it.CreatedAt)
	return it, err
}

func scanAuction(row scanner) (types.Auction, error) {
	var a types.Auction
	err := row.Scan(
		&a.ID,
		&a.ItemID,
		&a.StartTime,
		&a.EndTime,
		&a.StartPrice,
		&a.ReservePrice,
		&a.CurrentHighestBid,
		&a.WinningBidderID,
		&a.WinningBidderName,
		&a.Status,
		&a.PaymentStatus,
		&a.CreatedAt,
		&a.Item.SellerID,
		&a.Item.Name,
		&a.Item.Description,
		&a.Item.ImagePath,
		&a.Item.Category,
		&a.Item.Tags,
		&a.Item.CreatedAt,
	)
	a.Item.ID = a.ItemID
	return a, err
}

// collect drains rows through scan.
func scanID(row scanner) (int64, error) {
	var id int64
	err := row.Scan(&id)
	return id, err
}

func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// isForeignKeyViolation reports whether the error references a missing row.
func isForeignKeyViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23503"
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, errors.ErrRecordNotFound)
	}
	return fmt.Errorf("error getting %s %v: %w", what, id, err)
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *postgres) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error("Database health check failed", "err", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	pool, ok := s.pool.(*pgxpool.Pool)
	if !ok {
		return stats
	}
	st := pool.Stat()
	stats["total_connections"] = strconv.Itoa(int(st.TotalConns()))
	stats["in_use"] = strconv.Itoa(int(st.AcquiredConns()))
	stats["idle"] = strconv.Itoa(int(st.IdleConns()))
	stats["max_connections"] = strconv.Itoa(int(st.MaxConns()))
	stats["empty_acquire_count"] = strconv.FormatInt(st.EmptyAcquireCount(), 10)
	stats["acquire_duration"] = st.AcquireDuration().String()

	if st.AcquiredConns() >= st.MaxConns() {
		stats["message"] = "The database pool is exhausted, requests are waiting for connections."
	}

	return stats
}

// Close closes the connection pool.
func (s *postgres) Close() error {
	s.pool.Close()
	log.Info("Disconnected from database")
	return nil
}

func (s *postgres) CreateUser(ctx context.Context, user types.User, passwordHash string) (types.User, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, email, role) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		user.Username, passwordHash, user.Email, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return types.User{}, fmt.Errorf("user %q: %w", user.Username, errors.ErrDuplicate)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

func (s *postgres) GetUserByID(ctx context.Context, id int64) (types.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return types.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (s *postgres) GetUserCredentials(ctx context.Context, username string) (types.User, string, error) {
	var (
		u    types.User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt, &hash)
	if err != nil {
		return types.User{}, "", notFound(err, "user", username)
	}
	return u, hash, nil
}

func (s *postgres) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return collect(rows, scanUser)
}

func (s *postgres) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET email = $2 WHERE id = $1`, id, email)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %q: %w", email, errors.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("error updating user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, errors.ErrRecordNotFound)
	}
	return nil
}

// repriceQuery resets open auctions to their highest remaining bid, or to the start price with no
// leader when none remain.
const repriceQuery = `
UPDATE auctions a SET
    current_highest_bid = COALESCE(top.amount, a.start_price),
    winning_bidder_id   = top.bidder_id
FROM auctions t
LEFT JOIN LATERAL (
    SELECT b.amount, b.bidder_id FROM bids b
    WHERE b.auction_id = t.id ORDER BY b.amount DESC, b.id DESC LIMIT 1
) top ON TRUE
WHERE a.id = t.id AND a.id = ANY($1) AND a.status = 'ACTIVE'
RETURNING a.id`

// DeleteUser removes the user and everything hanging off it in one transaction. Open auctions the
// user had bid on are repriced against the bids that remain.
func (s *postgres) DeleteUser(ctx context.Context, id int64) (UserRemoval, error) {
	var res UserRemoval
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE sender_id = $1 OR receiver_id = $1`, id); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `DELETE FROM bids WHERE bidder_id = $1 RETURNING auction_id`, id)
		if err != nil {
			return err
		}
		bidOn, err := collect(rows, scanID)
		if err != nil {
			return err
		}
		rows, err = tx.Query(ctx,
			`DELETE FROM auctions WHERE item_id IN (SELECT id FROM items WHERE seller_id = $1) RETURNING id`, id)
		if err != nil {
			return err
		}
		if res.Deleted, err = collect(rows, scanID); err != nil {
			return err
		}
		if len(bidOn) > 0 {
			rows, err = tx.Query(ctx, repriceQuery, bidOn)
			if err != nil {
				return err
			}
			if res.Repriced, err = collect(rows, scanID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM items WHERE seller_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %d: %w", id, errors.ErrRecordNotFound)
		}
		return nil
	})
	if err != nil {
		return UserRemoval{}, err
	}
	slices.Sort(res.Deleted)
	slices.Sort(res.Repriced)
	return res, nil
}

func (s *postgres) CreateItem(ctx context.Context, item types.Item) (types.Item, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (seller_id, name, description, image_path, category, tags)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		item.SellerID, item.Name, item.Description, item.ImagePath, item.Category, item.Tags,
	).Scan(&item.ID, &item.CreatedAt)
	if isForeignKeyViolation(err) {
		return types.Item{}, fmt.Errorf("seller %d: %w", item.SellerID, errors.ErrRecordNotFound)
	}
	if err != nil {
		return types.Item{}, fmt.Errorf("error creating item: %w", err)
	}
	return item, nil
}

func (s *postgres) GetItemByID(ctx context.Context, id int64) (types.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return types.Item{}, notFound(err, "item", id)
	}
	return it, nil
}

func (s *postgres) ListItemsBySeller(ctx context.Context, sellerID int64) ([]types.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE seller_id = $1 ORDER BY created_at DESC, id DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("error listing items: %w", err)
	}
	return collect(rows, scanItem)
}

func (s *postgres) UpdateItem(ctx context.Context, item types.Item) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET name = $2, description = $3, image_path = $4, category = $5, tags = $6 WHERE id = $1`,
		item.ID, item.Name, item.Description, item.ImagePath, item.Category, item.Tags,
	)
	if err != nil {
		return fmt.Errorf("error updating item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", item.ID, errors.ErrRecordNotFound)
	}
	return nil
}

func (s *postgres) ItemHasOpenAuction(ctx context.Context, itemID int64) (bool, error) {
	var open bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM auctions WHERE item_id = $1 AND status IN ('UPCOMING', 'ACTIVE'))`, itemID,
	).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("error checking auctions of item %d: %w", itemID, err)
	}
	return open, nil
}

func (s *postgres) CreateAuction(ctx context.Context, a types.Auction) (types.Auction, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO auctions (item_id, start_time, end_time, start_price, reserve_price, current_highest_bid, status)
		 VALUES ($1, $2, $3, $4, $5, $4, 'UPCOMING') RETURNING id`,
		a.ItemID, a.StartTime, a.EndTime, a.StartPrice, a.ReservePrice,
	).Scan(&id)
	if isUniqueViolation(err) {
		return types.Auction{}, fmt.Errorf("open auction for item %d: %w", a.ItemID, errors.ErrDuplicate)
	}
	if isForeignKeyViolation(err) {
		return types.Auction{}, fmt.Errorf("item %d: %w", a.ItemID, errors.ErrRecordNotFound)
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error creating auction: %w", err)
	}
	return s.GetAuctionByID(ctx, id)
}

func (s *postgres) GetAuctionByID(ctx context.Context, id int64) (types.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx, auctionSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return types.Auction{}, notFound(err, "auction", id)
	}
	return a, nil
}

func (s *postgres) listAuctions(ctx context.Context, where string, args ...any) ([]types.Auction, error) {
	rows, err := s.pool.Query(ctx, auctionSelect+` `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing auctions: %w", err)
	}
	return collect(rows, scanAuction)
}

func (s *postgres) ListActiveAuctions(ctx context.Context) ([]types.Auction, error) {
	return s.listAuctions(ctx, `WHERE a.status = 'ACTIVE' ORDER BY a.end_time ASC, a.id ASC`)
}

func (s *postgres) ListAllAuctions(ctx context.Context) ([]types.Auction, error) {
	return s.listAuctions(ctx, `ORDER BY a.created_at DESC, a.id DESC`)
}

func (s *postgres) ListAuctionsBySeller(ctx context.Context, sellerID int64) ([]types.Auction, error) {
	return s.listAuctions(ctx, `WHERE i.seller_id = $1 ORDER BY a.created_at DESC, a.id DESC`, sellerID)
}

func (s *postgres) ListWonAuctions(ctx context.Context, userID int64) ([]types.Auction, error) {
	return s.listAuctions(ctx,
		`WHERE a.winning_bidder_id = $1 AND a.status = 'ENDED' ORDER BY a.end_time DESC, a.id DESC`, userID)
}

func (s *postgres) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing due auctions: %w", err)
	}
	return collect(rows, scanID)
}

func (s *postgres) ListDueUpcoming(ctx context.Context, now time.Time) ([]int64, error) {
	return s.listIDs(ctx,
		`SELECT id FROM auctions WHERE status = 'UPCOMING' AND start_time <= $1 ORDER BY start_time, id`, now)
}

func (s *postgres) ListDueActive(ctx context.Context, now time.Time) ([]int64, error) {
	return s.listIDs(ctx,
		`SELECT id FROM auctions WHERE status = 'ACTIVE' AND end_time <= $1 ORDER BY end_time, id`, now)
}

func (s *postgres) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("error updating auction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgres) ActivateAuction(ctx context.Context, id int64) (bool, error) {
	return s.conditional(ctx, `UPDATE auctions SET status = 'ACTIVE' WHERE id = $1 AND status = 'UPCOMING'`, id)
}

func (s *postgres) FinishAuction(ctx context.Context, id int64, winnerID *int64) (bool, error) {
	return s.conditional(ctx,
		`UPDATE auctions SET status = 'ENDED', winning_bidder_id = $2 WHERE id = $1 AND status = 'ACTIVE'`,
		id, winnerID)
}

func (s *postgres) CancelAuction(ctx context.Context, id int64) (bool, error) {
	return s.conditional(ctx, `UPDATE auctions SET status = 'CANCELLED' WHERE id = $1 AND status = 'UPCOMING'`, id)
}

func (s *postgres) MarkPaid(ctx context.Context, id, buyerID int64) (bool, error) {
	return s.conditional(ctx,
		`UPDATE auctions SET payment_status = 'PAID'
		 WHERE id = $1 AND status = 'ENDED' AND winning_bidder_id = $2 AND payment_status <> 'PAID'`,
		id, buyerID)
}

func (s *postgres) DeleteAuction(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE auction_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bids WHERE auction_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("auction %d: %w", id, errors.ErrRecordNotFound)
		}
		return nil
	})
}

func (s *postgres) RecordBid(ctx context.Context, bid types.Bid) (types.Bid, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			highest int64
			status  types.AuctionStatus
		)
		err := tx.QueryRow(ctx,
			`SELECT current_highest_bid, status FROM auctions WHERE id = $1 FOR UPDATE`, bid.AuctionID,
		).Scan(&highest, &status)
		if err != nil {
			return notFound(err, "auction", bid.AuctionID)
		}
		if status != types.StatusActive || bid.Amount <= highest {
			return fmt.Errorf("bid %d on auction %d: %w", bid.Amount, bid.AuctionID, errors.ErrConflict)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO bids (auction_id, bidder_id, amount) VALUES ($1, $2, $3) RETURNING id, bid_time`,
			bid.AuctionID, bid.BidderID, bid.Amount,
		).Scan(&bid.ID, &bid.BidTime)
		if err != nil {
			return fmt.Errorf("error creating bid: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE auctions SET current_highest_bid = $2, winning_bidder_id = $3
			 WHERE id = $1 AND status = 'ACTIVE' AND current_highest_bid < $2`,
			bid.AuctionID, bid.Amount, bid.BidderID,
		)
		if err != nil {
			return fmt.Errorf("error updating auction %d: %w", bid.AuctionID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("bid %d on auction %d: %w", bid.Amount, bid.AuctionID, errors.ErrConflict)
		}

		return tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, bid.BidderID).Scan(&bid.BidderName)
	})
	if err != nil {
		return types.Bid{}, err
	}
	log.Debugf("Auction %d updated with new bid: %d", bid.AuctionID, bid.Amount)
	return bid, nil
}

func (s *postgres) ListBidsForAuction(ctx context.Context, auctionID int64) ([]types.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.auction_id, b.bidder_id, u.username, b.amount, b.bid_time
		 FROM bids b JOIN users u ON u.id = b.bidder_id
		 WHERE b.auction_id = $1 ORDER BY b.bid_time DESC, b.id DESC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error listing bids: %w", err)
	}
	return collect(rows, func(row scanner) (types.Bid, error) {
		var b types.Bid
		err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.BidTime)
		return b, err
	})
}

func (s *postgres) ListBidsByUser(ctx context.Context, userID int64) ([]types.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.auction_id, b.bidder_id, u.username, b.amount, b.bid_time, i.name, a.status
		 FROM bids b
		 JOIN users u ON u.id = b.bidder_id
		 JOIN auctions a ON a.id = b.auction_id
		 JOIN items i ON i.id = a.item_id
		 WHERE b.bidder_id = $1 ORDER BY b.bid_time DESC, b.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing bids: %w", err)
	}
	return collect(rows, func(row scanner) (types.Bid, error) {
		var b types.Bid
		err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.BidTime, &b.ItemName, &b.AuctionStatus)
		return b, err
	})
}

func (s *postgres) CreateMessage(ctx context.Context, m types.Message) (types.Message, error) {
	err := s.pool.QueryRow(ctx,
		`WITH m AS (
		     INSERT INTO messages (auction_id, sender_id, receiver_id, text)
		     VALUES ($1, $2, $3, $4) RETURNING id, created_at
		 )
		 SELECT m.id, m.created_at, s.username, r.username, i.name
		 FROM m, users s, users r, auctions a JOIN items i ON i.id = a.item_id
		 WHERE s.id = $2 AND r.id = $3 AND a.id = $1`,
		m.AuctionID, m.SenderID, m.ReceiverID, m.Text,
	).Scan(&m.ID, &m.Timestamp, &m.SenderName, &m.ReceiverName, &m.ItemName)
	if isForeignKeyViolation(err) {
		return types.Message{}, fmt.Errorf("message target: %w", errors.ErrRecordNotFound)
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("error creating message: %w", err)
	}
	return m, nil
}

func (s *postgres) ListMessagesForUser(ctx context.Context, userID int64) ([]types.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.auction_id, m.sender_id, s.username, m.receiver_id, r.username,
		        m.text, m.created_at, m.is_read, i.name
		 FROM messages m
		 JOIN users s ON s.id = m.sender_id
		 JOIN users r ON r.id = m.receiver_id
		 JOIN auctions a ON a.id = m.auction_id
		 JOIN items i ON i.id = a.item_id
		 WHERE m.sender_id = $1 OR m.receiver_id = $1
		 ORDER BY m.created_at DESC, m.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	return collect(rows, func(row scanner) (types.Message, error) {
		var m types.Message
		err := row.Scan(&m.ID, &m.AuctionID, &m.SenderID, &m.SenderName, &m.ReceiverID, &m.ReceiverName,
			&m.Text, &m.Timestamp, &m.Read, &m.ItemName)
		return m, err
	})
}

func (s *postgres) MarkMessageRead(ctx context.Context, messageID, receiverID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id = $1 AND receiver_id = $2`, messageID, receiverID)
	if err != nil {
		return false, fmt.Errorf("error marking message %d read: %w", messageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// inTx runs fn in a serializable transaction, committing on success and rolling back otherwise.
func (s *postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("error committing transaction: %w", e)
		}
	}()

	return fn(tx)
}
