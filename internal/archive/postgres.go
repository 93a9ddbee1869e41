// Package archive persists the durable audit trail: every accepted bid and
// every auction settlement lands in PostgreSQL, fed by the JetStream event
// stream. The live bidding path never waits on this store.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// PostgresStore wraps the PostgreSQL connection for archival writes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and verifies the connection.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// InitSchema creates the archival tables.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(64) PRIMARY KEY,
		seller_id VARCHAR(64) NOT NULL,
		title VARCHAR(200) NOT NULL,
		description TEXT,
		start_price DECIMAL(10, 2) NOT NULL,
		current_price DECIMAL(10, 2) NOT NULL,
		minimum_increment DECIMAL(10, 2) NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		winner_id VARCHAR(64),
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(64) PRIMARY KEY,
		auction_id VARCHAR(64) NOT NULL,
		bidder_id VARCHAR(64) NOT NULL,
		amount DECIMAL(10, 2) NOT NULL,
		is_winning BOOLEAN NOT NULL DEFAULT FALSE,
		is_auto_bid BOOLEAN NOT NULL DEFAULT FALSE,
		max_auto_bid DECIMAL(10, 2),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_bids_created_at ON bids(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordBid archives an accepted bid: inside one transaction the previous
// winning row for the auction loses its flag and the new bid is inserted
// with is_winning=true, so the archive upholds the one-winner invariant.
// Amounts strictly increase per auction, so a bid arriving after a higher
// one has already been archived (redelivery, stream reordering) is recorded
// without disturbing the winner row or the cached price.
func (s *PostgresStore) RecordBid(ctx context.Context, ev *domain.AuctionEvent) error {
	bid := ev.Bid
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var superseded bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bids WHERE auction_id = $1 AND amount > $2)`,
		bid.AuctionID, bid.Amount.String(),
	).Scan(&superseded); err != nil {
		return fmt.Errorf("failed to check bid ordering: %w", err)
	}

	if !superseded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning = TRUE`,
			bid.AuctionID,
		); err != nil {
			return fmt.Errorf("failed to clear winning flag: %w", err)
		}
	}

	var maxAuto sql.NullString
	if bid.IsAutoBid {
		maxAuto = sql.NullString{String: bid.MaxAutoBid.String(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, is_winning, is_auto_bid, max_auto_bid, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount.String(), !superseded, bid.IsAutoBid, maxAuto, bid.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}

	if !superseded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE auctions SET current_price = $1, end_time = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
			bid.Amount.String(), ev.NewEndTime, bid.AuctionID,
		); err != nil {
			return fmt.Errorf("failed to update auction price: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertAuction mirrors the auction row from a state or settlement event.
func (s *PostgresStore) UpsertAuction(ctx context.Context, a *domain.Auction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auctions (id, seller_id, title, description, start_price, current_price,
			minimum_increment, start_time, end_time, status, winner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			winner_id = EXCLUDED.winner_id,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.SellerID, a.Title, a.Description, a.StartPrice.String(), a.CurrentPrice.String(),
		a.MinimumIncrement.String(), a.StartTime, a.EndTime, string(a.Status), a.WinnerID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert auction: %w", err)
	}
	return nil
}

// BidHistory retrieves the archived bids for an auction, most recent first.
func (s *PostgresStore) BidHistory(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, auction_id, bidder_id, amount, is_winning, created_at
		 FROM bids WHERE auction_id = $1 ORDER BY created_at DESC LIMIT $2`,
		auctionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var amount string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.IsWinning, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		if b.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
