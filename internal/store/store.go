package store

import (
	"context"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// AuctionStore is the single source of truth for live auction state. All
// writers (bidding engine, scheduler, HTTP lifecycle actions) go through
// CompareAndUpdate; nothing else may mutate price, status or end time.
type AuctionStore interface {
	// Get loads the auction with its current version, or domain.ErrNotFound.
	Get(ctx context.Context, auctionID string) (*domain.Auction, error)

	// Create persists a brand-new auction at version 1.
	Create(ctx context.Context, a *domain.Auction) error

	// CompareAndUpdate atomically replaces the auction's mutable state iff
	// the stored version still equals expectedVersion, bumping the version
	// by one. When newBid is non-nil it is appended to the auction's bid
	// history in the same atomic step, and any previously winning bid loses
	// its flag. Returns domain.ErrConflict on a stale version.
	CompareAndUpdate(ctx context.Context, auctionID string, expectedVersion int64, next *domain.Auction, newBid *domain.Bid) error

	// Bids returns up to limit bids for the auction, most recent first.
	Bids(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error)

	// List returns all known auctions; the scheduler sweeps over it.
	List(ctx context.Context) ([]domain.Auction, error)
}
