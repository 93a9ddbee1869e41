package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// MemoryStore is an in-process AuctionStore with the same versioned CAS
// semantics as the Redis store. Used in tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*domain.Auction
	bids     map[string][]domain.Bid
}

var _ AuctionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]domain.Bid),
	}
}

func (s *MemoryStore) Get(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.auctions[a.ID]; exists {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	cp := a.Clone()
	cp.Version = 1
	s.auctions[cp.ID] = cp
	a.Version = cp.Version
	return nil
}

func (s *MemoryStore) CompareAndUpdate(ctx context.Context, auctionID string, expectedVersion int64, next *domain.Auction, newBid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.auctions[auctionID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}

	cp := next.Clone()
	cp.ID = auctionID
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()
	s.auctions[auctionID] = cp

	if newBid != nil {
		history := s.bids[auctionID]
		for i := range history {
			history[i].IsWinning = false
		}
		s.bids[auctionID] = append(history, *newBid)
	}

	next.Version = cp.Version
	return nil
}

func (s *MemoryStore) Bids(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.bids[auctionID]
	out := make([]domain.Bid, len(history))
	copy(out, history)
	// Most recent first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
