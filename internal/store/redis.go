package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// Key layout for live auction state.
func auctionKey(auctionID string) string { return fmt.Sprintf("auction:%s", auctionID) }
func bidsKey(auctionID string) string    { return fmt.Sprintf("auction:%s:bids", auctionID) }

const indexKey = "auctions:index"

// casScript performs the compare-and-update atomically on the Redis server:
// the stored version must match the caller's expectation, then the state
// document is replaced, the version bumped, and (optionally) the new bid
// appended to the history list in the same step.
//
// KEYS[1] auction hash, KEYS[2] bids list
// ARGV[1] expected version, ARGV[2] next state JSON, ARGV[3] bid JSON or ""
var casScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v then
  return -1
end
if tonumber(v) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'version', tonumber(ARGV[1]) + 1)
if ARGV[3] ~= '' then
  redis.call('RPUSH', KEYS[2], ARGV[3])
end
return 1
`)

// createScript inserts a new auction only if the key does not exist yet.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'version', 1)
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// RedisStore is the AuctionStore used in production: one hash per auction
// holding the state document plus a monotonic version field, with all
// mutations funnelled through a Lua script so concurrent bids on the same
// auction can never interleave partially.
type RedisStore struct {
	client *redis.Client
}

var _ AuctionStore = (*RedisStore)(nil)

// NewRedisStore connects and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing client (shared with pub/sub and
// the deposit ledger).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, auctionID string) (*domain.Auction, error) {
	vals, err := s.client.HMGet(ctx, auctionKey(auctionID), "state", "version").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load auction %s: %w", auctionID, err)
	}
	stateJSON, ok := vals[0].(string)
	if !ok {
		return nil, domain.ErrNotFound
	}

	var a domain.Auction
	if err := json.Unmarshal([]byte(stateJSON), &a); err != nil {
		return nil, fmt.Errorf("failed to decode auction %s: %w", auctionID, err)
	}
	// The version field is authoritative; the document copy may lag by one
	// write in older records.
	if vstr, ok := vals[1].(string); ok {
		var v int64
		if _, err := fmt.Sscan(vstr, &v); err == nil {
			a.Version = v
		}
	}
	return &a, nil
}

func (s *RedisStore) Create(ctx context.Context, a *domain.Auction) error {
	a.Version = 1
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode auction: %w", err)
	}
	n, err := createScript.Run(ctx, s.client, []string{auctionKey(a.ID), indexKey}, doc, a.ID).Int()
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	return nil
}

func (s *RedisStore) CompareAndUpdate(ctx context.Context, auctionID string, expectedVersion int64, next *domain.Auction, newBid *domain.Bid) error {
	cp := next.Clone()
	cp.ID = auctionID
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode auction: %w", err)
	}

	bidJSON := ""
	if newBid != nil {
		b, err := json.Marshal(newBid)
		if err != nil {
			return fmt.Errorf("failed to encode bid: %w", err)
		}
		bidJSON = string(b)
	}

	n, err := casScript.Run(ctx, s.client,
		[]string{auctionKey(auctionID), bidsKey(auctionID)},
		expectedVersion, doc, bidJSON,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to run CAS script: %w", err)
	}
	switch n {
	case -1:
		return domain.ErrNotFound
	case 0:
		return domain.ErrConflict
	}

	next.Version = cp.Version
	return nil
}

// Bids returns the most recent bids first. The winning flag is derived from
// the auction's current LeadingBidID rather than rewriting list entries:
// the flip of a superseded bid is implicit in the leader change, so exactly
// one returned bid carries IsWinning=true.
func (s *RedisStore) Bids(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	a, err := s.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, bidsKey(auctionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bids for %s: %w", auctionID, err)
	}

	out := make([]domain.Bid, 0, len(raw))
	// List is append-ordered; walk backwards for most recent first.
	for i := len(raw) - 1; i >= 0; i-- {
		var b domain.Bid
		if err := json.Unmarshal([]byte(raw[i]), &b); err != nil {
			return nil, fmt.Errorf("failed to decode bid: %w", err)
		}
		b.IsWinning = b.ID == a.LeadingBidID
		out = append(out, b)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.Auction, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}

	out := make([]domain.Auction, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(ctx, id)
		if err == domain.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
