// Package deposit is the boundary to the payments subsystem. The bidding
// core only needs a yes/no answer: does this bidder hold a qualifying
// deposit for the auction's required amount?
package deposit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Ledger answers deposit qualification queries for the bid validator.
type Ledger interface {
	HasQualifyingDeposit(ctx context.Context, bidderID string, required decimal.Decimal) (bool, error)
}

func depositKey(bidderID string) string { return fmt.Sprintf("deposit:%s", bidderID) }

// RedisLedger reads per-bidder deposit balances that the payments service
// maintains in Redis.
type RedisLedger struct {
	client *redis.Client
}

var _ Ledger = (*RedisLedger)(nil)

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) HasQualifyingDeposit(ctx context.Context, bidderID string, required decimal.Decimal) (bool, error) {
	val, err := l.client.Get(ctx, depositKey(bidderID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read deposit for %s: %w", bidderID, err)
	}

	balance, err := decimal.NewFromString(val)
	if err != nil {
		return false, fmt.Errorf("malformed deposit balance for %s: %w", bidderID, err)
	}
	return balance.GreaterThanOrEqual(required), nil
}

// SetDeposit records a bidder's deposit balance. Exposed for the payments
// collaborator and for seeding development data.
func (l *RedisLedger) SetDeposit(ctx context.Context, bidderID string, balance decimal.Decimal) error {
	return l.client.Set(ctx, depositKey(bidderID), balance.String(), 0).Err()
}

// StaticLedger is a fixed-answer ledger for tests and for deployments that
// run without the payments integration.
type StaticLedger struct {
	Qualified bool
}

var _ Ledger = (*StaticLedger)(nil)

func (l *StaticLedger) HasQualifyingDeposit(ctx context.Context, bidderID string, required decimal.Decimal) (bool, error) {
	return l.Qualified, nil
}
