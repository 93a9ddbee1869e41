package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction.
//
// Flow: draft -> pending -> active -> ended/cancelled.
// Cancellation is allowed from draft and active. Ended auctions move to
// archived after the retention period; archived is housekeeping only and
// never accepts bids or scheduler close sweeps.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
	StatusArchived  Status = "archived"
)

// transitions lists the legal status moves.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending, StatusCancelled},
	StatusPending: {StatusActive},
	StatusActive:  {StatusEnded, StatusCancelled},
	StatusEnded:   {StatusArchived},
}

// CanTransition reports whether moving from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Duration bounds enforced at creation time.
const (
	MinAuctionDuration = time.Hour
	MaxAuctionDuration = 30 * 24 * time.Hour
)

// Auction is the aggregate root for a single auction. All mutable fields
// (CurrentPrice, EndTime, Status, WinnerID, LeadingBidID, ReminderSent)
// change only through the store's CompareAndUpdate, which bumps Version.
type Auction struct {
	ID           string `json:"id"`
	SellerID     string `json:"seller_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`

	StartPrice       decimal.Decimal `json:"start_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`

	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	AntiSnipingWindow time.Duration `json:"anti_sniping_window"`

	Status       Status `json:"status"`
	WinnerID     string `json:"winner_id,omitempty"`
	LeadingBidID string `json:"leading_bid_id,omitempty"`
	LeaderID     string `json:"leader_id,omitempty"`

	// ReminderSent marks that the start-time reminder notification has gone
	// out, so the scheduler's reminder pass stays idempotent.
	ReminderSent bool `json:"reminder_sent,omitempty"`

	// Version is the optimistic concurrency token. Zero means "not yet
	// persisted"; the store bumps it on every committed mutation.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateNew checks the creation-time invariants on an auction.
func (a *Auction) ValidateNew() error {
	if a.Title == "" {
		return fmt.Errorf("title is required")
	}
	if a.SellerID == "" {
		return fmt.Errorf("seller_id is required")
	}
	if !a.StartPrice.IsPositive() {
		return fmt.Errorf("start_price must be positive")
	}
	if !a.MinimumIncrement.IsPositive() {
		return fmt.Errorf("minimum_increment must be positive")
	}
	if a.MinimumIncrement.GreaterThanOrEqual(a.StartPrice) {
		return fmt.Errorf("minimum_increment must be less than start_price")
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	d := a.EndTime.Sub(a.StartTime)
	if d < MinAuctionDuration || d > MaxAuctionDuration {
		return fmt.Errorf("auction duration must be between %s and %s", MinAuctionDuration, MaxAuctionDuration)
	}
	if a.AntiSnipingWindow < 0 {
		return fmt.Errorf("anti_sniping_window must not be negative")
	}
	return nil
}

// RequiredDeposit is the amount a bidder must hold on deposit to qualify:
// a percentage of the start price plus a flat service fee.
func (a *Auction) RequiredDeposit(depositPercent, serviceFee decimal.Decimal) decimal.Decimal {
	return a.StartPrice.Mul(depositPercent).Div(decimal.NewFromInt(100)).Add(serviceFee)
}

// Clone returns a deep-enough copy for copy-on-write mutation before a
// CompareAndUpdate attempt. Decimal and time values are immutable.
func (a *Auction) Clone() *Auction {
	cp := *a
	return &cp
}
