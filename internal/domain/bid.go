package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is an immutable record of an accepted bid. Only the IsWinning flag
// ever changes after creation: it flips to false when a later bid
// supersedes it. At most one bid per auction carries IsWinning=true.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsWinning bool            `json:"is_winning"`

	// Proxy bidding: when an auto-bid is displaced and its cap still exceeds
	// the new price, the engine counter-bids on the bidder's behalf up to
	// MaxAutoBid.
	IsAutoBid  bool            `json:"is_auto_bid,omitempty"`
	MaxAutoBid decimal.Decimal `json:"max_auto_bid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BidRequest is the inbound bid payload, shared by the REST and WebSocket
// surfaces.
type BidRequest struct {
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	IsAutoBid  bool            `json:"is_auto_bid,omitempty"`
	MaxAutoBid decimal.Decimal `json:"max_auto_bid,omitempty"`
}

// BidResult is returned to the caller on an accepted bid. NewEndTime is
// significant when anti-sniping extended the auction: clients use it to
// reset their countdowns.
type BidResult struct {
	Bid        *Bid            `json:"bid"`
	NewPrice   decimal.Decimal `json:"new_price"`
	NewEndTime time.Time       `json:"new_end_time"`
}
