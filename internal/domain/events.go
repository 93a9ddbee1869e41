package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire-level message types carried over the realtime transport. These type
// strings are part of the client protocol and must not change.
const (
	MessageTypeBid   = "bid"
	MessageTypeState = "auction_state"
	MessageTypeError = "error"
)

// EventKind discriminates domain events inside the engine and on the event
// streams (Redis Pub/Sub for fan-out, NATS JetStream for archival).
type EventKind string

const (
	EventBidAccepted   EventKind = "bid_accepted"
	EventAuctionEnded  EventKind = "auction_ended"
	EventStateSnapshot EventKind = "state_snapshot"
)

// AuctionEvent is the single event envelope committed by the engine and the
// scheduler. Per auction id, events form one logical ordered stream.
type AuctionEvent struct {
	EventID   string    `json:"event_id"`
	Kind      EventKind `json:"kind"`
	AuctionID string    `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`

	// BidAccepted fields.
	Bid           *Bid            `json:"bid,omitempty"`
	PreviousPrice decimal.Decimal `json:"previous_price,omitempty"`
	OutbidUserID  string          `json:"outbid_user_id,omitempty"`
	NewEndTime    time.Time       `json:"new_end_time,omitempty"`

	// AuctionEnded / StateSnapshot fields.
	WinnerID string   `json:"winner_id,omitempty"`
	Auction  *Auction `json:"auction,omitempty"`
}

// BidMessage is the outbound realtime frame for an accepted bid.
type BidMessage struct {
	Type         string          `json:"type"` // always "bid"
	AuctionID    string          `json:"auction_id"`
	BidderID     string          `json:"bidder_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	EndTime      time.Time       `json:"end_time"`
	CreatedAt    time.Time       `json:"created_at"`
}

// StateMessage is the outbound realtime frame describing auction state,
// sent as a snapshot on subscribe and again on lifecycle transitions.
type StateMessage struct {
	Type    string   `json:"type"` // always "auction_state"
	Auction *Auction `json:"auction"`
}

// ErrorMessage is the outbound realtime frame for a rejected inbound bid or
// a malformed client message.
type ErrorMessage struct {
	Type   string `json:"type"` // always "error"
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// BidFrame is the inbound realtime frame a connected client sends to place a
// bid without going through the REST API.
type BidFrame struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}
