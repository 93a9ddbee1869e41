package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon99-hub/Auction/internal/domain"
)

func TestFrameFor_BidAccepted(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := &domain.AuctionEvent{
		EventID:   "ev1",
		Kind:      domain.EventBidAccepted,
		AuctionID: "a1",
		Bid: &domain.Bid{
			ID:        "b1",
			AuctionID: "a1",
			BidderID:  "alice",
			Amount:    decimal.NewFromInt(150),
			CreatedAt: created,
		},
		NewEndTime: created.Add(10 * time.Minute),
	}

	raw, err := frameFor(ev)
	require.NoError(t, err)

	var msg domain.BidMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, domain.MessageTypeBid, msg.Type)
	assert.Equal(t, "a1", msg.AuctionID)
	assert.Equal(t, "alice", msg.BidderID)
	assert.True(t, msg.Amount.Equal(decimal.NewFromInt(150)))
	assert.True(t, msg.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, msg.EndTime.Equal(created.Add(10*time.Minute)))
}

func TestFrameFor_AuctionEnded(t *testing.T) {
	ev := &domain.AuctionEvent{
		Kind:      domain.EventAuctionEnded,
		AuctionID: "a1",
		WinnerID:  "alice",
		Auction: &domain.Auction{
			ID:           "a1",
			Status:       domain.StatusEnded,
			WinnerID:     "alice",
			CurrentPrice: decimal.NewFromInt(150),
		},
	}

	raw, err := frameFor(ev)
	require.NoError(t, err)

	var msg domain.StateMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, domain.MessageTypeState, msg.Type)
	require.NotNil(t, msg.Auction)
	assert.Equal(t, domain.StatusEnded, msg.Auction.Status)
	assert.Equal(t, "alice", msg.Auction.WinnerID)
}

func TestFrameFor_SkipsUnknownKinds(t *testing.T) {
	raw, err := frameFor(&domain.AuctionEvent{Kind: domain.EventKind("unknown"), AuctionID: "a1"})
	require.NoError(t, err)
	assert.Nil(t, raw)

	// A bid event with no bid payload is malformed; drop it rather than
	// emit a half-empty frame.
	raw, err = frameFor(&domain.AuctionEvent{Kind: domain.EventBidAccepted, AuctionID: "a1"})
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestAuctionIDFromChannel(t *testing.T) {
	assert.Equal(t, "a1", auctionIDFromChannel("auction_events:a1"))
	assert.Equal(t, "", auctionIDFromChannel("no-separator"))
}
