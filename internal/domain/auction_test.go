package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusPending},
		{StatusDraft, StatusCancelled},
		{StatusPending, StatusActive},
		{StatusActive, StatusEnded},
		{StatusActive, StatusCancelled},
		{StatusEnded, StatusArchived},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	forbidden := []struct{ from, to Status }{
		{StatusDraft, StatusActive},
		{StatusPending, StatusEnded},
		// Cancellation is only legal from draft and active: a submitted
		// auction runs its course once the scheduler owns it.
		{StatusPending, StatusCancelled},
		{StatusEnded, StatusActive},
		{StatusEnded, StatusCancelled},
		{StatusCancelled, StatusActive},
		{StatusArchived, StatusEnded},
		{StatusActive, StatusActive},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func validAuction() *Auction {
	start := time.Now().Add(time.Hour)
	return &Auction{
		ID:               "a1",
		SellerID:         "seller",
		Title:            "Walnut Desk",
		StartPrice:       decimal.NewFromInt(100),
		CurrentPrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
		StartTime:        start,
		EndTime:          start.Add(24 * time.Hour),
		Status:           StatusDraft,
	}
}

func TestValidateNew(t *testing.T) {
	require.NoError(t, validAuction().ValidateNew())

	cases := []struct {
		name   string
		mutate func(*Auction)
	}{
		{"missing title", func(a *Auction) { a.Title = "" }},
		{"missing seller", func(a *Auction) { a.SellerID = "" }},
		{"zero start price", func(a *Auction) { a.StartPrice = decimal.Zero }},
		{"negative increment", func(a *Auction) { a.MinimumIncrement = decimal.NewFromInt(-1) }},
		{"increment at start price", func(a *Auction) { a.MinimumIncrement = a.StartPrice }},
		{"end before start", func(a *Auction) { a.EndTime = a.StartTime.Add(-time.Hour) }},
		{"too short", func(a *Auction) { a.EndTime = a.StartTime.Add(30 * time.Minute) }},
		{"too long", func(a *Auction) { a.EndTime = a.StartTime.Add(31 * 24 * time.Hour) }},
		{"negative sniping window", func(a *Auction) { a.AntiSnipingWindow = -time.Minute }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAuction()
			tc.mutate(a)
			assert.Error(t, a.ValidateNew())
		})
	}
}

func TestValidateNew_DurationBounds(t *testing.T) {
	a := validAuction()
	a.EndTime = a.StartTime.Add(MinAuctionDuration)
	assert.NoError(t, a.ValidateNew(), "exactly the minimum duration is allowed")

	a = validAuction()
	a.EndTime = a.StartTime.Add(MaxAuctionDuration)
	assert.NoError(t, a.ValidateNew(), "exactly the maximum duration is allowed")
}

func TestRequiredDeposit(t *testing.T) {
	a := validAuction()
	a.StartPrice = decimal.NewFromInt(250)

	got := a.RequiredDeposit(decimal.NewFromInt(10), decimal.NewFromInt(5))
	assert.True(t, got.Equal(decimal.NewFromInt(30)), "10%% of 250 plus a 5 fee, got %s", got)

	got = a.RequiredDeposit(decimal.Zero, decimal.Zero)
	assert.True(t, got.IsZero())
}

func TestClone_Independent(t *testing.T) {
	a := validAuction()
	cp := a.Clone()
	cp.CurrentPrice = decimal.NewFromInt(999)
	cp.Status = StatusActive

	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, StatusDraft, a.Status)
}
