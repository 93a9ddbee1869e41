package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon99-hub/Auction/internal/bidding"
	"github.com/brandon99-hub/Auction/internal/deposit"
	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/notify"
	"github.com/brandon99-hub/Auction/internal/store"
)

type nopPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
}

func (p *nopPublisher) PublishAuctionEvent(ctx context.Context, ev *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type apiFixture struct {
	server    *httptest.Server
	store     *store.MemoryStore
	publisher *nopPublisher
	notifier  *notify.Recorder
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := store.NewMemoryStore()
	pub := &nopPublisher{}
	rec := &notify.Recorder{}
	log := logrus.New()
	log.SetOutput(io.Discard)

	engine := bidding.NewEngine(bidding.Config{
		Store:     st,
		Ledger:    &deposit.StaticLedger{Qualified: true},
		Publisher: pub,
		Notifier:  rec,
		Log:       log,
	})
	h := NewHandler(st, engine, pub, rec, log)
	srv := httptest.NewServer(h.SetupRoutes())
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, store: st, publisher: pub, notifier: rec}
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (f *apiFixture) seedActive(t *testing.T) *domain.Auction {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Auction{
		ID:               "a1",
		SellerID:         "seller",
		Title:            "Oil Painting",
		StartPrice:       decimal.NewFromInt(100),
		CurrentPrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
		StartTime:        now.Add(-time.Hour),
		EndTime:          now.Add(2 * time.Hour),
		Status:           domain.StatusActive,
		CreatedAt:        now,
	}
	require.NoError(t, f.store.Create(context.Background(), a))
	return a
}

func TestCreateAuction(t *testing.T) {
	f := newAPIFixture(t)
	start := time.Now().UTC().Add(time.Hour)

	resp := f.do(t, http.MethodPost, "/api/v1/auctions", "seller", CreateAuctionRequest{
		Title:            "Bronze Clock",
		StartPrice:       decimal.NewFromInt(200),
		MinimumIncrement: decimal.NewFromInt(20),
		StartTime:        start,
		EndTime:          start.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Auction
	decodeInto(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "seller", created.SellerID)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.True(t, created.CurrentPrice.Equal(decimal.NewFromInt(200)))
}

func TestCreateAuction_RejectsInvalid(t *testing.T) {
	f := newAPIFixture(t)
	start := time.Now().UTC().Add(time.Hour)

	resp := f.do(t, http.MethodPost, "/api/v1/auctions", "seller", CreateAuctionRequest{
		Title:            "Too Short",
		StartPrice:       decimal.NewFromInt(200),
		MinimumIncrement: decimal.NewFromInt(20),
		StartTime:        start,
		EndTime:          start.Add(10 * time.Minute),
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAuction_RequiresIdentity(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/auctions", "", CreateAuctionRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLifecycleActions_SellerOnly(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()
	a := &domain.Auction{
		ID:               "d1",
		SellerID:         "seller",
		Title:            "Draft Lot",
		StartPrice:       decimal.NewFromInt(100),
		CurrentPrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
		StartTime:        now.Add(time.Hour),
		EndTime:          now.Add(25 * time.Hour),
		Status:           domain.StatusDraft,
	}
	require.NoError(t, f.store.Create(context.Background(), a))

	resp := f.do(t, http.MethodPost, "/api/v1/auctions/d1/submit", "intruder", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/auctions/d1/submit", "seller", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var submitted domain.Auction
	decodeInto(t, resp, &submitted)
	assert.Equal(t, domain.StatusPending, submitted.Status)

	// Submitting twice is an illegal transition.
	resp = f.do(t, http.MethodPost, "/api/v1/auctions/d1/submit", "seller", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartAuction_ResetsClock(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()
	a := &domain.Auction{
		ID:               "p1",
		SellerID:         "seller",
		Title:            "Pending Lot",
		StartPrice:       decimal.NewFromInt(100),
		CurrentPrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
		StartTime:        now.Add(5 * time.Hour),
		EndTime:          now.Add(29 * time.Hour),
		Status:           domain.StatusPending,
	}
	require.NoError(t, f.store.Create(context.Background(), a))

	resp := f.do(t, http.MethodPost, "/api/v1/auctions/p1/start", "seller", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var started domain.Auction
	decodeInto(t, resp, &started)

	assert.Equal(t, domain.StatusActive, started.Status)
	// The 24h configured run now counts from activation, not the old start.
	assert.WithinDuration(t, now.Add(24*time.Hour), started.EndTime, 5*time.Second)
}

func TestCancelAuction_NotifiesLeader(t *testing.T) {
	f := newAPIFixture(t)
	a := f.seedActive(t)

	resp := f.do(t, http.MethodPost, "/api/v1/auctions/a1/bid", "alice", domain.BidRequest{Amount: decimal.NewFromInt(110)})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/auctions/"+a.ID+"/cancel", "seller", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled []notify.Notification
	for _, n := range f.notifier.Recorded() {
		if n.Kind == notify.KindAuctionCancelled {
			cancelled = append(cancelled, n)
		}
	}
	require.Len(t, cancelled, 1)
	assert.Equal(t, "alice", cancelled[0].UserID)
}

func TestPlaceBid_EndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	f.seedActive(t)

	resp := f.do(t, http.MethodPost, "/api/v1/auctions/a1/bid", "alice", domain.BidRequest{Amount: decimal.NewFromInt(110)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result domain.BidResult
	decodeInto(t, resp, &result)
	require.NotNil(t, result.Bid)
	assert.Equal(t, "alice", result.Bid.BidderID)
	assert.True(t, result.NewPrice.Equal(decimal.NewFromInt(110)))

	a, err := f.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, "alice", a.LeaderID)
}

func TestPlaceBid_RejectionCarriesReason(t *testing.T) {
	f := newAPIFixture(t)
	f.seedActive(t)

	cases := []struct {
		name   string
		user   string
		amount int64
		reason domain.RejectReason
	}{
		{"self bid", "seller", 110, domain.RejectSelfBid},
		{"too low", "alice", 100, domain.RejectTooLow},
		{"below increment", "alice", 105, domain.RejectBelowIncrement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/v1/auctions/a1/bid", tc.user,
				domain.BidRequest{Amount: decimal.NewFromInt(tc.amount)})
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var body map[string]string
			decodeInto(t, resp, &body)
			assert.Equal(t, string(tc.reason), body["reason"])
		})
	}
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/auctions/missing/bid", "alice",
		domain.BidRequest{Amount: decimal.NewFromInt(110)})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListBids_MostRecentFirst(t *testing.T) {
	f := newAPIFixture(t)
	f.seedActive(t)

	for i, user := range []string{"alice", "bob", "carol"} {
		resp := f.do(t, http.MethodPost, "/api/v1/auctions/a1/bid", user,
			domain.BidRequest{Amount: decimal.NewFromInt(int64(110 + 10*i))})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/auctions/a1/bids", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var bids []domain.Bid
	decodeInto(t, resp, &bids)
	require.Len(t, bids, 3)
	assert.Equal(t, "carol", bids[0].BidderID)
	assert.True(t, bids[0].IsWinning)
	assert.False(t, bids[1].IsWinning)
	assert.False(t, bids[2].IsWinning)
}

func TestListAuctions_FiltersArchived(t *testing.T) {
	f := newAPIFixture(t)
	f.seedActive(t)

	now := time.Now().UTC()
	archived := &domain.Auction{
		ID:               "old",
		SellerID:         "seller",
		Title:            "Old Lot",
		StartPrice:       decimal.NewFromInt(50),
		CurrentPrice:     decimal.NewFromInt(50),
		MinimumIncrement: decimal.NewFromInt(5),
		StartTime:        now.Add(-200 * time.Hour),
		EndTime:          now.Add(-100 * time.Hour),
		Status:           domain.StatusArchived,
	}
	require.NoError(t, f.store.Create(context.Background(), archived))

	resp := f.do(t, http.MethodGet, "/api/v1/auctions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []domain.Auction
	decodeInto(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "a1", listed[0].ID)

	resp = f.do(t, http.MethodGet, "/api/v1/auctions?status=archived", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "old", listed[0].ID)
}

func TestLiveAuction_ActiveOnly(t *testing.T) {
	f := newAPIFixture(t)
	a := f.seedActive(t)

	resp := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/auctions/%s/live", a.ID), "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/auctions/a1/cancel", "seller", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/auctions/a1/live", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeInto(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}
