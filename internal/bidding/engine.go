package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/deposit"
	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/notify"
	"github.com/brandon99-hub/Auction/internal/store"
)

// maxCASRetries bounds how many times a bid is replayed against fresh state
// after losing a version race before the caller sees ErrContention.
const maxCASRetries = 3

// maxAutoBidRounds caps the proxy-bidding exchange triggered by a single
// manual bid. The price strictly increases each round so the loop always
// terminates; the cap just keeps a single request cheap.
const maxAutoBidRounds = 32

// EventPublisher carries committed auction events to the realtime fan-out
// and the durable archival stream. Publish failures are logged by the
// engine and never roll back the bid.
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, ev *domain.AuctionEvent) error
}

// Engine orchestrates bid placement: validation, anti-sniping extension,
// atomic persistence through the store's CAS primitive, and event emission.
// One Engine serves all auctions; per-auction serialization comes from the
// store, not from locks here.
type Engine struct {
	store     store.AuctionStore
	ledger    deposit.Ledger
	publisher EventPublisher
	notifier  notify.Dispatcher
	log       *logrus.Logger

	depositPercent decimal.Decimal
	serviceFee     decimal.Decimal

	// now is swappable for tests.
	now func() time.Time
}

// Config carries the engine's collaborators and deposit policy.
type Config struct {
	Store          store.AuctionStore
	Ledger         deposit.Ledger
	Publisher      EventPublisher
	Notifier       notify.Dispatcher
	Log            *logrus.Logger
	DepositPercent decimal.Decimal
	ServiceFee     decimal.Decimal
}

func NewEngine(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		publisher:      cfg.Publisher,
		notifier:       cfg.Notifier,
		log:            log,
		depositPercent: cfg.DepositPercent,
		serviceFee:     cfg.ServiceFee,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBid attempts to place a bid and returns the committed result or the
// specific rejection. All-or-nothing: on any error no state has changed.
func (e *Engine) PlaceBid(ctx context.Context, auctionID string, req domain.BidRequest) (*domain.BidResult, error) {
	result, err := e.placeOne(ctx, auctionID, req)
	if err != nil {
		return nil, err
	}

	// A displaced auto-bidder may counter; each round goes through the same
	// commit path as a manual bid.
	e.runAutoBids(ctx, auctionID)

	return result, nil
}

// placeOne runs the load/validate/commit cycle with bounded CAS retries.
func (e *Engine) placeOne(ctx context.Context, auctionID string, req domain.BidRequest) (*domain.BidResult, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		a, err := e.store.Get(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		now := e.now()
		hasDeposit, err := e.ledger.HasQualifyingDeposit(ctx, req.BidderID, a.RequiredDeposit(e.depositPercent, e.serviceFee))
		if err != nil {
			return nil, err
		}

		if err := Validate(a, req.BidderID, req.Amount, now, hasDeposit); err != nil {
			return nil, err
		}

		// A proxy counter may land exactly on its cap; only a cap below the
		// amount is malformed.
		if req.IsAutoBid && req.MaxAutoBid.LessThan(req.Amount) {
			return nil, &domain.RejectionError{Reason: domain.RejectTooLow}
		}

		next := a.Clone()
		previousPrice := a.CurrentPrice
		previousLeader := a.LeaderID

		// Anti-sniping: a bid landing inside the window pushes the close out
		// by one full window. Re-applied for every late bid, uncapped.
		if a.EndTime.Sub(now) <= a.AntiSnipingWindow {
			next.EndTime = a.EndTime.Add(a.AntiSnipingWindow)
		}

		bid := &domain.Bid{
			ID:         uuid.New().String(),
			AuctionID:  auctionID,
			BidderID:   req.BidderID,
			Amount:     req.Amount,
			IsWinning:  true,
			IsAutoBid:  req.IsAutoBid,
			MaxAutoBid: req.MaxAutoBid,
			CreatedAt:  now,
		}
		next.CurrentPrice = req.Amount
		next.LeadingBidID = bid.ID
		next.LeaderID = req.BidderID

		err = e.store.CompareAndUpdate(ctx, auctionID, a.Version, next, bid)
		if errors.Is(err, domain.ErrConflict) {
			e.log.WithFields(logrus.Fields{
				"auction_id": auctionID,
				"attempt":    attempt + 1,
			}).Debug("bid lost version race, retrying against fresh state")
			continue
		}
		if err != nil {
			return nil, err
		}

		e.emitBidAccepted(ctx, next, bid, previousPrice, previousLeader)

		return &domain.BidResult{
			Bid:        bid,
			NewPrice:   next.CurrentPrice,
			NewEndTime: next.EndTime,
		}, nil
	}
	return nil, domain.ErrContention
}

// emitBidAccepted publishes the committed event and informs the displaced
// leader. Both are best-effort: the bid is already durable.
func (e *Engine) emitBidAccepted(ctx context.Context, a *domain.Auction, bid *domain.Bid, previousPrice decimal.Decimal, previousLeader string) {
	ev := &domain.AuctionEvent{
		EventID:       uuid.New().String(),
		Kind:          domain.EventBidAccepted,
		AuctionID:     a.ID,
		Timestamp:     bid.CreatedAt,
		Bid:           bid,
		PreviousPrice: previousPrice,
		OutbidUserID:  previousLeader,
		NewEndTime:    a.EndTime,
	}
	if err := e.publisher.PublishAuctionEvent(ctx, ev); err != nil {
		e.log.WithError(err).WithField("auction_id", a.ID).Warn("failed to publish bid event")
	}

	if previousLeader != "" && previousLeader != bid.BidderID {
		e.notifier.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindOutbid,
			UserID:       previousLeader,
			AuctionID:    a.ID,
			AuctionTitle: a.Title,
			Message:      notify.OutbidMessage(a.Title, bid.Amount),
		})
	}
}

// runAutoBids lets a displaced auto-bidder counter up to its cap: the
// counter amount is the smaller of cap and newPrice+increment. Rounds
// continue while the newest bid keeps displacing an auto-bid that still has
// headroom.
func (e *Engine) runAutoBids(ctx context.Context, auctionID string) {
	for round := 0; round < maxAutoBidRounds; round++ {
		a, err := e.store.Get(ctx, auctionID)
		if err != nil {
			return
		}
		challenger := e.displacedAutoBid(ctx, a)
		if challenger == nil {
			return
		}

		counter := a.CurrentPrice.Add(a.MinimumIncrement)
		if counter.GreaterThan(challenger.MaxAutoBid) {
			counter = challenger.MaxAutoBid
		}
		if !counter.GreaterThan(a.CurrentPrice) || counter.Sub(a.CurrentPrice).LessThan(a.MinimumIncrement) {
			// Cap exhausted or below increment; the auto-bid stays displaced.
			return
		}

		_, err = e.placeOne(ctx, auctionID, domain.BidRequest{
			BidderID:   challenger.BidderID,
			Amount:     counter,
			IsAutoBid:  true,
			MaxAutoBid: challenger.MaxAutoBid,
		})
		if err != nil {
			if _, rejected := domain.AsRejection(err); !rejected {
				e.log.WithError(err).WithField("auction_id", auctionID).Warn("auto-bid counter failed")
			}
			return
		}
	}
}

// displacedAutoBid finds the most recent auto-bid by a bidder other than the
// current leader whose cap still exceeds the current price.
func (e *Engine) displacedAutoBid(ctx context.Context, a *domain.Auction) *domain.Bid {
	bids, err := e.store.Bids(ctx, a.ID, 0)
	if err != nil {
		return nil
	}
	// Bids arrive most recent first. The first entry not owned by the
	// current leader is the displaced one; only it may counter.
	for i := range bids {
		b := &bids[i]
		if b.BidderID == a.LeaderID {
			continue
		}
		if b.IsAutoBid && b.MaxAutoBid.GreaterThan(a.CurrentPrice) {
			return b
		}
		return nil
	}
	return nil
}
