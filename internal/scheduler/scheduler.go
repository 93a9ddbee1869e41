// Package scheduler drives auction lifecycle transitions that are not
// caused by a bid: activation at start time, closing and winner
// determination at end time, start reminders, and retention archival.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/bidding"
	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/notify"
	"github.com/brandon99-hub/Auction/internal/store"
)

// Scheduler sweeps the store on a fixed interval. Every transition goes
// through the same CompareAndUpdate discipline as the bidding engine, so a
// last-moment bid that extends end_time always beats the close: the close
// attempt fails on the version check and the auction is re-examined next
// tick.
type Scheduler struct {
	store     store.AuctionStore
	publisher bidding.EventPublisher
	notifier  notify.Dispatcher
	log       *logrus.Logger

	interval       time.Duration
	reminderLead   time.Duration
	retentionAfter time.Duration

	now func() time.Time
}

// Config carries the scheduler's collaborators and sweep policy.
type Config struct {
	Store     store.AuctionStore
	Publisher bidding.EventPublisher
	Notifier  notify.Dispatcher
	Log       *logrus.Logger

	// Interval between sweeps. The platform default is 5 minutes.
	Interval time.Duration
	// ReminderLead is how far before start_time the reminder goes out.
	ReminderLead time.Duration
	// RetentionAfter is how long ended auctions stay before archival.
	RetentionAfter time.Duration
}

func New(cfg Config) *Scheduler {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		store:          cfg.Store,
		publisher:      cfg.Publisher,
		notifier:       cfg.Notifier,
		log:            log,
		interval:       interval,
		reminderLead:   cfg.ReminderLead,
		retentionAfter: cfg.RetentionAfter,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, sweeping until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep once at startup so restarts don't wait out a full interval.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep. Idempotent: a second immediate run with no new bids
// produces no further transitions.
func (s *Scheduler) Tick(ctx context.Context) {
	auctions, err := s.store.List(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduler sweep failed to list auctions")
		return
	}

	now := s.now()
	for i := range auctions {
		a := &auctions[i]
		switch a.Status {
		case domain.StatusPending:
			if !a.StartTime.After(now) {
				s.activate(ctx, a)
			} else if s.reminderLead > 0 && !a.ReminderSent && a.StartTime.Sub(now) <= s.reminderLead {
				s.remind(ctx, a)
			}
		case domain.StatusActive:
			if !a.EndTime.After(now) {
				s.close(ctx, a)
			}
		case domain.StatusEnded:
			if s.retentionAfter > 0 && now.Sub(a.EndTime) >= s.retentionAfter {
				s.archive(ctx, a)
			}
		}
	}
}

func (s *Scheduler) activate(ctx context.Context, a *domain.Auction) {
	next := a.Clone()
	next.Status = domain.StatusActive
	if err := s.store.CompareAndUpdate(ctx, a.ID, a.Version, next, nil); err != nil {
		s.logConflict(err, a.ID, "activate")
		return
	}
	s.log.WithField("auction_id", a.ID).Info("auction activated")
	s.publishState(ctx, next)
}

// close ends an auction and settles the winner. The version carried from
// the sweep's read guards against a bid that arrived inside this tick: if
// that bid extended end_time, the CAS fails and the close is aborted.
func (s *Scheduler) close(ctx context.Context, a *domain.Auction) {
	next := a.Clone()
	next.Status = domain.StatusEnded
	next.WinnerID = a.LeaderID

	if err := s.store.CompareAndUpdate(ctx, a.ID, a.Version, next, nil); err != nil {
		s.logConflict(err, a.ID, "close")
		return
	}

	s.log.WithFields(logrus.Fields{
		"auction_id": a.ID,
		"winner_id":  next.WinnerID,
		"price":      next.CurrentPrice.StringFixed(2),
	}).Info("auction ended")

	ev := &domain.AuctionEvent{
		EventID:   uuid.New().String(),
		Kind:      domain.EventAuctionEnded,
		AuctionID: a.ID,
		Timestamp: s.now(),
		WinnerID:  next.WinnerID,
		Auction:   next,
	}
	if err := s.publisher.PublishAuctionEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("auction_id", a.ID).Warn("failed to publish auction ended event")
	}

	if next.WinnerID != "" {
		s.notifier.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindWin,
			UserID:       next.WinnerID,
			AuctionID:    a.ID,
			AuctionTitle: a.Title,
			Message:      notify.WinMessage(a.Title, next.CurrentPrice),
		})
		s.notifier.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindAuctionEnded,
			UserID:       a.SellerID,
			AuctionID:    a.ID,
			AuctionTitle: a.Title,
			Message:      notify.SoldMessage(a.Title, next.CurrentPrice),
		})
	} else {
		s.notifier.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindAuctionEnded,
			UserID:       a.SellerID,
			AuctionID:    a.ID,
			AuctionTitle: a.Title,
			Message:      notify.EndedMessage(a.Title),
		})
	}
}

func (s *Scheduler) remind(ctx context.Context, a *domain.Auction) {
	next := a.Clone()
	next.ReminderSent = true
	if err := s.store.CompareAndUpdate(ctx, a.ID, a.Version, next, nil); err != nil {
		s.logConflict(err, a.ID, "remind")
		return
	}
	s.notifier.Dispatch(ctx, notify.Notification{
		Kind:         notify.KindReminder,
		UserID:       a.SellerID,
		AuctionID:    a.ID,
		AuctionTitle: a.Title,
		Message:      notify.ReminderMessage(a.Title),
	})
}

func (s *Scheduler) archive(ctx context.Context, a *domain.Auction) {
	next := a.Clone()
	next.Status = domain.StatusArchived
	if err := s.store.CompareAndUpdate(ctx, a.ID, a.Version, next, nil); err != nil {
		s.logConflict(err, a.ID, "archive")
		return
	}
	s.log.WithField("auction_id", a.ID).Info("auction archived")
}

func (s *Scheduler) logConflict(err error, auctionID, op string) {
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race to a concurrent bid or action; next tick re-examines.
		s.log.WithFields(logrus.Fields{"auction_id": auctionID, "op": op}).
			Debug("sweep transition lost version race")
		return
	}
	s.log.WithError(err).WithFields(logrus.Fields{"auction_id": auctionID, "op": op}).
		Error("sweep transition failed")
}

func (s *Scheduler) publishState(ctx context.Context, a *domain.Auction) {
	ev := &domain.AuctionEvent{
		EventID:   uuid.New().String(),
		Kind:      domain.EventStateSnapshot,
		AuctionID: a.ID,
		Timestamp: s.now(),
		Auction:   a,
	}
	if err := s.publisher.PublishAuctionEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("auction_id", a.ID).Warn("failed to publish state event")
	}
}
