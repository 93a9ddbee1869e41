// Package notify is the boundary to the messaging subsystem (SMS/email in
// the full platform). The core hands over notifications fire-and-forget; a
// delivery failure is never allowed to affect a committed bid.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Kind enumerates the notification templates the auction core produces.
type Kind string

const (
	KindAuctionStarted   Kind = "start"
	KindOutbid           Kind = "outbid"
	KindWin              Kind = "win"
	KindAuctionEnded     Kind = "end"
	KindAuctionCancelled Kind = "cancelled"
	KindReminder         Kind = "auction_reminder"
)

// Notification is a single message addressed to one user.
type Notification struct {
	Kind         Kind
	UserID       string
	AuctionID    string
	AuctionTitle string
	Message      string
}

// Dispatcher consumes notifications. Implementations must not block the
// caller on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Templated message bodies, mirroring the platform's notification copy.
func OutbidMessage(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You were outbid on %q. The price is now %s.", title, amount.StringFixed(2))
}

func WinMessage(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You won the auction %q with a bid of %s.", title, amount.StringFixed(2))
}

func EndedMessage(title string) string {
	return fmt.Sprintf("Your auction %q has ended without bids.", title)
}

func SoldMessage(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("Your auction %q sold for %s.", title, amount.StringFixed(2))
}

func ReminderMessage(title string) string {
	return fmt.Sprintf("The auction %q starts within the hour.", title)
}

// LogDispatcher writes notifications to the structured log. Stands in for
// the SMS/email gateway outside this core.
type LogDispatcher struct {
	Log *logrus.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) {
	d.Log.WithFields(logrus.Fields{
		"kind":       n.Kind,
		"user_id":    n.UserID,
		"auction_id": n.AuctionID,
	}).Info(n.Message)
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu   sync.Mutex
	Sent []Notification
}

var _ Dispatcher = (*Recorder)(nil)

func (r *Recorder) Dispatch(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, n)
}

// Recorded returns a copy of everything dispatched so far.
func (r *Recorder) Recorded() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.Sent))
	copy(out, r.Sent)
	return out
}
