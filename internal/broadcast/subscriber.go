package broadcast

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/events"
)

// Subscriber bridges the Redis Pub/Sub event channels into the hub. Keeping
// fan-out behind Pub/Sub means any number of broadcaster nodes can serve
// WebSocket clients for the same auction.
type Subscriber struct {
	client *redis.Client
	hub    *Hub
	log    *logrus.Logger
}

func NewSubscriber(client *redis.Client, hub *Hub, log *logrus.Logger) *Subscriber {
	return &Subscriber{client: client, hub: hub, log: log}
}

// Run pattern-subscribes to every auction's event channel and pushes wire
// frames into the hub until the context is cancelled. Blocking; run in a
// goroutine.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, events.ChannelPattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg)
		}
	}
}

func (s *Subscriber) handle(msg *redis.Message) {
	var ev domain.AuctionEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		s.log.WithError(err).Warn("failed to parse event payload")
		return
	}

	auctionID := ev.AuctionID
	if auctionID == "" {
		auctionID = auctionIDFromChannel(msg.Channel)
	}

	frame, err := frameFor(&ev)
	if err != nil {
		s.log.WithError(err).WithField("auction_id", auctionID).Warn("failed to encode wire frame")
		return
	}
	if frame == nil {
		return
	}
	s.hub.Broadcast(auctionID, frame)
}

// frameFor converts a committed domain event into the client wire schema.
func frameFor(ev *domain.AuctionEvent) ([]byte, error) {
	switch ev.Kind {
	case domain.EventBidAccepted:
		if ev.Bid == nil {
			return nil, nil
		}
		return json.Marshal(domain.BidMessage{
			Type:         domain.MessageTypeBid,
			AuctionID:    ev.AuctionID,
			BidderID:     ev.Bid.BidderID,
			Amount:       ev.Bid.Amount,
			CurrentPrice: ev.Bid.Amount,
			EndTime:      ev.NewEndTime,
			CreatedAt:    ev.Bid.CreatedAt,
		})
	case domain.EventAuctionEnded, domain.EventStateSnapshot:
		return json.Marshal(domain.StateMessage{
			Type:    domain.MessageTypeState,
			Auction: ev.Auction,
		})
	}
	return nil, nil
}

// auctionIDFromChannel strips the channel prefix: "auction_events:{id}".
func auctionIDFromChannel(channel string) string {
	if i := strings.IndexByte(channel, ':'); i >= 0 {
		return channel[i+1:]
	}
	return ""
}
