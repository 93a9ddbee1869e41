package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/events"
)

// Consumer pulls auction events from the JetStream stream and persists them.
// At-least-once delivery plus idempotent writes (ON CONFLICT DO NOTHING /
// upserts) makes replays harmless.
type Consumer struct {
	conn *nats.Conn
	js   jetstream.JetStream
	db   *PostgresStore
	log  *logrus.Logger
}

// NewConsumer connects to NATS and binds the archival consumer.
func NewConsumer(natsURL string, db *PostgresStore, log *logrus.Logger) (*Consumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Consumer{conn: conn, js: js, db: db, log: log}, nil
}

// Start consumes until the context is cancelled. Blocking.
func (c *Consumer) Start(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, events.StreamName, jetstream.ConsumerConfig{
		Durable:       "auction-archiver",
		FilterSubject: events.SubjectWildcard,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sub, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer sub.Stop()

	c.log.WithField("stream", events.StreamName).Info("archiver consuming auction events")
	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var ev domain.AuctionEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		c.log.WithError(err).Warn("failed to unmarshal event, dropping")
		msg.Term()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.persist(dbCtx, &ev); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   ev.EventID,
			"auction_id": ev.AuctionID,
		}).Error("failed to persist event, will redeliver")
		msg.Nak()
		return
	}

	c.log.WithFields(logrus.Fields{
		"event_id":   ev.EventID,
		"kind":       ev.Kind,
		"auction_id": ev.AuctionID,
	}).Debug("event archived")
	msg.Ack()
}

func (c *Consumer) persist(ctx context.Context, ev *domain.AuctionEvent) error {
	switch ev.Kind {
	case domain.EventBidAccepted:
		if ev.Bid == nil {
			return nil
		}
		return c.db.RecordBid(ctx, ev)
	case domain.EventAuctionEnded, domain.EventStateSnapshot:
		if ev.Auction == nil {
			return nil
		}
		return c.db.UpsertAuction(ctx, ev.Auction)
	}
	return nil
}

// Close closes the NATS connection.
func (c *Consumer) Close() {
	c.conn.Close()
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	return d, nil
}
