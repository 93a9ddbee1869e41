// Package events carries committed auction events out of the engine and
// scheduler: over Redis Pub/Sub for realtime fan-out, and onto a NATS
// JetStream stream for durable archival.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// Channel returns the Pub/Sub channel for one auction's event stream.
func Channel(auctionID string) string {
	return fmt.Sprintf("auction_events:%s", auctionID)
}

// ChannelPattern matches every auction's event channel.
const ChannelPattern = "auction_events:*"

// Subject returns the JetStream subject for one auction.
func Subject(auctionID string) string {
	return fmt.Sprintf("auction.events.%s", auctionID)
}

// StreamName is the JetStream stream archiving all auction events.
const StreamName = "AUCTION_EVENTS"

// SubjectWildcard subscribes the archiver to every auction.
const SubjectWildcard = "auction.events.*"

// archiveQueueSize bounds the backlog of events awaiting JetStream
// archival. Enqueueing never blocks the write path; a full queue drops the
// event with an error log.
const archiveQueueSize = 1024

type archiveJob struct {
	subject string
	payload []byte
}

// Publisher fans committed events out. The Redis publish is synchronous so
// subscribers of one auction observe events in commit order; JetStream
// archival is decoupled through a single drain goroutine, which keeps the
// durable stream in that same order without making the write path wait.
type Publisher struct {
	redis *redis.Client
	js    jetstream.JetStream
	log   *logrus.Logger

	queue chan archiveJob

	// publishJS is swappable for tests.
	publishJS func(ctx context.Context, subject string, payload []byte) error
}

// NewPublisher builds the publisher and ensures the archival stream exists.
func NewPublisher(redisClient *redis.Client, natsConn *nats.Conn, log *logrus.Logger) (*Publisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Durable stream of committed auction events",
		Subjects:    []string{SubjectWildcard},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	p := &Publisher{
		redis: redisClient,
		js:    js,
		log:   log,
		queue: make(chan archiveJob, archiveQueueSize),
	}
	p.publishJS = p.publishToStream
	go p.archiveLoop()
	return p, nil
}

// PublishAuctionEvent sends one committed event. A failure here is reported
// to the caller for logging only; the state change is already durable.
func (p *Publisher) PublishAuctionEvent(ctx context.Context, ev *domain.AuctionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.redis.Publish(ctx, Channel(ev.AuctionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event to Redis: %w", err)
	}

	p.enqueueArchive(ev.AuctionID, payload)
	return nil
}

func (p *Publisher) enqueueArchive(auctionID string, payload []byte) {
	select {
	case p.queue <- archiveJob{subject: Subject(auctionID), payload: payload}:
	default:
		p.log.WithField("auction_id", auctionID).Error("archival queue full, event not archived")
	}
}

// archiveLoop drains the queue one event at a time so the stream receives
// events in enqueue order.
func (p *Publisher) archiveLoop() {
	for job := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.publishJS(ctx, job.subject, job.payload); err != nil {
			p.log.WithError(err).WithField("subject", job.subject).
				Warn("failed to publish event to JetStream")
		}
		cancel()
	}
}

func (p *Publisher) publishToStream(ctx context.Context, subject string, payload []byte) error {
	ack, err := p.js.Publish(ctx, subject, payload)
	if err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{
		"subject": subject,
		"seq":     ack.Sequence,
	}).Debug("event archived to JetStream")
	return nil
}
