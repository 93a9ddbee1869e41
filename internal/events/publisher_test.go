package events

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestArchiveLoop_PreservesEnqueueOrder(t *testing.T) {
	published := make(chan string, 8)
	p := &Publisher{
		log:   quietLogger(),
		queue: make(chan archiveJob, 8),
		publishJS: func(ctx context.Context, subject string, payload []byte) error {
			published <- string(payload)
			return nil
		},
	}
	go p.archiveLoop()

	// Two bids committed back-to-back must reach the stream in commit
	// order even though archival runs off the write path.
	for _, payload := range []string{"bid-120", "bid-130", "ended"} {
		p.enqueueArchive("a1", []byte(payload))
	}

	for _, want := range []string{"bid-120", "bid-130", "ended"} {
		select {
		case got := <-published:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for archive publish")
		}
	}
}

func TestEnqueueArchive_NeverBlocks(t *testing.T) {
	// No drain loop running and a single-slot queue: the second enqueue
	// must drop the event rather than stall the caller.
	p := &Publisher{
		log:   quietLogger(),
		queue: make(chan archiveJob, 1),
	}

	done := make(chan struct{})
	go func() {
		p.enqueueArchive("a1", []byte("first"))
		p.enqueueArchive("a1", []byte("second"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	job := <-p.queue
	require.Equal(t, "first", string(job.payload))
	assert.Equal(t, Subject("a1"), job.subject)
}
