// Package broadcast fans committed auction events out to live WebSocket
// subscribers. Delivery is at-most-once and best-effort: a disconnected or
// slow client misses events until it resubscribes and receives a fresh
// state snapshot.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub tracks which clients watch which auction and routes per-auction
// payloads to them in the order they are handed in.
type Hub struct {
	// auctionID -> set of clients watching it
	subscribers sync.Map // map[string]*sync.Map

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound

	log *logrus.Logger
}

// sendBufferSize is the per-client outbound buffer; a client that cannot
// drain it is evicted as slow.
const sendBufferSize = 256

// Client is one WebSocket subscriber of one auction.
type Client struct {
	ID        string
	AuctionID string
	BidderID  string
	Conn      *websocket.Conn
	Send      chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(auctionID, bidderID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// close signals the pumps to stop. The Send channel is never closed, so a
// send racing with eviction cannot panic.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// trySend queues a payload unless the client is closed or its buffer is
// full.
func (c *Client) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

type outbound struct {
	auctionID string
	payload   []byte
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		log:        log,
	}
}

// Run is the hub's main loop; run it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.fanOut(msg.auctionID, msg.payload)
		}
	}
}

// Register attaches a client and starts its write pump.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister detaches a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a payload for every client watching the auction.
func (h *Hub) Broadcast(auctionID string, payload []byte) {
	h.broadcast <- &outbound{auctionID: auctionID, payload: payload}
}

// SubscriberCount reports how many clients watch an auction.
func (h *Hub) SubscriberCount(auctionID string) int {
	subs, ok := h.subscribers.Load(auctionID)
	if !ok {
		return 0
	}
	count := 0
	subs.(*sync.Map).Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (h *Hub) addClient(client *Client) {
	subs, _ := h.subscribers.LoadOrStore(client.AuctionID, &sync.Map{})
	subs.(*sync.Map).Store(client, true)

	h.log.WithFields(logrus.Fields{
		"client_id":  client.ID,
		"auction_id": client.AuctionID,
	}).Debug("client subscribed")

	go client.writePump()
}

// removeClient is idempotent: the read pump and the slow-client eviction
// can both report the same client.
func (h *Hub) removeClient(client *Client) {
	subs, ok := h.subscribers.Load(client.AuctionID)
	if !ok {
		return
	}
	if _, present := subs.(*sync.Map).LoadAndDelete(client); !present {
		return
	}

	client.close()

	h.log.WithFields(logrus.Fields{
		"client_id":  client.ID,
		"auction_id": client.AuctionID,
	}).Debug("client unsubscribed")
}

func (h *Hub) fanOut(auctionID string, payload []byte) {
	subs, ok := h.subscribers.Load(auctionID)
	if !ok {
		return
	}
	subs.(*sync.Map).Range(func(key, _ interface{}) bool {
		client := key.(*Client)
		if !client.trySend(payload) {
			// A full send buffer means a slow client; evict it so it cannot
			// stall the rest of the room. Removal happens inline because we
			// are already on the hub goroutine.
			h.removeClient(client)
		}
		return true
	})
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
