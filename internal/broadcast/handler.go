package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/bidding"
	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the edge proxy in this deployment.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections and wires clients into the hub. A
// connected client may also place bids by sending {"type":"bid","amount":N}
// frames; rejections come back as error frames on the same socket.
type Handler struct {
	hub    *Hub
	store  store.AuctionStore
	engine *bidding.Engine
	log    *logrus.Logger
}

func NewHandler(hub *Hub, st store.AuctionStore, engine *bidding.Engine, log *logrus.Logger) *Handler {
	return &Handler{hub: hub, store: st, engine: engine, log: log}
}

// RegisterRoutes attaches the realtime endpoints to the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/auctions/{id}", h.HandleWebSocket)
	router.HandleFunc("/stats/auctions/{id}", h.GetStats).Methods("GET")
}

// HandleWebSocket subscribes the caller to one auction's event stream. The
// first frame is always a state snapshot so late joiners and reconnects
// start from truth rather than waiting for the next event.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	if auctionID == "" {
		http.Error(w, "auction id is required", http.StatusBadRequest)
		return
	}

	a, err := h.store.Get(r.Context(), auctionID)
	if err == domain.ErrNotFound {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load auction", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newClient(auctionID, r.URL.Query().Get("bidder_id"), conn)

	// Queue the snapshot before the pumps start so it is always the first
	// frame the client sees.
	if snapshot, err := json.Marshal(domain.StateMessage{Type: domain.MessageTypeState, Auction: a}); err == nil {
		client.trySend(snapshot)
	}

	h.hub.Register(client)
	go h.readPump(client)
}

// GetStats reports the live subscriber count for an auction.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"auction_id":  auctionID,
		"subscribers": h.hub.SubscriberCount(auctionID),
	})
}

// readPump consumes inbound frames until the connection drops.
func (h *Handler) readPump(c *Client) {
	defer h.hub.Unregister(c)

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).WithField("client_id", c.ID).Debug("websocket read error")
			}
			return
		}

		var frame domain.BidFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.sendError(c, "bad_request", "malformed message")
			continue
		}
		if frame.Type != domain.MessageTypeBid {
			continue
		}
		h.placeBid(c, frame)
	}
}

func (h *Handler) placeBid(c *Client, frame domain.BidFrame) {
	if c.BidderID == "" {
		h.sendError(c, "unauthorized", "connect with bidder_id to place bids")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.engine.PlaceBid(ctx, c.AuctionID, domain.BidRequest{
		BidderID: c.BidderID,
		Amount:   frame.Amount,
	})
	if err == nil {
		// The accepted bid reaches this client through the broadcast path,
		// same as every other subscriber.
		return
	}
	if rej, ok := domain.AsRejection(err); ok {
		h.sendError(c, string(rej.Reason), "")
		return
	}
	h.log.WithError(err).WithField("auction_id", c.AuctionID).Warn("websocket bid failed")
	h.sendError(c, "internal", "failed to place bid")
}

func (h *Handler) sendError(c *Client, reason, detail string) {
	payload, err := json.Marshal(domain.ErrorMessage{Type: domain.MessageTypeError, Reason: reason, Detail: detail})
	if err != nil {
		return
	}
	c.trySend(payload)
}
