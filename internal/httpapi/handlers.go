// Package httpapi is the REST surface of the auction engine: auction
// creation and lifecycle actions for sellers, bid placement and history for
// bidders.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/brandon99-hub/Auction/internal/bidding"
	"github.com/brandon99-hub/Auction/internal/domain"
	"github.com/brandon99-hub/Auction/internal/notify"
	"github.com/brandon99-hub/Auction/internal/store"
)

// userHeader identifies the acting user. Authentication itself lives at the
// gateway; the engine trusts the forwarded identity.
const userHeader = "X-User-ID"

// Handler holds the HTTP request handlers.
type Handler struct {
	store     store.AuctionStore
	engine    *bidding.Engine
	publisher bidding.EventPublisher
	notifier  notify.Dispatcher
	log       *logrus.Logger
}

func NewHandler(st store.AuctionStore, engine *bidding.Engine, publisher bidding.EventPublisher, notifier notify.Dispatcher, log *logrus.Logger) *Handler {
	return &Handler{store: st, engine: engine, publisher: publisher, notifier: notifier, log: log}
}

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auctions", h.CreateAuction).Methods("POST")
	api.HandleFunc("/auctions", h.ListAuctions).Methods("GET")
	api.HandleFunc("/auctions/{id}", h.GetAuction).Methods("GET")
	api.HandleFunc("/auctions/{id}/submit", h.SubmitAuction).Methods("POST")
	api.HandleFunc("/auctions/{id}/start", h.StartAuction).Methods("POST")
	api.HandleFunc("/auctions/{id}/cancel", h.CancelAuction).Methods("POST")
	api.HandleFunc("/auctions/{id}/bid", h.PlaceBid).Methods("POST")
	api.HandleFunc("/auctions/{id}/bids", h.ListBids).Methods("GET")
	api.HandleFunc("/auctions/{id}/live", h.LiveAuction).Methods("GET")

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auctiond",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateAuctionRequest is the creation payload. Times are RFC3339; the
// anti-sniping window is given in seconds.
type CreateAuctionRequest struct {
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	StartPrice            decimal.Decimal `json:"start_price"`
	MinimumIncrement      decimal.Decimal `json:"minimum_increment"`
	StartTime             time.Time       `json:"start_time"`
	EndTime               time.Time       `json:"end_time"`
	AntiSnipingWindowSecs int64           `json:"anti_sniping_window_secs"`
}

// CreateAuction creates a draft auction owned by the calling seller.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	sellerID := r.Header.Get(userHeader)
	if sellerID == "" {
		respondError(w, http.StatusUnauthorized, "user identity is required")
		return
	}

	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	a := &domain.Auction{
		ID:                uuid.New().String(),
		SellerID:          sellerID,
		Title:             req.Title,
		Description:       req.Description,
		StartPrice:        req.StartPrice,
		CurrentPrice:      req.StartPrice,
		MinimumIncrement:  req.MinimumIncrement,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		AntiSnipingWindow: time.Duration(req.AntiSnipingWindowSecs) * time.Second,
		Status:            domain.StatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.ValidateNew(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), a); err != nil {
		h.log.WithError(err).Error("failed to create auction")
		respondError(w, http.StatusInternalServerError, "failed to create auction")
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// ListAuctions returns every non-archived auction, optionally filtered by
// ?status=.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.store.List(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list auctions")
		respondError(w, http.StatusInternalServerError, "failed to list auctions")
		return
	}

	filter := domain.Status(r.URL.Query().Get("status"))
	out := make([]domain.Auction, 0, len(auctions))
	for _, a := range auctions {
		if filter == "" && a.Status == domain.StatusArchived {
			continue
		}
		if filter != "" && a.Status != filter {
			continue
		}
		out = append(out, a)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetAuction fetches one auction.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAuction(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// SubmitAuction moves a draft into pending, handing it to the scheduler for
// activation at start time.
func (h *Handler) SubmitAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusPending, "only draft auctions can be submitted")
}

// StartAuction activates a pending auction immediately, without waiting for
// the scheduler sweep.
func (h *Handler) StartAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusActive, "only pending auctions can be started")
}

// CancelAuction terminates a draft or active auction.
func (h *Handler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusCancelled, "only draft or active auctions can be cancelled")
}

// transition applies a seller-initiated lifecycle move under the store's
// CAS discipline.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to domain.Status, denied string) {
	actor := r.Header.Get(userHeader)
	if actor == "" {
		respondError(w, http.StatusUnauthorized, "user identity is required")
		return
	}

	a, ok := h.loadAuction(w, r)
	if !ok {
		return
	}
	if a.SellerID != actor {
		respondError(w, http.StatusForbidden, "only the seller can manage this auction")
		return
	}
	if !domain.CanTransition(a.Status, to) {
		respondError(w, http.StatusBadRequest, denied)
		return
	}

	next := a.Clone()
	next.Status = to
	if to == domain.StatusActive {
		// Mirror the platform behavior: manual activation resets the clock
		// so the configured duration runs from now.
		d := a.EndTime.Sub(a.StartTime)
		next.StartTime = time.Now().UTC()
		next.EndTime = next.StartTime.Add(d)
	}

	if err := h.store.CompareAndUpdate(r.Context(), a.ID, a.Version, next, nil); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			respondError(w, http.StatusConflict, "auction changed concurrently, retry")
			return
		}
		h.log.WithError(err).WithField("auction_id", a.ID).Error("lifecycle transition failed")
		respondError(w, http.StatusInternalServerError, "failed to update auction")
		return
	}

	h.publishState(r, next)
	if to == domain.StatusCancelled && next.LeaderID != "" {
		h.notifier.Dispatch(r.Context(), notify.Notification{
			Kind:         notify.KindAuctionCancelled,
			UserID:       next.LeaderID,
			AuctionID:    next.ID,
			AuctionTitle: next.Title,
			Message:      "The auction " + next.Title + " was cancelled by the seller.",
		})
	}
	respondJSON(w, http.StatusOK, next)
}

// PlaceBid handles bid placement requests.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	var req domain.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BidderID == "" {
		req.BidderID = r.Header.Get(userHeader)
	}
	if req.BidderID == "" {
		respondError(w, http.StatusUnauthorized, "bidder identity is required")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "bid amount must be positive")
		return
	}

	result, err := h.engine.PlaceBid(r.Context(), auctionID, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, http.StatusNotFound, "auction not found")
		case errors.Is(err, domain.ErrContention):
			respondError(w, http.StatusConflict, "auction under contention, retry")
		default:
			if rej, ok := domain.AsRejection(err); ok {
				respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
					"error":  "bid rejected",
					"reason": string(rej.Reason),
				})
				return
			}
			h.log.WithError(err).WithField("auction_id", auctionID).Error("bid placement failed")
			respondError(w, http.StatusInternalServerError, "failed to place bid")
		}
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListBids returns the auction's bid history, most recent first.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	bids, err := h.store.Bids(r.Context(), auctionID, 100)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "auction not found")
			return
		}
		h.log.WithError(err).Error("failed to list bids")
		respondError(w, http.StatusInternalServerError, "failed to list bids")
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// LiveAuction returns the live view of an active auction only.
func (h *Handler) LiveAuction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAuction(w, r)
	if !ok {
		return
	}
	if a.Status != domain.StatusActive {
		respondError(w, http.StatusBadRequest, "this auction is not currently active")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handler) loadAuction(w http.ResponseWriter, r *http.Request) (*domain.Auction, bool) {
	auctionID := mux.Vars(r)["id"]
	a, err := h.store.Get(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "auction not found")
		} else {
			h.log.WithError(err).Error("failed to load auction")
			respondError(w, http.StatusInternalServerError, "failed to load auction")
		}
		return nil, false
	}
	return a, true
}

func (h *Handler) publishState(r *http.Request, a *domain.Auction) {
	ev := &domain.AuctionEvent{
		EventID:   uuid.New().String(),
		Kind:      domain.EventStateSnapshot,
		AuctionID: a.ID,
		Timestamp: time.Now().UTC(),
		Auction:   a,
	}
	if err := h.publisher.PublishAuctionEvent(r.Context(), ev); err != nil {
		h.log.WithError(err).WithField("auction_id", a.ID).Warn("failed to publish state event")
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// loggingMiddleware logs all HTTP requests.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}

// corsMiddleware adds CORS headers (for development).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+userHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
