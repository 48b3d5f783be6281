package simserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/history"
)

// OfferBook is an in-memory stand-in for the request/offer service, enough
// to resolve conversation metadata and accept partner offers in development.
type OfferBook struct {
	mu       sync.RWMutex
	requests map[string]history.Request
	offers   map[string][]history.Offer // requestID -> offers
}

func NewOfferBook() *OfferBook {
	return &OfferBook{
		requests: make(map[string]history.Request),
		offers:   make(map[string][]history.Offer),
	}
}

// SeedRequest registers a request so threads can resolve against it.
func (b *OfferBook) SeedRequest(req history.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[req.ID] = req
}

func (b *OfferBook) Request(id string) (history.Request, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	req, ok := b.requests[id]
	return req, ok
}

func (b *OfferBook) Offers(requestID string) []history.Offer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]history.Offer, len(b.offers[requestID]))
	copy(out, b.offers[requestID])
	return out
}

// AddOffer stores a draft with a server-assigned id and timestamp.
func (b *OfferBook) AddOffer(draft history.OfferDraft) history.Offer {
	offer := history.Offer{
		ID:          uuid.New().String(),
		RequestID:   draft.RequestID,
		PartnerID:   draft.PartnerID,
		PartnerName: draft.PartnerName,
		Price:       draft.Price,
		Status:      "pending",
		CreatedAt:   time.Now().UnixMilli(),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offers[draft.RequestID] = append(b.offers[draft.RequestID], offer)
	return offer
}
