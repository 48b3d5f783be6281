package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Request is a service request (parts, mechanic, towing, rental) as returned
// by the request/offer service. Only the fields the chat core needs to
// resolve conversation metadata are decoded.
type Request struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	CreatedAt   any    `json:"createdAt"`
	Description string `json:"description,omitempty"`
}

// Offer is a partner's structured response to a request.
type Offer struct {
	ID          string  `json:"id"`
	RequestID   string  `json:"requestId"`
	PartnerID   string  `json:"partnerId"`
	PartnerName string  `json:"partnerName"`
	Price       float64 `json:"price"`
	Status      string  `json:"status"`
	CreatedAt   any     `json:"createdAt"`
}

// OfferDraft is the payload for creating a new offer.
type OfferDraft struct {
	RequestID   string  `json:"requestId"`
	PartnerID   string  `json:"partnerId"`
	PartnerName string  `json:"partnerName"`
	Price       float64 `json:"price"`
	Comment     string  `json:"comment,omitempty"`
}

// OffersClient talks to the request/offer REST service. It resolves
// counterparty and price metadata before a thread is opened; it owns none of
// the offer business rules.
type OffersClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewOffersClient(baseURL string, logger *zap.Logger) *OffersClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OffersClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

// GetRequestByID resolves one request.
func (c *OffersClient) GetRequestByID(ctx context.Context, id string) (*Request, error) {
	var out Request
	if err := c.getJSON(ctx, fmt.Sprintf("%s/requests/%s", c.baseURL, url.PathEscape(id)), &out); err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &out, nil
}

// GetOffers lists the offers submitted against a request.
func (c *OffersClient) GetOffers(ctx context.Context, requestID string) ([]Offer, error) {
	var out []Offer
	endpoint := fmt.Sprintf("%s/requests/%s/offers", c.baseURL, url.PathEscape(requestID))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("get offers for %s: %w", requestID, err)
	}
	return out, nil
}

// CreateOffer submits a partner offer.
func (c *OffersClient) CreateOffer(ctx context.Context, draft OfferDraft) (*Offer, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshal offer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/offers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create offer: service returned %d", resp.StatusCode)
	}

	var out Offer
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	c.logger.Info("offer created",
		zap.String("request", out.RequestID),
		zap.String("offer", out.ID),
	)
	return &out, nil
}

func (c *OffersClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
