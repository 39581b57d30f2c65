package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voucher-service/config"
	"voucher-service/internal/util"

	"go.uber.org/zap"
)

// CheckoutMetadata is the correlation bag embedded in the hosted checkout
// session. The gateway echoes it back in the payment event; transaction_id
// is the only field the pipeline interprets.
type CheckoutMetadata struct {
	TransactionID string `json:"transaction_id"`
	ProjectID     string `json:"project_id"`
	SalespersonID string `json:"salesperson_id"`
}

// Client talks to the hosted payment gateway. The protocol is opaque to the
// pipeline: one call in (create session), one verified event back out.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

type createSessionRequest struct {
	PriceRef      string           `json:"price_ref"`
	CustomerEmail string           `json:"customer_email"`
	Metadata      CheckoutMetadata `json:"metadata"`
	SuccessURL    string           `json:"success_url"`
	CancelURL     string           `json:"cancel_url"`
}

type createSessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession initiates a hosted checkout and returns the redirect URL
func (c *Client) CreateCheckoutSession(ctx context.Context, priceRef, customerEmail string, meta CheckoutMetadata, successURL, cancelURL string) (string, error) {
	body, err := json.Marshal(createSessionRequest{
		PriceRef:      priceRef,
		CustomerEmail: customerEmail,
		Metadata:      meta,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create checkout session: gateway returned %d", resp.StatusCode)
	}

	var session createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}

	c.logger.Info("Checkout session created",
		zap.String("transaction_id", meta.TransactionID))
	return session.URL, nil
}
