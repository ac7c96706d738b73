// Package payment reaches the external payment provider to create hosted
// payment links. The provider reports capture through the events surface,
// echoing the wait token the link was created with.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Client is the narrow contract the payment step consumes
	Client interface {
		// CreateLink provisions a hosted payment link tied to the wait
		// token the provider echoes back on capture
		CreateLink(ctx context.Context, req *LinkRequest) (*Link, error)
	}

	// LinkRequest describes one payment link to provision
	LinkRequest struct {
		UserID      api.UserID `json:"user_id"`
		Token       api.Token  `json:"token"`
		SKU         string     `json:"sku"`
		Description string     `json:"description"`
		AmountMinor int64      `json:"amount_minor"`
		Currency    string     `json:"currency"`
		CallbackURL string     `json:"callback_url"`
	}

	// Link is a provisioned payment link
	Link struct {
		URL       string    `json:"url"`
		Reference string    `json:"reference"`
		ExpiresAt time.Time `json:"expires_at,omitempty"`
	}

	// HTTPClient talks JSON over HTTP to the payment provider
	HTTPClient struct {
		httpClient *http.Client
		endpoint   string
		apiKey     string
	}
)

var (
	ErrHTTPError    = errors.New("payment provider returned HTTP error")
	ErrMissingToken = errors.New("payment link requires a wait token")
	ErrEmptyLink    = errors.New("payment provider returned no link URL")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a payment provider client from service settings
func NewHTTPClient(cfg config.ServiceConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
}

// CreateLink provisions a hosted payment link
func (c *HTTPClient) CreateLink(
	ctx context.Context, req *LinkRequest,
) (*Link, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("Payment link request failed",
			slog.String("token", string(req.Token)),
			slog.Duration("duration", dur),
			slog.Any("error", err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusCreated {
		slog.Error("Payment provider HTTP error",
			slog.String("token", string(req.Token)),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	var link Link
	if err := json.Unmarshal(respBody, &link); err != nil {
		return nil, err
	}
	if link.URL == "" {
		return nil, ErrEmptyLink
	}
	return &link, nil
}
