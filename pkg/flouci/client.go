/**
 * @description
 * Client for the Flouci payment gateway. Only the payment generation endpoint is
 * used: the payment service asks Flouci for a hosted payment session before it
 * records a donation.
 *
 * @dependencies
 * - github.com/shopspring/decimal: payment amounts.
 * - github.com/rs/zerolog: structured logging.
 */
package flouci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL            = "https://developers.flouci.com"
	DefaultSessionTimeoutSecs = 1200
	generatePaymentPath       = "/api/generate_payment"
	maxErrorBodyBytes         = 4096
)

// Config carries the merchant credentials and redirect links.
type Config struct {
	BaseURL             string
	AppToken            string
	AppSecret           string
	SuccessLink         string
	FailLink            string
	DeveloperTrackingID string
	SessionTimeoutSecs  int
}

// Client is a client for the Flouci API.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Flouci API client.
func NewClient(cfg Config, timeout time.Duration, logger zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SessionTimeoutSecs <= 0 {
		cfg.SessionTimeoutSecs = DefaultSessionTimeoutSecs
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "flouci_client").Logger(),
	}
}

// GeneratePaymentRequest is the body of POST /api/generate_payment.
type GeneratePaymentRequest struct {
	AppToken            string      `json:"app_token"`
	AppSecret           string      `json:"app_secret"`
	Amount              json.Number `json:"amount"`
	AcceptCard          bool        `json:"accept_card"`
	SessionTimeoutSecs  int         `json:"session_timeout_secs"`
	SuccessLink         string      `json:"success_link"`
	FailLink            string      `json:"fail_link"`
	DeveloperTrackingID string      `json:"developer_tracking_id"`
}

// GeneratePaymentResponse keeps the provider's raw body alongside the fields
// we read from it.
type GeneratePaymentResponse struct {
	Raw    json.RawMessage
	Result struct {
		Success   bool   `json:"success"`
		PaymentID string `json:"payment_id"`
		Link      string `json:"link"`
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flouci api error: status %d - %s", e.StatusCode, e.Body)
}

// GeneratePayment opens a payment session for amount.
func (c *Client) GeneratePayment(ctx context.Context, amount decimal.Decimal) (*GeneratePaymentResponse, error) {
	payload := GeneratePaymentRequest{
		AppToken:            c.cfg.AppToken,
		AppSecret:           c.cfg.AppSecret,
		Amount:              json.Number(amount.String()),
		AcceptCard:          true,
		SessionTimeoutSecs:  c.cfg.SessionTimeoutSecs,
		SuccessLink:         c.cfg.SuccessLink,
		FailLink:            c.cfg.FailLink,
		DeveloperTrackingID: c.cfg.DeveloperTrackingID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+generatePaymentPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("payment request failed")
		return nil, fmt.Errorf("failed to execute payment request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBodyBytes {
			text = text[:maxErrorBodyBytes]
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("body", text).Msg("payment generation rejected")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("failed to decode payment response: invalid json")
	}
	out := &GeneratePaymentResponse{Raw: json.RawMessage(respBody)}
	var decoded struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &decoded); err == nil && len(decoded.Result) > 0 {
		_ = json.Unmarshal(decoded.Result, &out.Result)
	}

	c.logger.Debug().Str("payment_id", out.Result.PaymentID).Msg("payment session generated")
	return out, nil
}
