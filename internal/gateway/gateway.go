// internal/gateway/gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes one charge against the payment gateway. The
// idempotency key makes retried charges safe: the gateway deduplicates on it.
type ChargeRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethodID string          `json:"payment_method_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	Description     string          `json:"description,omitempty"`
}

type ChargeResult struct {
	Succeeded     bool   `json:"succeeded"`
	PaymentID     string `json:"payment_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PaymentGateway is the external charging collaborator. Tokenization, 3-D
// secure and reconciliation live behind it.
type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}

// Client talks to the gateway over HTTP with a bounded timeout. A timeout is
// reported as an error; callers count it as a failed attempt and the
// idempotency key protects the next retry from double-charging.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ChargeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &result, nil
}
