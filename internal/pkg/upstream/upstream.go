package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nusapay/qrisgate/internal/pkg/env"
)

// Credit direction as reported by the upstream mutation feed.
const (
	StatusIn  = "IN"
	StatusOut = "OUT"
)

// ErrUnavailable wraps transport and non-2xx failures. Callers treat it as
// retryable; the invoice in question stays pending.
var ErrUnavailable = errors.New("upstream: unavailable")

// Credit is one entry of a principal's recent mutation history.
type Credit struct {
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Fetcher retrieves the recent credit history for an upstream principal.
// Implementations own all transport details.
type Fetcher interface {
	FetchCredits(ctx context.Context, principal, token string) ([]Credit, error)
}

// Client talks to the upstream account-mutation API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClientFromEnv builds the client with its timeout and base URL from the
// environment.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(env.GetEnv("UPSTREAM_BASE_URL", "https://api.mutasi-bank.example"), "/"),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		},
	}
}

type mutationRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type mutationResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Amount    json.RawMessage `json:"amount"`
		Status    string          `json:"status"`
		Reference string          `json:"reference"`
		Timestamp string          `json:"timestamp"`
	} `json:"data"`
}

// FetchCredits posts the principal's credentials to the mutation endpoint and
// normalizes the reply. The result is deterministic for a given response
// body; entries come back in upstream order.
func (c *Client) FetchCredits(ctx context.Context, principal, token string) ([]Credit, error) {
	body, err := json.Marshal(mutationRequest{Username: principal, Token: token})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/mutations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}

	var out mutationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: upstream rejected request", ErrUnavailable)
	}

	credits := make([]Credit, 0, len(out.Data))
	for _, d := range out.Data {
		// Amounts arrive as JSON numbers or numeric strings; an entry whose
		// amount is neither is skipped.
		amount, err := json.Number(strings.Trim(string(d.Amount), `"`)).Int64()
		if err != nil {
			continue
		}
		credits = append(credits, Credit{
			Amount:    amount,
			Status:    strings.ToUpper(d.Status),
			Reference: d.Reference,
			Timestamp: d.Timestamp,
		})
	}
	return credits, nil
}
