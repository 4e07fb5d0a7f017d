/**
 * @description
 * This package provides a client for the chain-resolver service, which maps a
 * recipient to the blockchain network its payouts are expected to settle on.
 * The settlement reconciler uses the answer to verify reported settlements.
 */
package chainresolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable marks transport and server-side failures; callers treat the
// lookup as retryable rather than failing the distribution.
var ErrUnavailable = errors.New("chain resolver unavailable")

// Client is a client for the chain-resolver service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new chain-resolver client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type networkResponse struct {
	Network string `json:"network"`
}

// ExpectedNetwork returns the network identifier the recipient's payouts
// settle on, or an empty string when the recipient has no configured chain.
func (c *Client) ExpectedNetwork(ctx context.Context, recipientType string, recipientID uuid.UUID) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: base url is empty", ErrUnavailable)
	}

	url := fmt.Sprintf("%s/internal/recipients/%s/%s/network", c.baseURL, recipientType, recipientID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Recipient has no configured chain; verification is skipped.
		return "", nil
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("chain resolver returned error status %d", resp.StatusCode)
	}

	var response networkResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return strings.TrimSpace(response.Network), nil
}
