/**
 * @description
 * This package provides a client for the recipient-service. The distribution
 * ledger only records amounts owed to recipients that service knows about, so
 * creation of a distribution checks existence here first.
 */
package recipientclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the recipient service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new recipient service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// RecipientExists reports whether the recipient is known to the recipient
// service and eligible to be owed payouts.
func (c *Client) RecipientExists(ctx context.Context, recipientType string, recipientID uuid.UUID) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("recipient service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/recipients/%s/%s", c.baseURL, recipientType, recipientID)

	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request to recipient service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("recipient service returned error status %d", resp.StatusCode)
	}
}
