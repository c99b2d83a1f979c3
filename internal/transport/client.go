// Package transport delivers collected batches to the research backend and
// fetches ad explanations from the platform endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// Client implements domain.Transport against the backend's batch ingest
// endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. apiKey may be empty for backends that
// do not require one.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send delivers one batch. A 401 or 403 means the backend no longer accepts
// this client and is mapped to domain.ErrTransportUnavailable so the queue
// stops retrying; every other failure is transient.
func (c *Client) Send(ctx context.Context, batch domain.Batch) error {
	if batch.Empty() {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/batches", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: backend rejected credentials (status %d)", domain.ErrTransportUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(respBody))
	}
}
