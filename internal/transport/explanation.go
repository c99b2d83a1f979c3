package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// ExplanationClient implements domain.ExplanationFetcher against the
// platform's ad-preferences endpoint.
type ExplanationClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewExplanationClient creates an explanation fetcher.
func NewExplanationClient(endpoint string) *ExplanationClient {
	return &ExplanationClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// explanationResponse is the endpoint's answer. A populated Error field with
// a 200 status is how the platform reports unknown identifiers.
type explanationResponse struct {
	Error       string   `json:"error,omitempty"`
	Text        string   `json:"text"`
	Reasons     []string `json:"reasons"`
	Advertisers []string `json:"advertisers"`
}

// Fetch requests the explanation for one sponsored post. Unknown
// identifiers return (nil, nil): the ad simply has no explanation and that
// is not an error worth retrying.
func (c *ExplanationClient) Fetch(ctx context.Context, postID, adID, clientToken string) (*domain.ExplanationData, error) {
	form := url.Values{}
	form.Set("post_id", postID)
	form.Set("ad_id", adID)
	form.Set("client_token", clientToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("explanation endpoint error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed explanationResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if parsed.Error == "identifier_not_found" {
		return nil, nil
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("explanation endpoint error: %s", parsed.Error)
	}

	return &domain.ExplanationData{
		Text:        parsed.Text,
		Reasons:     parsed.Reasons,
		Advertisers: parsed.Advertisers,
	}, nil
}
