// Package memoryclient is the HTTP client for the external vector+keyword
// episodic-memory service: per-narrative episode
// storage and semantic retrieval, consulted by ChatModule's long-term
// memory track before falling back to DB-stored per-instance memory.
package memoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentctx/platform/internal/config"
	"github.com/agentctx/platform/internal/httpclient"
)

// Episode is one stored turn pair the memory service indexes.
type Episode struct {
	NarrativeID string    `json:"narrative_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client talks to the episodic-memory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *httpclient.Client
}

func New(cfg config.MemoryConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   httpclient.New(httpclient.WithMaxRetries(2), httpclient.WithBaseDelay(200*time.Millisecond)),
	}
}

// Store appends one episode to the narrative's memory stream.
func (c *Client) Store(ctx context.Context, ep Episode) error {
	body, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("memoryclient: encode episode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/episodes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("memoryclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.retry.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memoryclient: store returned %d", resp.StatusCode)
	}
	return nil
}

// Recall returns the episodes semantically relevant to narrativeID,
// capped at limit, newest-first (ChatModule's long-term track). A
// non-nil error means the service could not be reached and
// ChatModule must fall back to DB-stored memory.
func (c *Client) Recall(ctx context.Context, narrativeID, query string, limit int) ([]Episode, error) {
	body, err := json.Marshal(map[string]any{"narrative_id": narrativeID, "query": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("memoryclient: encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recall", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("memoryclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("memoryclient: recall returned %d", resp.StatusCode)
	}
	var out struct {
		Episodes []Episode `json:"episodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("memoryclient: decode recall response: %w", err)
	}
	return out.Episodes, nil
}
