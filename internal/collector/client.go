// Package collector delivers hits to an event ingestion service over HTTP.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PratikDhanave/tagbridge/internal/models"
	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// Client posts each hit to <BaseURL>/events. The hit id is sent as the
// Idempotency-Key, so a batch retried after a partial failure is not
// double counted by the collector.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New builds a client with a bounded HTTP timeout.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SendHits posts hits in order and stops at the first failure.
func (c *Client) SendHits(ctx context.Context, hits []tm.Hit) error {
	for _, h := range hits {
		if err := c.send(ctx, h); err != nil {
			return fmt.Errorf("send hit %s: %w", h.ID, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, h tm.Hit) error {
	props := map[string]interface{}{
		"tag":               h.Tag,
		"container_id":      h.ContainerID,
		"container_version": h.ContainerVersion,
		"payload":           h.Payload,
	}
	if h.TagType != "" {
		props["tag_type"] = h.TagType
	}
	body, err := json.Marshal(models.EventIngestRequest{
		EventID:    h.ID,
		EventName:  h.Event,
		Timestamp:  h.Timestamp.UTC().Format(time.RFC3339),
		Properties: props,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", h.ID)
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
