package main

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
)

type client struct {
	addr   string
	apiKey string
	http   *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.addr, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	hc := c.http
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return hc.Do(req)
}

func (c *client) exec(ctx context.Context, action string, args []json.RawMessage) (models.ExecResponse, error) {
	body, err := json.Marshal(models.ExecRequest{Action: action, Args: args})
	if err != nil {
		return models.ExecResponse{}, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/exec", bytes.NewReader(body))
	if err != nil {
		return models.ExecResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.ExecResponse{}, statusError(resp)
	}

	var res models.ExecResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return models.ExecResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

// getJSON copies an indented JSON response body to w.
func (c *client) getJSON(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
