// Package imaging asks an external service to re-host article images and
// writes the new locations back to storage.
package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deusflow/newsharvest/internal/retry"
)

// ErrTransport is returned when the endpoint cannot be reached or answers non-2xx.
var ErrTransport = errors.New("image endpoint request failed")

type Item struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ResultData struct {
	ArticleID int64  `json:"articleId"`
	OldImage  string `json:"oldImage"`
	NewImage  string `json:"newImage"`
	SavedPath string `json:"savedPath"`
}

type Result struct {
	ID      int64       `json:"id"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    *ResultData `json:"data,omitempty"`
}

type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Summary Summary  `json:"summary"`
	Results []Result `json:"results"`
}

type Client struct {
	url   string
	token string
	http  *http.Client
	retry retry.RetryConfig
}

func NewClient(url, token string, timeout time.Duration, rc retry.RetryConfig) *Client {
	return &Client{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: timeout},
		retry: rc,
	}
}

// Process posts items in one batch. Server errors are retried, client errors are not.
func (c *Client) Process(ctx context.Context, items []Item) (*Response, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image batch: %w", err)
	}

	var out Response
	err = retry.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		defer resp.Body.Close()

		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, bytes.TrimSpace(payload))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		out = Response{}
		if err := json.Unmarshal(payload, &out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode image response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
