// Package telegram is a minimal Bot API client for posting photos to a channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/deusflow/newsharvest/internal/retry"
)

const (
	DefaultBaseURL  = "https://api.telegram.org"
	ParseMarkdownV2 = "MarkdownV2"
)

// APIError is a non-2xx answer of the Bot API.
type APIError struct {
	StatusCode  int
	Description string
	RetryAfter  int // seconds, set on 429
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram API error: status %d: %s", e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	retry   retry.RetryConfig
	logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(token string, rc retry.RetryConfig, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   rc,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendPhoto posts a photo by URL with a caption. Rate limiting and server
// errors are retried; other API errors are returned at once.
func (c *Client) SendPhoto(ctx context.Context, chatID, photoURL, caption, parseMode string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
		"caption": caption,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	attempt := 0
	return retry.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		err := c.call(ctx, "sendPhoto", payload)
		if err != nil {
			c.logger.Warn("Telegram sendPhoto failed", "attempt", attempt, "error", err)
		}
		return err
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to marshal %s payload: %w", method, err))
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the token, keep it out of logs.
		return fmt.Errorf("telegram %s request failed: %w", method, stripURL(err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var parsed apiResponse
	if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(raw, &parsed) == nil {
		apiErr.Description = parsed.Description
		if parsed.Parameters != nil {
			apiErr.RetryAfter = parsed.Parameters.RetryAfter
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.After(apiErr, time.Duration(apiErr.RetryAfter)*time.Second)
	}
	if resp.StatusCode >= 500 {
		return apiErr
	}
	return retry.Permanent(apiErr)
}

func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
