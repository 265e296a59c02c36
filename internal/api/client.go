package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/auth"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
	"github.com/vogiaan1904/ticketbottle-queuesync/internal/notification"
	pkgErrors "github.com/vogiaan1904/ticketbottle-queuesync/pkg/errors"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "queuesync/1.0"
	maxErrorBody     = 4 << 10
)

// QueueFetcher loads queue snapshots from the backend.
type QueueFetcher interface {
	GetQueue(ctx context.Context, queueID string) (models.QueueSnapshot, error)
}

var (
	_ QueueFetcher               = (*Client)(nil)
	_ notification.RemoteService = (*Client)(nil)
)

// Client talks to the queue backend REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    auth.TokenSource
	userAgent string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(baseURL string, tokens auth.TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}

	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetQueue fetches GET /api/queues/{id}.
func (c *Client) GetQueue(ctx context.Context, queueID string) (models.QueueSnapshot, error) {
	if queueID == "" {
		return models.QueueSnapshot{}, fmt.Errorf("queue id required")
	}

	rel := &url.URL{
		Path:    "api/queues/" + queueID,
		RawPath: "api/queues/" + url.PathEscape(queueID),
	}

	var payload models.QueueSnapshot
	if err := c.do(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return models.QueueSnapshot{}, err
	}
	return payload, nil
}

type subscribeRequest struct {
	QueueID      string                          `json:"queueId"`
	Subscription models.PushSubscription         `json:"subscription"`
	Preferences  *models.NotificationPreferences `json:"preferences,omitempty"`
}

// SubscribeNotifications posts to /api/notifications/subscribe.
func (c *Client) SubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription, prefs models.NotificationPreferences) error {
	body := subscribeRequest{QueueID: queueID, Subscription: sub, Preferences: &prefs}
	return c.do(ctx, http.MethodPost, &url.URL{Path: "api/notifications/subscribe"}, body, nil)
}

// UnsubscribeNotifications posts to /api/notifications/unsubscribe.
func (c *Client) UnsubscribeNotifications(ctx context.Context, queueID string, sub models.PushSubscription) error {
	body := subscribeRequest{QueueID: queueID, Subscription: sub}
	return c.do(ctx, http.MethodPost, &url.URL{Path: "api/notifications/unsubscribe"}, body, nil)
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pkgErrors.NewHTTPError(resp.StatusCode, errorMessage(msg))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"message": "..."} or {"error": "..."} from an error body,
// falling back to the trimmed body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
