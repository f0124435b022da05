package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"herald/internal/history"
	"herald/internal/queue"
)

var (
	// ErrUnavailable is returned by a nil client and by connection failures.
	ErrUnavailable = errors.New("daemon API unavailable")
	// ErrUnauthorized is returned when the daemon rejects the bearer token.
	ErrUnauthorized = errors.New("daemon API rejected the token")
)

const defaultTimeout = 30 * time.Second

// Client talks to the daemon's admin API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient returns a client for bind, which may be host:port or a full URL.
// An empty bind yields a nil client.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Health pings the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

// List returns posts, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...queue.Status) ([]queue.Post, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", string(status))
	}
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get returns one post.
func (c *Client) Get(ctx context.Context, id string) (queue.Post, error) {
	var resp QueueItemResponse
	err := c.do(ctx, http.MethodGet, postPath(id, ""), nil, nil, &resp)
	return resp.Item, err
}

// Add queues a new pending post and returns its id.
func (c *Client) Add(ctx context.Context, draft queue.Draft) (string, error) {
	var resp AddPostResponse
	err := c.do(ctx, http.MethodPost, "/api/queue", nil, draft, &resp)
	return resp.ID, err
}

// Approve moves a pending post to approved.
func (c *Client) Approve(ctx context.Context, id string) (bool, error) {
	return c.action(ctx, id, "approve", nil)
}

// Reject removes a pending or approved post.
func (c *Client) Reject(ctx context.Context, id string) (bool, error) {
	return c.action(ctx, id, "reject", nil)
}

// Schedule sets a new scheduled time.
func (c *Client) Schedule(ctx context.Context, id string, at time.Time) (bool, error) {
	return c.action(ctx, id, "schedule", ScheduleRequest{ScheduledTime: at})
}

// PublishNow publishes an approved post immediately.
func (c *Client) PublishNow(ctx context.Context, id string) (queue.Post, error) {
	var resp QueueItemResponse
	err := c.do(ctx, http.MethodPost, postPath(id, "publish"), nil, nil, &resp)
	return resp.Item, err
}

// Stats returns counts by status.
func (c *Client) Stats(ctx context.Context) (queue.Stats, error) {
	var resp queue.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &resp)
	return resp, err
}

// History returns the ledger rows for one post.
func (c *Client) History(ctx context.Context, id string) ([]history.Attempt, error) {
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attempts, nil
}

func (c *Client) action(ctx context.Context, id, verb string, body any) (bool, error) {
	var resp ActionResponse
	if err := c.do(ctx, http.MethodPost, postPath(id, verb), nil, body, &resp); err != nil {
		return false, err
	}
	return resp.Changed, nil
}

func postPath(id, verb string) string {
	path := "/api/queue/" + url.PathEscape(id)
	if verb != "" {
		path += "/" + verb
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrUnavailable
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	if payload.Error == "" {
		payload.Error = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w (%s)", queue.ErrNotFound, payload.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w (%s)", queue.ErrInvalidTransition, payload.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w (%s)", queue.ErrInvalidInput, payload.Error)
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("daemon API returned status %d: %s", resp.StatusCode, payload.Error)
	}
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
