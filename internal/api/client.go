// Package api talks to the remote events backend over its four REST
// operations: list, create, update and delete.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "evsched/internal/log"
	"evsched/internal/model"
)

// Operation names used in RemoteError and logs.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// RemoteError is a transport failure or a non-200 response.
type RemoteError struct {
	Op         string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Client is an HTTP client for the events backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a Client for the backend at baseURL. timeout bounds each
// request; zero means 15 seconds.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Data []model.Event `json:"data"`
}

type deleteResponse struct {
	Message string `json:"message"`
}

// ListEvents fetches every event (GET /events).
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	body, err := c.do(ctx, OpList, http.MethodGet, "/events", nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &RemoteError{Op: OpList, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Data == nil {
		resp.Data = []model.Event{}
	}
	return resp.Data, nil
}

// CreateEvent submits a new event (POST /new_event).
func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) error {
	_, err := c.do(ctx, OpCreate, http.MethodPost, "/new_event", in)
	return err
}

// UpdateEvent replaces the fields of an event (PUT /update_event/{id}).
func (c *Client) UpdateEvent(ctx context.Context, id string, in model.EventInput) error {
	if id == "" {
		return &RemoteError{Op: OpUpdate, Err: errors.New("event id is empty")}
	}
	_, err := c.do(ctx, OpUpdate, http.MethodPut, "/update_event/"+url.PathEscape(id), in)
	return err
}

// DeleteEvent removes an event (DELETE /delete_event/{id}) and returns the
// confirmation message from the server.
func (c *Client) DeleteEvent(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", &RemoteError{Op: OpDelete, Err: errors.New("event id is empty")}
	}
	body, err := c.do(ctx, OpDelete, http.MethodDelete, "/delete_event/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}

	var resp deleteResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &RemoteError{Op: OpDelete, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp.Message, nil
}

// do performs one request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &RemoteError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		appLog.Error("api request failed", err, "op", op, "url", appLog.RedactURL(target))
		return nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	appLog.Debug("api request done",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return body, nil
}
