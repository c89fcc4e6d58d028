// Package backend is the HTTP client for the remote gate service that owns
// the actual entry/exit business logic.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	entryPath = "/api/v1/qr/allow-entry"
	exitPath  = "/api/v1/qr/exit"
)

type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		Base: base,
		HTTP: &http.Client{Timeout: timeout},
	}
}

// Payload is the wire body for both endpoints. Data carries the shift+base64
// token, OriginalData the raw scanned text, Timestamp the client-side RFC3339
// time of the submission.
type Payload struct {
	Data         string `json:"data"`
	OriginalData string `json:"originalData"`
	Timestamp    string `json:"timestamp"`
}

// APIError is a non-2xx answer from the backend. Message is taken from the
// JSON error body when one is present, otherwise the HTTP status text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

// AllowEntry records an entry for the scanned code.
func (c *Client) AllowEntry(ctx context.Context, p Payload) ([]byte, error) {
	return c.post(ctx, entryPath, p)
}

// Exit records an exit for the scanned code.
func (c *Client) Exit(ctx context.Context, p Payload) ([]byte, error) {
	return c.post(ctx, exitPath, p)
}

func (c *Client) post(ctx context.Context, p string, body any) ([]byte, error) {
	u, err := url.Parse(c.Base)
	if err != nil {
		return nil, fmt.Errorf("bad base url %q: %w", c.Base, err)
	}
	u.Path = path.Join(u.Path, p)

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		var errBody struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Message != "" {
			msg = errBody.Message
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}
