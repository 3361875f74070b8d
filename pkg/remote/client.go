// pkg/remote/client.go

// Package remote is the HTTP gateway to the remote system's list/item
// resource model. It owns the wire format, maps transport failures to
// syncerr.ErrRemoteUnavailable and non-2xx responses to
// syncerr.ErrRemoteRejected, and treats 404 on delete-style calls as
// success (idempotent-delete convention).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

// API is the remote surface the sync engine depends on. *Client implements
// it; tests substitute fakes.
type API interface {
	CreateList(ctx context.Context, payload ListPayload) (*RemoteList, error)
	UpdateList(ctx context.Context, externalID, name string) error
	DeleteList(ctx context.Context, externalID string) error
	UpdateItem(ctx context.Context, listExternalID, itemExternalID, description string, completed bool) error
	DeleteItem(ctx context.Context, listExternalID, itemExternalID string) error
	FetchLists(ctx context.Context) ([]RemoteList, error)
}

// Config holds the client's deployment knobs.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the remote list API over HTTP/JSON. All calls are
// blocking; the per-request deadline comes from Config.Timeout and the
// caller's context, whichever is shorter. A circuit breaker fronts the
// remote so a dead endpoint trips fast instead of stalling every handler.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient builds a Client from config. Timeout defaults to 30s.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := zap.L().Named("remote")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "remote-api",
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// response is what a round trip yields once transport concerns are out of
// the way.
type response struct {
	status int
	body   []byte
}

// do runs one request through the breaker. Transport failures and 5xx
// responses count against the breaker; any status below 500 is a "working
// remote" as far as tripping is concerned.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, cerr.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(encoded)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, cerr.Wrap(err, "build request")
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, cerr.Wrapf(syncerr.ErrRemoteUnavailable, "%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, cerr.Wrapf(syncerr.ErrRemoteUnavailable, "%s %s: read body: %v", method, path, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, cerr.Wrapf(syncerr.ErrRemoteRejected, "%s %s: status %d: %s",
				method, path, resp.StatusCode, snippet(payload))
		}
		return &response{status: resp.StatusCode, body: payload}, nil
	})
	if err != nil {
		if cerr.Is(err, gobreaker.ErrOpenState) || cerr.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, cerr.Wrapf(syncerr.ErrRemoteUnavailable, "%s %s: circuit open", method, path)
		}
		return nil, err
	}

	resp := result.(*response)
	c.logger.Debug("Remote call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.status))
	return resp, nil
}

// CreateList pushes a local list (with its items bundled) to the remote
// system and returns the created remote record, including the remote ids
// assigned to each echoed item.
func (c *Client) CreateList(ctx context.Context, payload ListPayload) (*RemoteList, error) {
	if payload.Items == nil {
		payload.Items = []ItemPayload{}
	}
	resp, err := c.do(ctx, http.MethodPost, "/lists", payload)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusCreated && resp.status != http.StatusOK {
		return nil, rejectedf("POST /lists", resp)
	}
	var created RemoteList
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return nil, cerr.Wrap(err, "decode create list response")
	}
	if created.ID == "" {
		return nil, cerr.Wrapf(syncerr.ErrRemoteRejected, "POST /lists: response missing id")
	}
	return &created, nil
}

// UpdateList pushes a name change for an already-synced list.
func (c *Client) UpdateList(ctx context.Context, externalID, name string) error {
	path := fmt.Sprintf("/lists/%s", externalID)
	resp, err := c.do(ctx, http.MethodPatch, path, map[string]string{"name": name})
	if err != nil {
		return err
	}
	if !is2xx(resp.status) {
		return rejectedf("PATCH "+path, resp)
	}
	return nil
}

// DeleteList removes the remote list. A 404 means it is already gone, which
// is the outcome the caller wanted.
func (c *Client) DeleteList(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/lists/%s", externalID)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound || is2xx(resp.status) {
		return nil
	}
	return rejectedf("DELETE "+path, resp)
}

// UpdateItem pushes description/completed for an already-synced item,
// addressed by the (list, item) external id pair.
func (c *Client) UpdateItem(ctx context.Context, listExternalID, itemExternalID, description string, completed bool) error {
	path := fmt.Sprintf("/lists/%s/items/%s", listExternalID, itemExternalID)
	body := map[string]interface{}{"description": description, "completed": completed}
	resp, err := c.do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return err
	}
	if !is2xx(resp.status) {
		return rejectedf("PATCH "+path, resp)
	}
	return nil
}

// DeleteItem removes the remote item; 404 counts as success.
func (c *Client) DeleteItem(ctx context.Context, listExternalID, itemExternalID string) error {
	path := fmt.Sprintf("/lists/%s/items/%s", listExternalID, itemExternalID)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound || is2xx(resp.status) {
		return nil
	}
	return rejectedf("DELETE "+path, resp)
}

// FetchLists pulls the full remote snapshot, every list with its embedded
// items. The inbound reconciler runs on this.
func (c *Client) FetchLists(ctx context.Context) ([]RemoteList, error) {
	resp, err := c.do(ctx, http.MethodGet, "/lists", nil)
	if err != nil {
		return nil, err
	}
	if !is2xx(resp.status) {
		return nil, rejectedf("GET /lists", resp)
	}
	var lists []RemoteList
	if err := json.Unmarshal(resp.body, &lists); err != nil {
		return nil, cerr.Wrap(err, "decode lists snapshot")
	}
	return lists, nil
}

func is2xx(status int) bool { return status >= 200 && status < 300 }

func rejectedf(op string, resp *response) error {
	return cerr.Wrapf(syncerr.ErrRemoteRejected, "%s: status %d: %s", op, resp.status, snippet(resp.body))
}

// snippet trims a response body down to something loggable.
func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
