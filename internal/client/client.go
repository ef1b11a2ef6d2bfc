// Package client provides a Go client for the metric tables API. It keeps a
// local mirror of one table document, applies mutations optimistically and
// reconciles with the server's authoritative state on every response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/table"
)

// ErrNotLoaded is returned when a mirror operation runs before Load.
var ErrNotLoaded = errors.New("client: no table loaded")

// Client mirrors one metric table from the API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu     sync.Mutex
	mirror *metric.Metric
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given API base URL (e.g. "http://host:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the table and replaces the local mirror.
func (c *Client) Load(ctx context.Context, metricID string) error {
	m, err := c.fetch(ctx, metricID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.mirror = m
	c.mu.Unlock()
	return nil
}

// Refresh re-fetches the currently loaded table.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.mirror == nil {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	id := c.mirror.ID
	c.mu.Unlock()
	return c.Load(ctx, id)
}

// Metric returns a copy of the mirrored table.
func (c *Client) Metric() (metric.Metric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return metric.Metric{}, ErrNotLoaded
	}
	cp := *c.mirror
	cp.Document = c.mirror.Document.Clone()
	return cp, nil
}

// Version returns the mirrored table's version, or 0 when nothing is loaded.
func (c *Client) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return 0
	}
	return c.mirror.Version
}

// Totals computes the per-column yearly sums from the local mirror, without
// a round trip.
func (c *Client) Totals() (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return nil, ErrNotLoaded
	}
	return c.mirror.Document.Totals(), nil
}

// Apply applies one mutation to the local mirror and sends it to the server.
//
// The mirror is updated optimistically before the request goes out, so UI
// reads see the change immediately. The server response is authoritative:
// on success the mirror adopts the returned state; on a rejection (invalid
// operation, permission) the mirror reverts; on a version conflict or a
// transport failure the mirror is re-fetched so it cannot drift.
func (c *Client) Apply(ctx context.Context, op table.Operation) error {
	c.mu.Lock()
	if c.mirror == nil {
		c.mu.Unlock()
		return ErrNotLoaded
	}

	prevDoc := c.mirror.Document
	prevName := c.mirror.TableName
	next, err := table.Apply(prevDoc, op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mirror.Document = next
	if rename, ok := op.(table.SetTableName); ok {
		c.mirror.TableName = rename.TableName
	}
	id := c.mirror.ID
	c.mu.Unlock()

	body, err := table.EncodeOperation(op)
	if err != nil {
		c.revert(prevDoc, prevName)
		return fmt.Errorf("encode operation: %w", err)
	}

	updated, err := c.post(ctx, "/api/v1/metrics/"+id+"/operations", body)
	switch {
	case err == nil:
		c.adopt(updated)
		return nil
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrPermission):
		c.revert(prevDoc, prevName)
		return err
	default:
		// Conflict or transport failure: local state is unknown, resync.
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			c.revert(prevDoc, prevName)
		}
		return err
	}
}

// Submit flips the mirrored table to the submitted state.
func (c *Client) Submit(ctx context.Context) error {
	return c.lifecycle(ctx, "submit")
}

// Unsubmit resets the mirrored table back to draft.
func (c *Client) Unsubmit(ctx context.Context) error {
	return c.lifecycle(ctx, "unsubmit")
}

func (c *Client) lifecycle(ctx context.Context, action string) error {
	c.mu.Lock()
	if c.mirror == nil {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	id := c.mirror.ID
	c.mu.Unlock()

	updated, err := c.post(ctx, "/api/v1/metrics/"+id+"/"+action, nil)
	if err != nil {
		return err
	}
	c.adopt(updated)
	return nil
}

// HandleEvent feeds a pushed table event into the client. When the event
// targets the mirrored table and carries a newer version, the mirror is
// re-fetched. Returns true when a refresh happened.
func (c *Client) HandleEvent(ctx context.Context, metricID string, version int) (bool, error) {
	c.mu.Lock()
	stale := c.mirror != nil && c.mirror.ID == metricID && version > c.mirror.Version
	c.mu.Unlock()

	if !stale {
		return false, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) adopt(m *metric.Metric) {
	c.mu.Lock()
	c.mirror = m
	c.mu.Unlock()
}

// revert restores the optimistic edit, table name included, after a
// server rejection.
func (c *Client) revert(doc *table.Document, name string) {
	c.mu.Lock()
	if c.mirror != nil {
		c.mirror.Document = doc
		c.mirror.TableName = name
	}
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, metricID string) (*metric.Metric, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/metrics/"+metricID, nil)
	if err != nil {
		return nil, err
	}
	return decodeMetric(data)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*metric.Metric, error) {
	data, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return decodeMetric(data)
}

func decodeMetric(data []byte) (*metric.Metric, error) {
	var m metric.Metric
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metric: %w", err)
	}
	if m.Document == nil {
		m.Document = table.NewDocument()
	}
	m.Document.Normalize()
	return &m, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

// apiError maps HTTP status codes back to the domain sentinels so callers
// can use errors.Is regardless of which side of the wire they are on.
func apiError(status int, body []byte) error {
	var er struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		msg = er.Error
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, domain.ErrConflict)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, domain.ErrValidation)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, domain.ErrPermission)
	default:
		return fmt.Errorf("api error %d: %s", status, msg)
	}
}
