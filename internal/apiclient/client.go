// Package apiclient talks to a running vidpipe daemon over its HTTP API.
package apiclient

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
	"strconv"
	"strings"

	"vidpipe/internal/jobs"
	"vidpipe/internal/provider"
	"vidpipe/internal/server"
)

// ErrAPIUnavailable reports a daemon that is not reachable.
var ErrAPIUnavailable = errors.New("vidpipe API unavailable")

// Client issues API requests against one daemon.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       server.ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	if e.Body.Kind != "" {
		return fmt.Sprintf("api returned status %d (%s): %s", e.StatusCode, e.Body.Kind, e.Body.Error)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Body.Error)
}

// LogQuery filters the log long-poll.
type LogQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	Component string
	JobID     string
}

// New builds a client for bind, which may omit the scheme.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
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
		// No timeout: follow mode blocks until the caller cancels.
		http: &http.Client{},
	}, nil
}

// Submit starts a job and returns its id.
func (c *Client) Submit(ctx context.Context, req server.JobRequest) (server.JobCreated, error) {
	var out server.JobCreated
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out, err
}

// ListJobs returns jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status string, limit int) ([]jobs.Record, error) {
	values := url.Values{}
	if status = strings.TrimSpace(status); status != "" {
		values.Set("status", status)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out server.JobList
	err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &out)
	return out.Jobs, err
}

// GetJob returns one job record.
func (c *Client) GetJob(ctx context.Context, id string) (jobs.Record, error) {
	var out jobs.Record
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(ctx context.Context, id string) (jobs.Record, error) {
	var out jobs.Record
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Backends returns router backend status.
func (c *Client) Backends(ctx context.Context) ([]provider.BackendStatus, error) {
	var out server.BackendList
	err := c.do(ctx, http.MethodGet, "/api/backends", nil, nil, &out)
	return out.Backends, err
}

// ResetBackend marks a backend available again.
func (c *Client) ResetBackend(ctx context.Context, id string) (provider.BackendStatus, error) {
	var out provider.BackendStatus
	err := c.do(ctx, http.MethodPost, "/api/backends/"+url.PathEscape(id)+"/reset", nil, nil, &out)
	return out, err
}

// Quota returns the quota windows and per-backend usage.
func (c *Client) Quota(ctx context.Context) (server.QuotaView, error) {
	var out server.QuotaView
	err := c.do(ctx, http.MethodGet, "/api/quota", nil, nil, &out)
	return out, err
}

// Logs fetches one page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (server.LogResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if strings.TrimSpace(q.Component) != "" {
		values.Set("component", q.Component)
	}
	if strings.TrimSpace(q.JobID) != "" {
		values.Set("job", q.JobID)
	}
	var out server.LogResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
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
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&statusErr.Body)
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
