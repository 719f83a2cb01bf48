// Package peer implements outbound HTTP to sibling parties, authenticated
// with a shared bearer token and retried with exponential backoff. Every
// attempt is instrumented through internal/telemetry, and outbound calls to
// a single destination party are rate-limited independently of calls to any
// other party.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"petnet-coordinator/internal/telemetry"
)

// Error is a normalized peer-call error.
type Error struct {
	Party   string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("peer %s: %s", e.Party, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("peer %s: %s", e.Party, e.Err.Error())
	}
	return fmt.Sprintf("peer %s: unknown error", e.Party)
}

func (e *Error) Unwrap() error { return e.Err }

// Client dispatches submit/rerun/cancel/update_task calls to sibling parties.
type Client struct {
	http    *http.Client
	cfg     PartyConfig
	token   string
	mu      sync.Mutex
	limiter map[string]*rate.Limiter
}

// NewClient returns a Client configured from cfg, authenticating outbound
// calls with token (the shared bearer configured via JWT_TOKEN).
func NewClient(cfg PartyConfig, token string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.ResponseHeaderTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = time.Second
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 10
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second

	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second, Transport: transport},
		cfg:     cfg,
		token:   token,
		limiter: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns (creating if needed) the per-party rate limiter that
// caps outbound call rate to a single peer.
func (c *Client) limiterFor(party string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiter[party]
	if !ok {
		l = rate.NewLimiter(rate.Limit(20), 20)
		c.limiter[party] = l
	}
	return l
}

type envelope struct {
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message"`
	JobID        string          `json:"job_id,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// do POSTs/PATCHes body to path on the named party's address, retrying up
// to 3x on network failure / HTTP 5xx / empty body (204), with exponential
// backoff 1ms, 2ms, 4ms. success=false in the response envelope is a
// terminal error (no retry).
func (c *Client) do(ctx context.Context, method, party, path string, body any) (*envelope, error) {
	entry, ok := c.cfg[party]
	if !ok {
		return nil, &Error{Party: party, Message: "unknown party: no address configured"}
	}

	if err := c.limiterFor(party).Wait(ctx); err != nil {
		return nil, &Error{Party: party, Err: err}
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = b
	}

	url := entry.Address + path
	backoff := time.Millisecond

	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		for k, v := range entry.Headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		dur := time.Since(start)
		fields := map[string]string{
			"party":       party,
			"method":      method,
			"path":        path,
			"attempt":     strconv.Itoa(attempt + 1),
			"duration_ms": strconv.FormatInt(dur.Milliseconds(), 10),
		}
		if err != nil {
			fields["status"] = "error"
			telemetry.Event("peer_request", fields)
			lastErr = &Error{Party: party, Err: err}
			if attempt < 3 {
				time.Sleep(backoff)
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		fields["status"] = strconv.Itoa(resp.StatusCode)
		telemetry.Event("peer_request", fields)

		if resp.StatusCode == http.StatusNoContent || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &Error{Party: party, Status: resp.StatusCode, Message: "transient peer error"}
			if attempt < 3 {
				time.Sleep(backoff)
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, &Error{Party: party, Status: resp.StatusCode, Message: "malformed peer response"}
		}
		env.Raw = b

		if !env.Success {
			telemetry.Event("peer_result", map[string]string{"party": party, "outcome": "rejected"})
			return nil, &Error{Party: party, Status: resp.StatusCode, Message: env.ErrorMessage}
		}
		telemetry.Event("peer_result", map[string]string{"party": party, "outcome": "success"})
		return &env, nil
	}
	return nil, lastErr
}

// Submit relays job submission params to a join party.
func (c *Client) Submit(ctx context.Context, party string, params map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, party, "/api/v1/jobs", params)
	return err
}

// Rerun relays a rerun request to a party.
func (c *Client) Rerun(ctx context.Context, party, jobID string) error {
	_, err := c.do(ctx, http.MethodPost, party, "/api/v1/jobs/"+jobID+"/rerun", nil)
	return err
}

// Cancel relays a cancel request to a party.
func (c *Client) Cancel(ctx context.Context, party, jobID string) error {
	_, err := c.do(ctx, http.MethodPost, party, "/api/v1/jobs/"+jobID+"/cancel", nil)
	return err
}

// UpdateTaskPayload mirrors the PATCH /api/v1/tasks/<job>/<task> body.
type UpdateTaskPayload struct {
	TaskStatus string         `json:"task_status"`
	JobContext map[string]any `json:"job_context,omitempty"`
	Errors     string         `json:"errors,omitempty"`
}

// UpdateTask relays a task status transition to a party that mirrors it.
func (c *Client) UpdateTask(ctx context.Context, party, jobID, taskName string, payload UpdateTaskPayload) error {
	_, err := c.do(ctx, http.MethodPatch, party, "/api/v1/tasks/"+jobID+"/"+taskName, payload)
	return err
}
