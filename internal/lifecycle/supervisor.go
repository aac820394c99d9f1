package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

// SupervisorConfig is what the supervisor tells the shell at start-up.
type SupervisorConfig struct {
	GraceSeconds int    `json:"grace_seconds"`
	EventsURL    string `json:"events_url,omitempty"`
}

type beginTaskRequest struct {
	Name string `json:"name"`
}

// TaskGrant is the supervisor's answer to a background-task request.
type TaskGrant struct {
	ID           string `json:"id"`
	GraceSeconds int    `json:"grace_seconds"`
}

// SupervisorClient talks to the process supervisor over HTTP.
type SupervisorClient struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*SupervisorClient)

func WithTimeout(d time.Duration) Option {
	return func(c *SupervisorClient) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *SupervisorClient) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *SupervisorClient) { c.retryMax = max }
}

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *SupervisorClient) { c.http.Dial = dial }
}

func NewSupervisorClient(baseURL string, opts ...Option) *SupervisorClient {
	c := &SupervisorClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SupervisorClient) GetConfig(ctx context.Context) (*SupervisorConfig, error) {
	var cfg SupervisorConfig
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/config", nil, &cfg, true); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BeginTask is not retried: a repeated POST could open a second task.
func (c *SupervisorClient) BeginTask(ctx context.Context, name string) (*TaskGrant, error) {
	var grant TaskGrant
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/background-tasks", beginTaskRequest{Name: name}, &grant, false); err != nil {
		return nil, err
	}
	if grant.ID == "" {
		return nil, errors.New("supervisor returned an empty task id")
	}
	return &grant, nil
}

// EndTask ends a task. A task the supervisor no longer knows counts as ended.
func (c *SupervisorClient) EndTask(ctx context.Context, id string) error {
	err := c.doJSON(ctx, fasthttp.MethodDelete, "/background-tasks/"+url.PathEscape(id), nil, nil, true)
	var se *StatusError
	if errors.As(err, &se) && se.Status == fasthttp.StatusNotFound {
		return nil
	}
	return err
}

// StatusError is a non-2xx supervisor response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supervisor api error: status=%d body=%s", e.Status, e.Body)
}

func (c *SupervisorClient) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func (c *SupervisorClient) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
