// Package workerclient is the worker-process side of the event queue
// protocol: long-poll for the next event, fetch its payload, report the
// outcome.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
)

// ErrShuttingDown is returned by Next when the scheduler releases the worker.
var ErrShuttingDown = errors.New("event queue is shutting down")

type Option func(*Client)

// WithMaxTries bounds the attempts per request on connection errors.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

type Client struct {
	baseURL  string
	workerID string
	http     *http.Client
	maxTries uint
	log      *zap.SugaredLogger
}

// New builds a client for the queue at addr, "host:port" or "unix:/path".
func New(addr, workerID string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	baseURL := "http://" + addr
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		var d net.Dialer
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "unix", path)
		}
		baseURL = "http://unix"
	}

	c := &Client{
		baseURL:  baseURL,
		workerID: workerID,
		// no timeout, Next is a long poll
		http:     &http.Client{Transport: transport},
		maxTries: 5,
		log:      zap.S().Named("worker_client").With("worker_id", workerID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv builds a client from the variables the runtime sets on workers.
func FromEnv(opts ...Option) (*Client, error) {
	addr, id := os.Getenv(runtime.EnvEnqueuerAddr), os.Getenv(runtime.EnvWorkerID)
	if addr == "" || id == "" {
		return nil, fmt.Errorf("%s and %s must be set", runtime.EnvEnqueuerAddr, runtime.EnvWorkerID)
	}
	return New(addr, id, opts...), nil
}

// Next blocks until the scheduler hands this worker an event.
func (c *Client) Next(ctx context.Context) (models.Event, error) {
	return retry(ctx, c, func() (models.Event, error) {
		var e models.Event
		resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workers/%s/next", c.workerID), nil)
		if err != nil {
			return e, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
				return e, backoff.Permanent(fmt.Errorf("failed to decode event: %w", err))
			}
			return e, nil
		case http.StatusServiceUnavailable:
			return e, backoff.Permanent(ErrShuttingDown)
		}
		return e, backoff.Permanent(statusError(resp))
	})
}

// Payload fetches the payload stored for the event by its sub-queue.
func (c *Client) Payload(ctx context.Context, e models.Event) (json.RawMessage, error) {
	return retry(ctx, c, func() (json.RawMessage, error) {
		resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/queues/%s/events/%s/payload", e.Type.Value(), e.ID), nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(statusError(resp))
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	})
}

func (c *Client) Complete(ctx context.Context, eventID string, success bool) error {
	body, err := json.Marshal(map[string]bool{"success": success})
	if err != nil {
		return err
	}
	_, err = retry(ctx, c, func() (struct{}, error) {
		resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/events/%s/complete", eventID), body)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			return struct{}{}, backoff.Permanent(statusError(resp))
		}
		return struct{}{}, nil
	})
	return err
}

// Serve runs fn for every event until ctx is done or the queue shuts down,
// which is not an error.
func (c *Client) Serve(ctx context.Context, fn func(ctx context.Context, e models.Event) error) error {
	for {
		e, err := c.Next(ctx)
		switch {
		case errors.Is(err, ErrShuttingDown):
			c.log.Info("released by the scheduler")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		runErr := fn(ctx, e)
		if runErr != nil {
			c.log.Warnw("function failed", "event_id", e.ID, "error", runErr)
		}
		if err := c.Complete(ctx, e.ID, runErr == nil); err != nil {
			return fmt.Errorf("failed to report completion of %s: %w", e.ID, err)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.log.Debugw("retrying request", "error", err, "in", d)
		}),
	)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
