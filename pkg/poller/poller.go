// Package poller is a small Go client that waits for an order to settle by
// polling the order status endpoint. Stopping a wait never changes anything
// on the server; the order keeps its status and can be polled again later.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInterval is the pause between two polls.
	DefaultInterval = 3 * time.Second

	// DefaultMaxInterval caps the pause when Backoff is enabled.
	DefaultMaxInterval = 30 * time.Second

	statusPath = "/api/v1/orders/status"
)

// ErrTimeout is returned when MaxWait elapses before the order settles.
var ErrTimeout = errors.New("poller: order did not settle in time")

// Status is an order status as reported by the server.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Terminal reports whether the order will not change without intervention.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Options tunes WaitForCompletion.
type Options struct {
	// Interval is the pause between polls.
	// Default: 3 seconds
	Interval time.Duration

	// MaxWait bounds the whole wait. Zero waits until ctx is done.
	MaxWait time.Duration

	// Backoff grows the pause exponentially up to MaxInterval.
	Backoff     bool
	MaxInterval time.Duration

	// OnStatus, when set, is called after every successful poll.
	OnStatus func(found bool, status Status)
}

// Client polls one server on behalf of one buyer session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. token is the buyer's X-Token; httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type statusResponse struct {
	Success bool   `json:"success"`
	Found   bool   `json:"found"`
	Status  Status `json:"status"`
}

// CheckStatus asks the server once.
func (c *Client) CheckStatus(ctx context.Context, orderNumber string) (bool, Status, error) {
	u := c.baseURL + statusPath + "?orderNumber=" + url.QueryEscape(orderNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, "", err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("poller: status endpoint returned %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, "", fmt.Errorf("poller: decode status: %w", err)
	}
	if !body.Success {
		return false, "", fmt.Errorf("poller: status request was not successful")
	}
	return body.Found, body.Status, nil
}

func (o Options) backOff() backoff.BackOff {
	interval := o.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if !o.Backoff {
		return backoff.NewConstantBackOff(interval)
	}
	maxInterval := o.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
}

// WaitForCompletion polls until the order reaches a terminal status and
// returns it. Failed polls and "not found yet" answers are retried. It
// returns the last seen status with ErrTimeout once MaxWait elapses, or
// with ctx's error when ctx is done first.
func (c *Client) WaitForCompletion(ctx context.Context, orderNumber string, opts Options) (Status, error) {
	waitCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}

	bo := opts.backOff()
	var last Status
	for {
		found, status, err := c.CheckStatus(waitCtx, orderNumber)
		if err == nil {
			if found {
				last = status
			}
			if opts.OnStatus != nil {
				opts.OnStatus(found, status)
			}
			if found && status.Terminal() {
				return status, nil
			}
		}

		timer := time.NewTimer(bo.NextBackOff())
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, ErrTimeout
		}
	}
}
