// Package client talks to a running tracker server the way the UI does,
// including its retry policy for the first state fetch.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/config"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/ports"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client calls the tracker HTTP API
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxAttempts  int
	initialDelay time.Duration
	logger       *logger.Logger
}

// New creates a client from the client section of the configuration
func New(cfg config.ClientConfig, logger *logger.Logger) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		maxAttempts:  maxAttempts,
		initialDelay: cfg.InitialDelay,
		logger:       logger.WithComponent("client"),
	}
}

// GetState fetches the state, retrying with exponential backoff until the
// attempt cap is reached. Client errors (4xx) are not retried.
func (c *Client) GetState(ctx context.Context) (entities.AppState, error) {
	var state entities.AppState
	attempt := 0

	op := func() error {
		attempt++
		var raw map[string]json.RawMessage
		if err := c.do(ctx, http.MethodGet, "/state", nil, &raw); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		s, err := decodeState(raw)
		if err != nil {
			return err
		}
		state = s
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warnw("Error fetching state, retrying",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, c.backoff(ctx), notify); err != nil {
		return entities.AppState{}, fmt.Errorf("fetch state after %d attempt(s): %w", attempt, err)
	}
	return state, nil
}

// StartProject starts a project
func (c *Client) StartProject(ctx context.Context, name string, deadlineDays int) (entities.AppState, error) {
	var state entities.AppState
	err := c.do(ctx, http.MethodPost, "/start-project", ports.StartProjectRequest{Name: name, DeadlineDays: deadlineDays}, &state)
	return state, err
}

// DeliverProject delivers the active project
func (c *Client) DeliverProject(ctx context.Context) (entities.AppState, error) {
	var state entities.AppState
	err := c.do(ctx, http.MethodPost, "/deliver-project", nil, &state)
	return state, err
}

// ResetState clears all data
func (c *Client) ResetState(ctx context.Context) (entities.AppState, error) {
	var state entities.AppState
	err := c.do(ctx, http.MethodPost, "/reset-state", nil, &state)
	return state, err
}

// Stats fetches delivery statistics
func (c *Client) Stats(ctx context.Context) (entities.Stats, error) {
	var stats entities.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = retryCeiling(c.initialDelay, c.maxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// retryCeiling is the delay before the last retry, saturating at the
// largest Duration.
func retryCeiling(initial time.Duration, attempts int) time.Duration {
	d := initial
	for i := 1; i < attempts; i++ {
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	return d
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeState applies the same shape check the UI does before rendering.
func decodeState(raw map[string]json.RawMessage) (entities.AppState, error) {
	if _, ok := raw["activeProject"]; !ok {
		return entities.AppState{}, errors.New("invalid state format received from server")
	}
	delivered, ok := raw["deliveredProjects"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(delivered), []byte("[")) {
		return entities.AppState{}, errors.New("invalid state format received from server")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return entities.AppState{}, err
	}
	var state entities.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return entities.AppState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
