// Package hevy is the Hevy workout tracker provider.
package hevy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/vault"
)

const (
	Name           = "hevy"
	DefaultBaseURL = "https://api.hevyapp.com/v1"
	maxPageSize    = 10
)

// KeySource supplies the API key for each request.
type KeySource interface {
	Load(ctx context.Context, provider string) (string, error)
}

// Client calls the Hevy public API.
type Client struct {
	baseURL    string
	keys       KeySource
	httpClient *http.Client
	retryWait  time.Duration
	now        func() time.Time
	log        *slog.Logger
}

var _ provider.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithLogger(l *slog.Logger) Option      { return func(c *Client) { c.log = l } }

// WithRetryWait sets the first backoff interval; later retries double it.
func WithRetryWait(d time.Duration) Option { return func(c *Client) { c.retryWait = d } }

// New creates a client. baseURL defaults to the public API.
func New(baseURL string, keys KeySource, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		keys:       keys,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryWait:  time.Second,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// TestConnection checks the key against the workout count endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.WorkoutCount(ctx)
	return err
}

// WorkoutCount returns how many workouts the account has logged.
func (c *Client) WorkoutCount(ctx context.Context) (int, error) {
	var resp struct {
		WorkoutCount int `json:"workout_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/workouts/count", nil, &resp, true); err != nil {
		return 0, err
	}
	return resp.WorkoutCount, nil
}

// ListRoutines returns one page of the account's routines. Hevy caps page
// size at 10.
func (c *Client) ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var resp provider.RoutinePage
	if err := c.do(ctx, http.MethodGet, "/routines?"+q.Encode(), nil, &resp, true); err != nil {
		// Hevy answers 404 for a page past the end.
		if errors.Is(err, provider.ErrNotFound) {
			return provider.RoutinePage{Page: page, PageCount: page - 1}, nil
		}
		return provider.RoutinePage{}, err
	}
	if resp.Page == 0 {
		resp.Page = page
	}
	return resp, nil
}

// GetRoutine fetches a routine with its exercises and sets.
func (c *Client) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/routines/"+url.PathEscape(id), nil, &raw, true); err != nil {
		return models.Routine{}, err
	}
	var wrapped struct {
		Routine *models.Routine `json:"routine"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return models.Routine{}, fmt.Errorf("decoding routine: %w", err)
	}
	if wrapped.Routine != nil {
		return *wrapped.Routine, nil
	}
	var r models.Routine
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Routine{}, fmt.Errorf("decoding routine: %w", err)
	}
	return r, nil
}

// CreateWorkout posts a new workout and returns its id. Creates are not
// retried so a slow success cannot produce a duplicate.
func (c *Client) CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/workouts", c.payload(log), &raw, false); err != nil {
		return "", err
	}
	id, err := workoutID(raw)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateWorkout replaces the workout with the full log.
func (c *Client) UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error {
	return c.do(ctx, http.MethodPut, "/workouts/"+url.PathEscape(id), c.payload(log), nil, true)
}

func (c *Client) payload(log models.WorkoutLog) workoutRequest {
	w := toWire(log)
	if log.EndTime.IsZero() {
		w.EndTime = c.now().UTC()
	}
	return workoutRequest{Workout: w}
}

// do sends one API request, retrying idempotent calls up to 3 times with
// exponential backoff. 4xx responses are not retried.
func (c *Client) do(ctx context.Context, method, path string, body, out any, retry bool) error {
	key, err := c.keys.Load(ctx, Name)
	if errors.Is(err, vault.ErrNotFound) {
		return provider.ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("loading hevy api key: %w", err)
	}

	var data []byte
	if body != nil {
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	attempts := 1
	if retry {
		attempts = 3
	}
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * c.retryWait
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("api-key", key)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decoding %s %s: %w", method, path, err)
				}
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return provider.ErrUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, provider.ErrNotFound)
		case resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return fmt.Errorf("hevy %s %s failed (status %d): %s", method, path, resp.StatusCode, respBody)
		}
		lastErr = fmt.Errorf("hevy %s %s failed (status %d): %s", method, path, resp.StatusCode, respBody)
		c.log.Warn("hevy request failed", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
