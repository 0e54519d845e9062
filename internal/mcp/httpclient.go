package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/session"
)

// HTTPClient implements Coach by calling the repcoach REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// sessions live on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// remoteErrors are re-created from the server's error text so tools can
// react to them.
var remoteErrors = []error{
	coach.ErrNoActiveSession,
	coach.ErrSessionActive,
	coach.ErrEmptyRoutine,
	session.ErrNoRoutine,
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpclient: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil {
			for _, known := range remoteErrors {
				if strings.HasSuffix(e.Error, known.Error()) {
					return known
				}
			}
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("httpclient: %s: %w", path, provider.ErrNotFound)
		}
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	var out provider.RoutinePage
	err := c.do(ctx, http.MethodGet, "/api/v1/routines", params, nil, &out)
	return out, err
}

func (c *HTTPClient) StartWorkout(ctx context.Context, routineID string) (coach.Status, error) {
	var out coach.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/session", nil, map[string]string{"routine_id": routineID}, &out)
	return out, err
}

func (c *HTTPClient) SendInput(ctx context.Context, text string) (session.Reply, error) {
	var out session.Reply
	err := c.do(ctx, http.MethodPost, "/api/v1/session/input", nil, map[string]string{"text": text}, &out)
	return out, err
}

func (c *HTTPClient) Status(ctx context.Context) (coach.Status, error) {
	var out coach.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) Complete(ctx context.Context) (Completion, error) {
	var out Completion
	err := c.do(ctx, http.MethodPost, "/api/v1/session/complete", nil, nil, &out)
	return out, err
}

// Ping checks that the server is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, nil)
}
