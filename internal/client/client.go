// Package client provides the HTTP client for the pressbridge server,
// used by the operator CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/reindex"
	"github.com/pressbridge/pressbridge/internal/sync"
)

// Client talks to the pressbridge server's JSON API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. Empty arguments fall back to the
// PRESSBRIDGE_SERVER_URL and PRESSBRIDGE_API_TOKEN environment variables,
// then to localhost defaults.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PRESSBRIDGE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}
	if token == "" {
		token = os.Getenv("PRESSBRIDGE_API_TOKEN")
	}

	timeout := 5 * time.Minute // pull batches against slow sites take a while
	if t := os.Getenv("PRESSBRIDGE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d %s: %s", e.Status, e.Code, e.Message)
}

// errorEnvelope mirrors the server's error body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do executes one JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: string(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// PullSite triggers an incremental pull for one site.
func (c *Client) PullSite(ctx context.Context, orgID, siteID string, limit int) (*sync.PullResult, error) {
	var result sync.PullResult
	err := c.do(ctx, http.MethodPost, "/sync/pull", map[string]any{
		"org_id":  orgID,
		"site_id": siteID,
		"limit":   limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PullAll triggers pulls for every due site of an organization.
func (c *Client) PullAll(ctx context.Context, orgID string, limit int) ([]sync.PullResult, error) {
	var result struct {
		Sites []sync.PullResult `json:"sites"`
	}
	err := c.do(ctx, http.MethodPost, "/sync/pull", map[string]any{
		"org_id": orgID,
		"limit":  limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Sites, nil
}

// Push pushes one content item to its remote site.
func (c *Client) Push(ctx context.Context, req sync.PushRequest) (*sync.PushResult, error) {
	var result sync.PushResult
	if err := c.do(ctx, http.MethodPost, "/sync/push", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SiteHealth fetches one site's health snapshot.
func (c *Client) SiteHealth(ctx context.Context, orgID, siteID string) (*models.HealthSnapshot, error) {
	var snap models.HealthSnapshot
	path := fmt.Sprintf("/sync/health?org_id=%s&site_id=%s", url.QueryEscape(orgID), url.QueryEscape(siteID))
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// OrgHealth fetches health snapshots for all of an organization's sites.
func (c *Client) OrgHealth(ctx context.Context, orgID string) ([]models.HealthSnapshot, error) {
	var result struct {
		Sites []models.HealthSnapshot `json:"sites"`
	}
	path := "/sync/health?org_id=" + url.QueryEscape(orgID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Sites, nil
}

// Conflicts lists open conflicts, optionally filtered by site.
func (c *Client) Conflicts(ctx context.Context, orgID, siteID string) ([]models.ConflictRecord, error) {
	var result struct {
		Conflicts []models.ConflictRecord `json:"conflicts"`
	}
	path := "/sync/conflicts?org_id=" + url.QueryEscape(orgID)
	if siteID != "" {
		path += "&site_id=" + url.QueryEscape(siteID)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Conflicts, nil
}

// ResolveConflict marks a conflict as resolved.
func (c *Client) ResolveConflict(ctx context.Context, conflictID, note string) error {
	return c.do(ctx, http.MethodPost, "/sync/conflicts/resolve", map[string]any{
		"conflict_id": conflictID,
		"note":        note,
	}, nil)
}

// ReindexReport is the response of a reindex run.
type ReindexReport struct {
	Admission reindex.Result      `json:"admission"`
	Work      *reindex.WorkResult `json:"work,omitempty"`
}

// ReindexRun triggers an incremental reindex admission run; with process
// set, queued jobs are embedded in the same call.
func (c *Client) ReindexRun(ctx context.Context, limit int, process bool) (*ReindexReport, error) {
	var report ReindexReport
	err := c.do(ctx, http.MethodPost, "/reindex/run", map[string]any{
		"limit":   limit,
		"process": process,
	}, &report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Stats fetches the server's runtime metrics snapshot.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// HealthUpdate is one message from the health stream.
type HealthUpdate struct {
	OrgID string                  `json:"org_id"`
	At    time.Time               `json:"at"`
	Sites []models.HealthSnapshot `json:"sites"`
}

// WatchHealth subscribes to the server's health stream and delivers updates
// until ctx is cancelled or the connection drops. The channel is closed on
// return.
func (c *Client) WatchHealth(ctx context.Context, orgID string, updates chan<- HealthUpdate) error {
	defer close(updates)

	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/health?org_id=" + url.QueryEscape(orgID)

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so the blocked ReadJSON returns.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var update HealthUpdate
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read health update: %w", err)
		}

		select {
		case updates <- update:
		case <-ctx.Done():
			return nil
		}
	}
}
