package remote

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
)

// wpTimeLayout is the format WordPress uses for *_gmt fields.
const wpTimeLayout = "2006-01-02T15:04:05"

// HTTPClient talks to the WordPress REST API (wp-json/wp/v2).
type HTTPClient struct {
	baseURL string
	auth    string // Application Password "user:pass", sent as basic auth
	http    *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for one site. credentialRef is the resolved
// application-password pair ("user:pass"); resolution from the credential
// store happens upstream.
func NewHTTPClient(baseURL, credentialRef string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    credentialRef,
		http:    &http.Client{Timeout: timeout},
	}
}

// wpPost mirrors the WordPress REST representation of a post.
type wpPost struct {
	ID       int64  `json:"id"`
	Link     string `json:"link"`
	Status   string `json:"status"`
	Modified string `json:"modified_gmt"`
	Title    struct {
		Raw      string `json:"raw"`
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Raw      string `json:"raw"`
		Rendered string `json:"rendered"`
	} `json:"content"`
}

// wpError is the WordPress REST error envelope.
type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *wpPost) toPost() Post {
	modified, _ := time.Parse(wpTimeLayout, p.Modified)
	title := p.Title.Raw
	if title == "" {
		title = p.Title.Rendered
	}
	content := p.Content.Raw
	if content == "" {
		content = p.Content.Rendered
	}
	return Post{
		ID:         p.ID,
		Title:      title,
		Content:    content,
		Status:     p.Status,
		Link:       p.Link,
		ModifiedAt: modified.UTC(),
	}
}

func (c *HTTPClient) FetchModifiedSince(ctx context.Context, since time.Time, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("modified_after", since.UTC().Format(wpTimeLayout))
	q.Set("orderby", "modified")
	q.Set("order", "asc")
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("context", "edit")
	q.Set("status", "publish,draft")

	var posts []wpPost
	if err := c.do(ctx, http.MethodGet, "/wp-json/wp/v2/posts?"+q.Encode(), nil, &posts); err != nil {
		return nil, fmt.Errorf("fetch modified: %w", err)
	}

	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = posts[i].toPost()
	}
	return out, nil
}

func (c *HTTPClient) GetPost(ctx context.Context, id int64) (*Post, error) {
	var post wpPost
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/wp-json/wp/v2/posts/%d?context=edit", id), nil, &post); err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	out := post.toPost()
	return &out, nil
}

func (c *HTTPClient) CreatePost(ctx context.Context, post Post) (*Post, error) {
	body := map[string]any{
		"title":   post.Title,
		"content": post.Content,
		"status":  post.Status,
	}
	var created wpPost
	if err := c.do(ctx, http.MethodPost, "/wp-json/wp/v2/posts", body, &created); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	out := created.toPost()
	return &out, nil
}

func (c *HTTPClient) UpdatePost(ctx context.Context, id int64, post Post) (*Post, error) {
	body := map[string]any{
		"title":   post.Title,
		"content": post.Content,
	}
	var updated wpPost
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/wp-json/wp/v2/posts/%d", id), body, &updated); err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}
	out := updated.toPost()
	return &out, nil
}

func (c *HTTPClient) PublishPost(ctx context.Context, id int64) (*Post, error) {
	body := map[string]any{"status": "publish"}
	var updated wpPost
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/wp-json/wp/v2/posts/%d", id), body, &updated); err != nil {
		return nil, fmt.Errorf("publish post %d: %w", id, err)
	}
	out := updated.toPost()
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		if user, pass, found := strings.Cut(c.auth, ":"); found {
			req.SetBasicAuth(user, pass)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr wpError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code == "rest_post_invalid_id" {
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		}
		return &HTTPError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
