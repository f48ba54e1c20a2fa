package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/umputun/wellscope/pkg/config"
	"github.com/umputun/wellscope/pkg/domain"
)

// ErrAuth indicates the feed source rejected the access token. Distinct from
// transient upstream errors so the retry policy upstream can decide.
var ErrAuth = errors.New("feed source rejected credentials")

// Client talks to a Graph-style social feed API. All paginated calls go
// through a shared rate limiter to respect upstream limits.
type Client struct {
	client   *http.Client
	baseURL  string
	pageSize int
	limiter  *rate.Limiter
}

// NewClient creates a feed client for the configured endpoint
func NewClient(cfg config.FeedConfig) *Client {
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:  strings.TrimSuffix(cfg.Endpoint, "/"),
		pageSize: cfg.PageSize,
		limiter:  rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
	}
}

// graph wire shapes
type graphTime struct{ time.Time }

// UnmarshalJSON parses the source's timestamp format, best-effort
func (t *graphTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil // missing or odd timestamps are tolerated, item stays zero-timed
}

type graphComment struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	CreatedTime graphTime `json:"created_time"`
	Comments    *struct {
		Data []graphComment `json:"data"`
	} `json:"comments,omitempty"`
}

type graphPaging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next,omitempty"`
}

// Profile fetches basic info about the token's account
func (c *Client) Profile(ctx context.Context, token string) (*domain.Profile, error) {
	params := url.Values{
		"fields":       {"id,name,picture"},
		"access_token": {token},
	}

	var resp struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := c.get(ctx, "/me", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	return &domain.Profile{ID: resp.ID, Name: resp.Name, Picture: resp.Picture.Data.URL}, nil
}

// Posts fetches one page of the account's posts, empty cursor starts from the top
func (c *Client) Posts(ctx context.Context, token, cursor string) (*PostsPage, error) {
	params := url.Values{
		"fields":       {"message,story,created_time"},
		"limit":        {strconv.Itoa(c.pageSize)},
		"access_token": {token},
	}
	if cursor != "" {
		params.Set("after", cursor)
	}

	var resp struct {
		Data []struct {
			ID          string    `json:"id"`
			Message     string    `json:"message"`
			Story       string    `json:"story"`
			CreatedTime graphTime `json:"created_time"`
		} `json:"data"`
		Paging graphPaging `json:"paging"`
	}
	if err := c.get(ctx, "/me/posts", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch posts page: %w", err)
	}

	page := &PostsPage{}
	for _, p := range resp.Data {
		message := p.Message
		if message == "" {
			message = p.Story
		}
		page.Posts = append(page.Posts, Post{ID: p.ID, Message: message, CreatedAt: p.CreatedTime.Time})
	}
	if resp.Paging.Next != "" {
		page.NextCursor = resp.Paging.Cursors.After
	}
	return page, nil
}

// Comments fetches one page of a post's comment tree, replies come inline
func (c *Client) Comments(ctx context.Context, token, postID, cursor string) (*CommentsPage, error) {
	params := url.Values{
		"fields":       {"message,created_time,comments"},
		"limit":        {strconv.Itoa(c.pageSize)},
		"access_token": {token},
	}
	if cursor != "" {
		params.Set("after", cursor)
	}

	var resp struct {
		Data   []graphComment `json:"data"`
		Paging graphPaging    `json:"paging"`
	}
	if err := c.get(ctx, "/"+postID+"/comments", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch comments for %s: %w", postID, err)
	}

	page := &CommentsPage{}
	for _, gc := range resp.Data {
		page.Comments = append(page.Comments, convertComment(gc))
	}
	if resp.Paging.Next != "" {
		page.NextCursor = resp.Paging.Cursors.After
	}
	return page, nil
}

// convertComment maps the wire comment and its inline replies
func convertComment(gc graphComment) Comment {
	comment := Comment{ID: gc.ID, Message: gc.Message, CreatedAt: gc.CreatedTime.Time}
	if gc.Comments != nil {
		for _, reply := range gc.Comments.Data {
			comment.Replies = append(comment.Replies, convertComment(reply))
		}
	}
	return comment
}

// get performs one rate-limited GET and decodes the JSON response
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		// the source reports token problems in an error envelope too
		var envelope struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Error.Code == 190 {
			return fmt.Errorf("%s: %w", envelope.Error.Message, ErrAuth)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
