// Package github is the adapter for the hosted repository holding the
// proposals: labels, comments and team membership. It is the only package
// that talks to the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("github: not found")

type Comment struct {
	ID        int64
	Author    string
	Body      string
	UpdatedAt time.Time
}

type Client struct {
	baseURL string
	token   string
	repo    string // "owner/name"
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, token, repo string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		repo:    repo,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// ListLabels returns the names of the labels currently on an issue or PR.
func (c *Client) ListLabels(ctx context.Context, number int) ([]string, error) {
	var raw []struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/repos/%s/issues/%d/labels", c.repo, number)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("list labels #%d: %w", number, err)
	}

	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		labels = append(labels, l.Name)
	}
	return labels, nil
}

// SetLabels replaces the full label set on an issue or PR.
func (c *Client) SetLabels(ctx context.Context, number int, labels []string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels", c.repo, number)
	body := map[string][]string{"labels": labels}
	if err := c.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("set labels #%d: %w", number, err)
	}
	c.logger.Debug("labels replaced", zap.Int("issue", number), zap.Strings("labels", labels))
	return nil
}

// ListComments returns all comments on an issue or PR, oldest first.
func (c *Client) ListComments(ctx context.Context, number int) ([]Comment, error) {
	var all []Comment
	for page := 1; ; page++ {
		var raw []struct {
			ID   int64 `json:"id"`
			User struct {
				Login string `json:"login"`
			} `json:"user"`
			Body      string    `json:"body"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=100&page=%d", c.repo, number, page)
		if err := c.getJSON(ctx, path, &raw); err != nil {
			return nil, fmt.Errorf("list comments #%d: %w", number, err)
		}
		for _, rc := range raw {
			all = append(all, Comment{
				ID:        rc.ID,
				Author:    rc.User.Login,
				Body:      rc.Body,
				UpdatedAt: rc.UpdatedAt,
			})
		}
		if len(raw) < 100 {
			return all, nil
		}
	}
}

// GetComment fetches a single comment by id.
func (c *Client) GetComment(ctx context.Context, commentID int64) (Comment, error) {
	var raw struct {
		ID   int64 `json:"id"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body      string    `json:"body"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return Comment{}, fmt.Errorf("get comment %d: %w", commentID, err)
	}
	return Comment{ID: raw.ID, Author: raw.User.Login, Body: raw.Body, UpdatedAt: raw.UpdatedAt}, nil
}

// CreateComment posts a new comment on an issue or PR.
func (c *Client) CreateComment(ctx context.Context, number int, body string) (Comment, error) {
	var raw struct {
		ID        int64     `json:"id"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.repo, number)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"body": body}, &raw); err != nil {
		return Comment{}, fmt.Errorf("create comment #%d: %w", number, err)
	}
	c.logger.Info("comment posted",
		zap.Int("issue", number),
		zap.String("preview", firstLine(body)),
	)
	return Comment{ID: raw.ID, Body: body, UpdatedAt: raw.UpdatedAt}, nil
}

func firstLine(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		return body[:i] + "..."
	}
	return body
}

// UpdateComment replaces the body of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", c.repo, commentID)
	if err := c.doJSON(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("update comment %d: %w", commentID, err)
	}
	return nil
}

// TeamMembers returns the logins of an organization team's members.
func (c *Client) TeamMembers(ctx context.Context, org, team string) ([]string, error) {
	var members []string
	for page := 1; ; page++ {
		var raw []struct {
			Login string `json:"login"`
		}
		path := fmt.Sprintf("/orgs/%s/teams/%s/members?per_page=100&page=%d",
			url.PathEscape(org), url.PathEscape(team), page)
		if err := c.getJSON(ctx, path, &raw); err != nil {
			return nil, fmt.Errorf("list team members %s/%s: %w", org, team, err)
		}
		for _, m := range raw {
			members = append(members, m.Login)
		}
		if len(raw) < 100 {
			return members, nil
		}
	}
}

// ListIssuesWithLabel returns the numbers of open issues/PRs carrying a label.
func (c *Client) ListIssuesWithLabel(ctx context.Context, label string) ([]int, error) {
	var numbers []int
	for page := 1; ; page++ {
		var raw []struct {
			Number int `json:"number"`
		}
		path := fmt.Sprintf("/repos/%s/issues?labels=%s&state=open&per_page=100&page=%d",
			c.repo, url.QueryEscape(label), page)
		if err := c.getJSON(ctx, path, &raw); err != nil {
			return nil, fmt.Errorf("list issues with label %q: %w", label, err)
		}
		for _, i := range raw {
			numbers = append(numbers, i.Number)
		}
		if len(raw) < 100 {
			return numbers, nil
		}
	}
}

// getJSON performs a GET with retry for transient failures.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return withRetry(ctx, func() error {
		return c.once(ctx, http.MethodGet, path, nil, out)
	})
}

// doJSON performs a mutating call once. Mutations are not blindly retried
// here: callers re-fetch and compare before trying again, so a failure
// surfaces and the next evaluation repairs the record.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	return c.once(ctx, method, path, in, out)
}

func (c *Client) once(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apiError{status: resp.StatusCode, body: string(slurp)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github api status %d: %s", e.status, e.body)
}
