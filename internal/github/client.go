// Package github checks that the product repository is reachable before a
// project is created from it.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"kairos/launch/internal/upstream"
)

const DefaultBaseURL = "https://api.github.com"

type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type Client struct {
	baseURL string
	http    *upstream.Client
}

func NewClient(baseURL string, httpClient *upstream.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// RepositoryAccess fetches owner/repo with token. GitHub answers 404 for
// private repositories the token can't see, so not-found doubles as
// access-denied.
func (c *Client) RepositoryAccess(ctx context.Context, token, owner, repo string) (*Repository, error) {
	u := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	var r Repository
	if err := c.http.DoJSON(ctx, req, &r); err != nil {
		switch {
		case errors.Is(err, upstream.ErrNotFound):
			return nil, fmt.Errorf("repository %s/%s not found or access denied: %w", owner, repo, err)
		case errors.Is(err, upstream.ErrUnauthorized):
			return nil, fmt.Errorf("github rate limit exceeded or access denied: %w", err)
		default:
			return nil, fmt.Errorf("verify repository access: %w", err)
		}
	}
	return &r, nil
}

func (c *Client) IsPrivate(ctx context.Context, token, owner, repo string) (bool, error) {
	r, err := c.RepositoryAccess(ctx, token, owner, repo)
	if err != nil {
		return false, err
	}
	return r.Private, nil
}
