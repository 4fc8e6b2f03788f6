// Package vercel drives the hosting platform: projects, environment
// variables and deployments.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"kairos/launch/internal/deploy"
	"kairos/launch/internal/upstream"
)

const DefaultBaseURL = "https://api.vercel.com"

// Default targets for injected environment variables.
var DefaultTargets = []string{"production", "preview"}

type GitRepository struct {
	Type  string `json:"type"`
	Repo  string `json:"repo"`
	Owner string `json:"owner,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

type CreateProjectOptions struct {
	Name            string         `json:"name"`
	Framework       string         `json:"framework,omitempty"`
	BuildCommand    string         `json:"buildCommand,omitempty"`
	OutputDirectory string         `json:"outputDirectory,omitempty"`
	InstallCommand  string         `json:"installCommand,omitempty"`
	GitRepository   *GitRepository `json:"gitRepository,omitempty"`
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"accountId"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

type EnvVar struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

type GitSource struct {
	Type string `json:"type"`
	Org  string `json:"org"`
	Repo string `json:"repo"`
	Ref  string `json:"ref"`
}

type CreateDeploymentOptions struct {
	Name      string    `json:"name"`
	Project   string    `json:"project"`
	Target    string    `json:"target,omitempty"`
	GitSource GitSource `json:"gitSource"`
}

type Deployment struct {
	ID         string `json:"id"`
	UID        string `json:"uid"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
	CreatedAt  int64  `json:"createdAt"`
	BuildingAt int64  `json:"buildingAt,omitempty"`
	ReadyAt    int64  `json:"readyAt,omitempty"`
}

// Identifier returns whichever id field the endpoint populated.
func (d *Deployment) Identifier() string {
	if d.ID != "" {
		return d.ID
	}
	return d.UID
}

type Client struct {
	baseURL string
	teamID  string
	http    *upstream.Client
}

func NewClient(baseURL, teamID string, httpClient *upstream.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), teamID: teamID, http: httpClient}
}

func (c *Client) do(ctx context.Context, token, method, path string, body, dst interface{}) error {
	u := c.baseURL + path
	if c.teamID != "" {
		u += "?" + url.Values{"teamId": {c.teamID}}.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.DoJSON(ctx, req, dst)
}

func (c *Client) CreateProject(ctx context.Context, token string, opts CreateProjectOptions) (*Project, error) {
	if opts.Framework == "" {
		opts.Framework = "nextjs"
	}
	var project Project
	if err := c.do(ctx, token, http.MethodPost, "/v9/projects", opts, &project); err != nil {
		return nil, fmt.Errorf("create vercel project %q: %w", opts.Name, err)
	}
	return &project, nil
}

func (c *Client) GetProject(ctx context.Context, token, projectID string) (*Project, error) {
	var project Project
	if err := c.do(ctx, token, http.MethodGet, "/v9/projects/"+url.PathEscape(projectID), nil, &project); err != nil {
		return nil, fmt.Errorf("get vercel project: %w", err)
	}
	return &project, nil
}

// CreateEnvVar stores an encrypted variable on the project. Empty targets
// default to production and preview.
func (c *Client) CreateEnvVar(ctx context.Context, token, projectID, key, value string, targets []string) error {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	body := EnvVar{Key: key, Value: value, Type: "encrypted", Target: targets}
	if err := c.do(ctx, token, http.MethodPost, "/v9/projects/"+url.PathEscape(projectID)+"/env", body, nil); err != nil {
		return fmt.Errorf("create env var %s: %w", key, err)
	}
	return nil
}

func (c *Client) CreateDeployment(ctx context.Context, token string, opts CreateDeploymentOptions) (*Deployment, error) {
	if opts.Target == "" {
		opts.Target = "production"
	}
	var d Deployment
	if err := c.do(ctx, token, http.MethodPost, "/v13/deployments", opts, &d); err != nil {
		return nil, fmt.Errorf("create vercel deployment: %w", err)
	}
	return &d, nil
}

func (c *Client) GetDeployment(ctx context.Context, token, deploymentID string) (*Deployment, error) {
	var d Deployment
	if err := c.do(ctx, token, http.MethodGet, "/v13/deployments/"+url.PathEscape(deploymentID), nil, &d); err != nil {
		return nil, fmt.Errorf("get deployment status: %w", err)
	}
	return &d, nil
}

// StatusFunc adapts GetDeployment for the poller, bound to one token.
func (c *Client) StatusFunc(token string) deploy.StatusFunc {
	return func(ctx context.Context, deploymentID string) (deploy.Snapshot, error) {
		d, err := c.GetDeployment(ctx, token, deploymentID)
		if err != nil {
			return deploy.Snapshot{}, err
		}
		snap := deploy.Snapshot{State: deploy.ParseProviderState(d.ReadyState)}
		if d.URL != "" {
			snap.URL = "https://" + strings.TrimPrefix(d.URL, "https://")
		}
		return snap, nil
	}
}
