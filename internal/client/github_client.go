package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagesforge/api/internal/config"
)

// Publisher defines the repository publishing operations used by the job worker
type Publisher interface {
	CreateRepo(ctx context.Context, name string) error
	CreateOrUpdateFile(ctx context.Context, repo, path string, content []byte, message string) error
	UploadDirectory(ctx context.Context, repo, localPath string) error
	EnablePages(ctx context.Context, repo string) error
	GetPublicEndpoints(ctx context.Context, repo string) (*PublicEndpoints, error)
}

// PublicEndpoints holds the published locations of a repository
type PublicEndpoints struct {
	RepoURL   string `json:"repo_url"`
	PagesURL  string `json:"pages_url"`
	CommitSHA string `json:"commit_sha"`
}

// GitHubClient implements Publisher over the GitHub REST v3 API
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	branch     string
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(cfg *config.GitHubConfig) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		owner:   cfg.Owner,
		branch:  cfg.Branch,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *GitHubClient) IsConfigured() bool {
	return c.token != ""
}

// CreateRepo creates a new repository under the configured owner. A repository
// that already exists is not an error; update rounds reuse it.
func (c *GitHubClient) CreateRepo(ctx context.Context, name string) error {
	body := map[string]interface{}{
		"name":        name,
		"description": "Generated static site",
		"private":     false,
		"auto_init":   true,
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/user/repos", body)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusCreated:
		return nil
	case http.StatusUnprocessableEntity:
		// "name already exists on this account"
		if strings.Contains(string(respBody), "already exists") {
			return nil
		}
	}
	return fmt.Errorf("github create repo %q failed (status %d): %s", name, status, string(respBody))
}

// CreateOrUpdateFile writes one file on the configured branch, creating it or
// updating it in place. Each call produces one commit.
func (c *GitHubClient) CreateOrUpdateFile(ctx context.Context, repo, path string, content []byte, message string) error {
	owner, err := c.resolveOwner(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))

	body := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.branch,
	}

	// Updating an existing file requires its current blob sha
	if sha, ok := c.fileSHA(ctx, owner, repo, path); ok {
		body["sha"] = sha
	}

	status, respBody, err := c.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("github upload %s/%s failed (status %d): %s", repo, path, status, string(respBody))
	}
	return nil
}

// UploadDirectory uploads every regular file below localPath, preserving the
// relative layout. Files are committed one by one; a failure leaves already
// uploaded files in place.
func (c *GitHubClient) UploadDirectory(ctx context.Context, repo, localPath string) error {
	return filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		return c.CreateOrUpdateFile(ctx, repo, rel, content, fmt.Sprintf("Add %s", rel))
	})
}

// EnablePages turns on static hosting for the repository from the configured
// branch root. Already-enabled hosting is not an error.
func (c *GitHubClient) EnablePages(ctx context.Context, repo string) error {
	owner, err := c.resolveOwner(ctx)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"source": map[string]string{
			"branch": c.branch,
			"path":   "/",
		},
	}

	status, respBody, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pages", owner, repo), body)
	if err != nil {
		return err
	}
	if status == http.StatusCreated || status == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("github enable pages for %q failed (status %d): %s", repo, status, string(respBody))
}

// GetPublicEndpoints returns the repository URL, the pages URL, and the latest
// commit sha on the configured branch.
func (c *GitHubClient) GetPublicEndpoints(ctx context.Context, repo string) (*PublicEndpoints, error) {
	owner, err := c.resolveOwner(ctx)
	if err != nil {
		return nil, err
	}

	var repoInfo struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &repoInfo); err != nil {
		return nil, err
	}

	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/commits?sha=%s&per_page=1", owner, repo, c.branch), &commits); err != nil {
		return nil, err
	}
	commitSHA := ""
	if len(commits) > 0 {
		commitSHA = commits[0].SHA
	}

	return &PublicEndpoints{
		RepoURL:   repoInfo.HTMLURL,
		PagesURL:  fmt.Sprintf("https://%s.github.io/%s/", owner, repo),
		CommitSHA: commitSHA,
	}, nil
}

// resolveOwner returns the configured owner, falling back to the token's own
// login fetched once from /user.
func (c *GitHubClient) resolveOwner(ctx context.Context) (string, error) {
	if c.owner != "" {
		return c.owner, nil
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := c.getJSON(ctx, "/user", &user); err != nil {
		return "", fmt.Errorf("failed to resolve repository owner: %w", err)
	}
	c.owner = user.Login
	return c.owner, nil
}

func (c *GitHubClient) fileSHA(ctx context.Context, owner, repo, path string) (string, bool) {
	var info struct {
		SHA string `json:"sha"`
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, escapePath(path), c.branch)
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return "", false
	}
	return info.SHA, info.SHA != ""
}

func (c *GitHubClient) do(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *GitHubClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("github API error (status %d): %s", status, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
