package publisher

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

var invalidRepoChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// SanitizeRepoName converts a task identifier into a valid GitHub
// repository name.
func SanitizeRepoName(taskID string) string {
	name := invalidRepoChars.ReplaceAllString(taskID, "-")
	return strings.Trim(name, "-")
}

// GitHubPublisher publishes generated artifacts as a public GitHub
// repository served via Pages.
type GitHubPublisher struct {
	client   *client.Client
	apiURL   string
	token    string
	username string

	// deployWait gives Pages time to pick up a new commit before the
	// pages URL is handed to the evaluator; propagationWait covers
	// repo deletion propagation.
	deployWait      time.Duration
	propagationWait time.Duration
}

func New(apiURL, token, username string) (*GitHubPublisher, error) {
	c, err := client.NewClient(
		client.WithTLSConfig(&tls.Config{}),
		client.WithDialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub HTTP client: %w", err)
	}
	return &GitHubPublisher{
		client:          c,
		apiURL:          strings.TrimSuffix(apiURL, "/"),
		token:           token,
		username:        username,
		deployWait:      10 * time.Second,
		propagationWait: 2 * time.Second,
	}, nil
}

// CreateAndDeploy creates a fresh repository for the task, commits the
// generated artifacts plus a LICENSE, and enables Pages.
// Returns (repoURL, commitSHA, pagesURL).
func (p *GitHubPublisher) CreateAndDeploy(ctx context.Context, appDir, taskID string) (string, string, string, error) {
	repoName := SanitizeRepoName(taskID)

	// Re-runs leave a stale repo behind; recreate from scratch.
	if err := p.deleteRepoIfExists(ctx, repoName); err != nil {
		return "", "", "", err
	}

	repoURL, err := p.createRepo(ctx, repoName, taskID)
	if err != nil {
		return "", "", "", err
	}
	log.Printf("Created repo: %s", repoURL)

	if _, err := p.createFile(ctx, repoName, "LICENSE", "Add MIT License", mitLicense); err != nil {
		return "", "", "", err
	}

	readme, err := os.ReadFile(filepath.Join(appDir, "README.md"))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read README.md: %w", err)
	}
	if _, err := p.createFile(ctx, repoName, "README.md", "Add README", string(readme)); err != nil {
		return "", "", "", err
	}

	index, err := os.ReadFile(filepath.Join(appDir, "index.html"))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read index.html: %w", err)
	}
	commitSHA, err := p.createFile(ctx, repoName, "index.html", "Add application", string(index))
	if err != nil {
		return "", "", "", err
	}

	if err := p.enablePages(ctx, repoName); err != nil {
		return "", "", "", err
	}

	pagesURL := fmt.Sprintf("https://%s.github.io/%s/", p.username, repoName)
	log.Println("Waiting for GitHub Pages to deploy...")
	time.Sleep(p.deployWait)

	return repoURL, commitSHA, pagesURL, nil
}

// UpdateRepo pushes updated artifacts to an existing repository.
// Returns (commitSHA, pagesURL).
func (p *GitHubPublisher) UpdateRepo(ctx context.Context, repoName, appDir, note string) (string, string, error) {
	readme, err := os.ReadFile(filepath.Join(appDir, "README.md"))
	if err != nil {
		return "", "", fmt.Errorf("failed to read README.md: %w", err)
	}
	readmeSHA, err := p.fileSHA(ctx, repoName, "README.md")
	if err != nil {
		return "", "", err
	}
	if readmeSHA == "" {
		if _, err := p.createFile(ctx, repoName, "README.md", "Add README", string(readme)); err != nil {
			return "", "", err
		}
	} else {
		if _, err := p.updateFile(ctx, repoName, "README.md", "Update README: "+note, string(readme), readmeSHA); err != nil {
			return "", "", err
		}
	}

	index, err := os.ReadFile(filepath.Join(appDir, "index.html"))
	if err != nil {
		return "", "", fmt.Errorf("failed to read index.html: %w", err)
	}
	indexSHA, err := p.fileSHA(ctx, repoName, "index.html")
	if err != nil {
		return "", "", err
	}
	if indexSHA == "" {
		return "", "", fmt.Errorf("index.html not found in repo %s", repoName)
	}
	commitSHA, err := p.updateFile(ctx, repoName, "index.html", "Update application: "+note, string(index), indexSHA)
	if err != nil {
		return "", "", err
	}

	pagesURL := fmt.Sprintf("https://%s.github.io/%s/", p.username, repoName)
	log.Println("Waiting for GitHub Pages to redeploy...")
	time.Sleep(p.deployWait)

	return commitSHA, pagesURL, nil
}

// UpdateDeployment updates the repository previously created for a
// task and returns the refreshed deployment coordinates.
// Returns (repoURL, commitSHA, pagesURL).
func (p *GitHubPublisher) UpdateDeployment(ctx context.Context, taskID, appDir, note string) (string, string, string, error) {
	repoName := SanitizeRepoName(taskID)
	commitSHA, pagesURL, err := p.UpdateRepo(ctx, repoName, appDir, note)
	if err != nil {
		return "", "", "", err
	}
	return p.RepoURL(repoName), commitSHA, pagesURL, nil
}

// RepoURL builds the canonical repository URL for a task's repo name.
func (p *GitHubPublisher) RepoURL(repoName string) string {
	return fmt.Sprintf("https://github.com/%s/%s", p.username, repoName)
}

func (p *GitHubPublisher) deleteRepoIfExists(ctx context.Context, repoName string) error {
	status, _, err := p.do(ctx, consts.MethodGet, fmt.Sprintf("/repos/%s/%s", p.username, repoName), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	log.Printf("Repo %s already exists, deleting...", repoName)
	status, body, err := p.do(ctx, consts.MethodDelete, fmt.Sprintf("/repos/%s/%s", p.username, repoName), nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("failed to delete existing repo %s: status %d: %s", repoName, status, body)
	}
	// Deletion propagation.
	time.Sleep(p.propagationWait)
	return nil
}

func (p *GitHubPublisher) createRepo(ctx context.Context, repoName, taskID string) (string, error) {
	payload := map[string]interface{}{
		"name":        repoName,
		"description": fmt.Sprintf("Auto-generated app for task %s", taskID),
		"private":     false,
		"auto_init":   false,
	}
	status, body, err := p.do(ctx, consts.MethodPost, "/user/repos", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("failed to create repo %s: status %d: %s", repoName, status, body)
	}
	var parsed struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode create-repo response: %w", err)
	}
	if parsed.HTMLURL == "" {
		return p.RepoURL(repoName), nil
	}
	return parsed.HTMLURL, nil
}

// createFile commits a new file and returns the commit SHA.
func (p *GitHubPublisher) createFile(ctx context.Context, repoName, path, message, content string) (string, error) {
	return p.putContents(ctx, repoName, path, message, content, "")
}

func (p *GitHubPublisher) updateFile(ctx context.Context, repoName, path, message, content, sha string) (string, error) {
	return p.putContents(ctx, repoName, path, message, content, sha)
}

func (p *GitHubPublisher) putContents(ctx context.Context, repoName, path, message, content, sha string) (string, error) {
	payload := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	status, body, err := p.do(ctx, consts.MethodPut, fmt.Sprintf("/repos/%s/%s/contents/%s", p.username, repoName, path), payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("failed to put %s in repo %s: status %d: %s", path, repoName, status, body)
	}
	var parsed struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode contents response for %s: %w", path, err)
	}
	return parsed.Commit.SHA, nil
}

// fileSHA returns the blob SHA for a path, or "" when the file does
// not exist.
func (p *GitHubPublisher) fileSHA(ctx context.Context, repoName, path string) (string, error) {
	status, body, err := p.do(ctx, consts.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", p.username, repoName, path), nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s from repo %s: status %d: %s", path, repoName, status, body)
	}
	var parsed struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode contents response for %s: %w", path, err)
	}
	return parsed.SHA, nil
}

func (p *GitHubPublisher) enablePages(ctx context.Context, repoName string) error {
	payload := map[string]interface{}{
		"source": map[string]string{"branch": "main", "path": "/"},
	}
	status, body, err := p.do(ctx, consts.MethodPost, fmt.Sprintf("/repos/%s/%s/pages", p.username, repoName), payload)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		log.Println("GitHub Pages enabled")
		return nil
	case http.StatusConflict:
		log.Println("GitHub Pages already enabled")
		return nil
	default:
		if strings.Contains(string(body), "already exists") {
			log.Println("GitHub Pages already enabled")
			return nil
		}
		return fmt.Errorf("failed to enable Pages for repo %s: status %d: %s", repoName, status, body)
	}
}

func (p *GitHubPublisher) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(p.apiURL + path)
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal GitHub request body: %w", err)
		}
		req.SetBody(body)
		req.Header.SetContentTypeBytes([]byte("application/json"))
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.client.Do(callCtx, req, resp); err != nil {
		return 0, nil, fmt.Errorf("GitHub request %s %s failed: %w", method, path, err)
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}
