// Package deploy publishes a frame's markup as a static site on Vercel.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/sandbox"
)

// DefaultAPIURL is the Vercel REST API root.
const DefaultAPIURL = "https://api.vercel.com"

// Platform is recorded on every deployment this package produces.
const Platform = "vercel"

// Request is one publish of a frame.
type Request struct {
	ProjectID string
	Markup    string
}

// Result describes an accepted deployment.
type Result struct {
	SiteID       string `json:"site_id"`
	DeploymentID string `json:"deployment_id"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	Name         string `json:"name"`
}

// Deployer publishes markup.
type Deployer interface {
	Deploy(ctx context.Context, req Request) (*Result, error)
}

// Client creates Vercel v13 deployments.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient returns a Client. An empty apiURL uses DefaultAPIURL.
func NewClient(token, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		token:      token,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

type deployFile struct {
	File string `json:"file"`
	Data string `json:"data"`
}

type projectSettings struct {
	Framework *string `json:"framework"`
}

type deployPayload struct {
	Name            string          `json:"name"`
	Files           []deployFile    `json:"files"`
	ProjectSettings projectSettings `json:"projectSettings"`
}

type deployResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// SiteName returns the Vercel project name for a deployment started at t.
func SiteName(projectID string, t time.Time) string {
	prefix := projectID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("ai-website-%s-%d", strings.ToLower(prefix), t.UnixMilli())
}

// Deploy implements Deployer.
func (c *Client) Deploy(ctx context.Context, req Request) (*Result, error) {
	if c.token == "" {
		return nil, apperrors.NewNotConfigured("vercel_token")
	}
	if strings.TrimSpace(req.Markup) == "" {
		return nil, apperrors.NewInvalidRequest("markup is empty")
	}
	if req.ProjectID == "" {
		return nil, apperrors.NewInvalidRequest("project_id is required")
	}

	name := SiteName(req.ProjectID, c.now())
	body, err := json.Marshal(deployPayload{
		Name:  name,
		Files: []deployFile{{File: "index.html", Data: sandbox.WrapDocument(req.Markup)}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal deployment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v13/deployments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewUpstream("vercel", "deployment failed: "+err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewUpstream("vercel", "deployment failed: "+providerMessage(payload, resp.StatusCode))
	}

	var out deployResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apperrors.NewUpstream("vercel", "unreadable deployment response")
	}
	status := out.ReadyState
	if status == "" {
		status = "BUILDING"
	}
	return &Result{
		SiteID:       uuid.NewString(),
		DeploymentID: out.ID,
		URL:          "https://" + out.URL,
		Status:       status,
		Name:         name,
	}, nil
}

// providerMessage extracts Vercel's error text, which arrives either as
// {"error":{"message":...}} or {"message":...}, falling back to the raw body.
func providerMessage(payload []byte, status int) string {
	var e struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &e) == nil {
		if e.Error != nil && e.Error.Message != "" {
			return e.Error.Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
