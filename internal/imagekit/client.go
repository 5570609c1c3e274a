package imagekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
)

// DefaultUploadURL is the ImageKit upload endpoint.
const DefaultUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// MaxUploadBytes bounds a single upload.
const MaxUploadBytes = 25 << 20

// UploadResult is the metadata ImageKit returns for an uploaded file.
type UploadResult struct {
	FileID       string `json:"fileId"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Height       int    `json:"height"`
	Width        int    `json:"width"`
	Size         int64  `json:"size"`
	FilePath     string `json:"filePath"`
	FileType     string `json:"fileType"`
}

// Uploader stores image bytes and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string) (*UploadResult, error)
}

// Client talks to the ImageKit upload API.
type Client struct {
	privateKey string
	uploadURL  string
	httpClient *http.Client
}

// NewClient returns a Client. An empty uploadURL uses DefaultUploadURL.
func NewClient(privateKey, uploadURL string) *Client {
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	return &Client{
		privateKey: privateKey,
		uploadURL:  uploadURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload sends data as a new file. ImageKit appends a unique suffix to the
// name.
func (c *Client) Upload(ctx context.Context, data []byte, name string) (*UploadResult, error) {
	if c.privateKey == "" {
		return nil, apperrors.NewNotConfigured("imagekit_private_key")
	}
	if len(data) == 0 {
		return nil, apperrors.NewInvalidRequest("no file provided")
	}
	if len(data) > MaxUploadBytes {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("file exceeds %d bytes", MaxUploadBytes))
	}
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := w.WriteField("fileName", name); err != nil {
		return nil, fmt.Errorf("write form field: %w", err)
	}
	if err := w.WriteField("useUniqueFileName", "true"); err != nil {
		return nil, fmt.Errorf("write form field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth(c.privateKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstream("imagekit", "upload failed: "+err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		msg := fmt.Sprintf("upload failed (%d)", resp.StatusCode)
		if json.Unmarshal(payload, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		return nil, apperrors.NewUpstream("imagekit", msg)
	}

	var out UploadResult
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apperrors.NewUpstream("imagekit", "unreadable upload response")
	}
	if out.URL == "" {
		return nil, apperrors.NewUpstream("imagekit", "upload response has no url")
	}
	return &out, nil
}
