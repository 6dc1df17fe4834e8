package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// inlineLimit mirrors the server's inclusive inline-upload threshold.
const inlineLimit = 20 << 20

// Client talks to the meetscribe API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// UploadRequest describes one recording to push to the API.
type UploadRequest struct {
	UserID    string
	ProjectID string
	Title     string
	FileName  string
	Size      int64
	Body      io.Reader
}

// SessionResult is the subset of the creation response the CLI reports.
type SessionResult struct {
	Session struct {
		ID          string `json:"id"`
		StoragePath string `json:"storagePath"`
	} `json:"session"`
	RecordingURL string `json:"recordingUrl"`
}

// Upload pushes one recording, choosing the inline or direct path by size.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*SessionResult, error) {
	if req.Size > inlineLimit {
		return c.uploadDirect(ctx, req)
	}
	return c.uploadInline(ctx, req)
}

func (c *Client) uploadInline(ctx context.Context, req UploadRequest) (*SessionResult, error) {
	body, contentType, err := multipartPayload(map[string]string{
		"userId":    req.UserID,
		"projectId": req.ProjectID,
		"title":     req.Title,
	}, req.FileName, req.Body)
	if err != nil {
		return nil, err
	}

	var result SessionResult
	if err := c.post(ctx, "/api/recordings", contentType, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) uploadDirect(ctx context.Context, req UploadRequest) (*SessionResult, error) {
	body, contentType, err := multipartPayload(map[string]string{
		"userId": req.UserID,
	}, req.FileName, req.Body)
	if err != nil {
		return nil, err
	}

	var uploaded struct {
		FilePath string `json:"filePath"`
		FileSize int64  `json:"fileSize"`
	}
	if err := c.post(ctx, "/api/recordings/upload", contentType, body, &uploaded); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"userId":    req.UserID,
		"projectId": req.ProjectID,
		"title":     req.Title,
		"filePath":  uploaded.FilePath,
		"fileSize":  uploaded.FileSize,
	})
	if err != nil {
		return nil, err
	}

	var result SessionResult
	if err := c.post(ctx, "/api/recordings/create-session", "application/json", bytes.NewReader(payload), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// multipartPayload buffers the multipart body. Recorder payloads are bounded
// by the capture store, so buffering is acceptable on the client side.
func multipartPayload(fields map[string]string, fileName string, file io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile("audio", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
