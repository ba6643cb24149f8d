// Package server is the authenticated HTTP client for the document
// management server: multipart document delivery plus a cheap health probe.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docdrop/internal/config"
	"docdrop/internal/queue"
)

const userAgent = "docdrop/0.1.0"

// Client talks to a paperless-ngx compatible API.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	uploadTimeout time.Duration
	healthTimeout time.Duration
}

// NewClient builds a client from configuration. The per-call timeouts come
// from config; the underlying http.Client carries no global timeout so the
// upload deadline can differ from the health probe deadline.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:       cfg.Server.BaseURL,
		token:         cfg.Server.Token,
		httpClient:    &http.Client{},
		uploadTimeout: time.Duration(cfg.Server.UploadTimeoutSeconds) * time.Second,
		healthTimeout: time.Duration(cfg.Server.HealthTimeoutSeconds) * time.Second,
	}
}

// BaseURL returns the configured server endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health issues a short-timeout request against a cheap endpoint. A nil
// return or any classified HTTP error both prove the server is alive; the
// caller distinguishes transport failures via the sentinel markers.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/remote_version/", nil)
	if err != nil {
		return Wrap(ErrTransient, "health", "build request", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Wrap(ErrTransient, "health", "probe server", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Any HTTP response, even an error status, proves the server answered.
	return nil
}

// UploadDocument delivers the staged file and its metadata as a multipart
// request and returns the opaque task reference issued by the server.
func (c *Client) UploadDocument(ctx context.Context, path string, meta queue.Metadata) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	file, err := os.Open(path)
	if err != nil {
		return "", Wrap(ErrStorage, "upload", "open staged document", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return "", Wrap(ErrStorage, "upload", "build multipart body", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", Wrap(ErrStorage, "upload", "read staged document", err)
	}

	if title := strings.TrimSpace(meta.Title); title != "" {
		if err := writer.WriteField("title", title); err != nil {
			return "", Wrap(ErrStorage, "upload", "write title field", err)
		}
	}
	for _, tag := range meta.Tags {
		if err := writer.WriteField("tags", strconv.FormatInt(tag, 10)); err != nil {
			return "", Wrap(ErrStorage, "upload", "write tag field", err)
		}
	}
	if meta.DocumentTypeID != nil {
		if err := writer.WriteField("document_type", strconv.FormatInt(*meta.DocumentTypeID, 10)); err != nil {
			return "", Wrap(ErrStorage, "upload", "write document_type field", err)
		}
	}
	if meta.CorrespondentID != nil {
		if err := writer.WriteField("correspondent", strconv.FormatInt(*meta.CorrespondentID, 10)); err != nil {
			return "", Wrap(ErrStorage, "upload", "write correspondent field", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", Wrap(ErrStorage, "upload", "finalize multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/post_document/", &body)
	if err != nil {
		return "", Wrap(ErrTransient, "upload", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return "", Wrap(ErrTransient, "upload", "delivery timed out", err)
		}
		return "", Wrap(ErrTransient, "upload", "deliver document", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseTaskRef(payload), nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", Wrap(ErrAuth, "upload", httpDetail(resp.StatusCode, payload), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", Wrap(ErrClient, "upload", httpDetail(resp.StatusCode, payload), nil)
	default:
		return "", Wrap(ErrServer, "upload", httpDetail(resp.StatusCode, payload), nil)
	}
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
}

// parseTaskRef extracts the task reference from the response body. The
// server returns either a bare JSON string or a {"task_id": ...} object.
func parseTaskRef(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return ""
	}

	var ref string
	if err := json.Unmarshal([]byte(trimmed), &ref); err == nil {
		return strings.TrimSpace(ref)
	}
	var obj struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj.TaskID != "" {
		return obj.TaskID
	}
	return strings.Trim(trimmed, `"`)
}

func httpDetail(status int, payload []byte) string {
	detail := strings.TrimSpace(string(payload))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	if detail == "" {
		return fmt.Sprintf("server returned %d", status)
	}
	return fmt.Sprintf("server returned %d: %s", status, detail)
}
