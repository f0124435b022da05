package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const maxResponseBytes = 4 << 20

// ErrUnconfirmed marks a call that makes content live and got a 2xx whose
// body could not be read or named no object. The platform most likely
// published, so the attempt is never retried.
var ErrUnconfirmed = errors.New("platform accepted the request but the response was unreadable; verify manually")

// errBadBody tags a 2xx response that could not be read or decoded.
var errBadBody = errors.New("unreadable response body")

// confirmCreated checks the outcome of a call that publishes content.
func confirmCreated(endpoint string, err error, id string) error {
	switch {
	case errors.Is(err, errBadBody):
		return fmt.Errorf("%w (%s): %w", ErrUnconfirmed, endpoint, err)
	case err != nil:
		return err
	case id == "":
		return fmt.Errorf("%w (%s): response has no id", ErrUnconfirmed, endpoint)
	}
	return nil
}

// APIError is a non-2xx response from a platform API.
type APIError struct {
	Platform  string
	Status    int
	Code      int
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s api returned %d (code %d): %s", e.Platform, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api returned %d: %s", e.Platform, e.Status, e.Message)
}

// retryableStatus marks throttling, timeouts, and server errors as transient.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

type errorDecoder func(status int, body []byte) *APIError

// apiClient is the JSON-over-HTTP plumbing shared by bindings.
type apiClient struct {
	baseURL     string
	http        *http.Client
	decodeError errorDecoder
}

func (c *apiClient) endpoint(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) postForm(ctx context.Context, path string, values url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// postMultipart uploads filePath under fileField alongside plain fields.
func (c *apiClient) postMultipart(ctx context.Context, path string, fields map[string]string, fileField, filePath string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ok {
			return fmt.Errorf("read %s response: %w: %w", req.URL.Path, errBadBody, err)
		}
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if !ok {
		return c.decodeError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", req.URL.Path, errBadBody, err)
	}
	return nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "empty response"
	}
	return text
}
