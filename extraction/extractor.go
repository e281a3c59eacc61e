package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"exceptionforms/models"
)

var ErrNotConfigured = errors.New("no extraction service configured")

// Extractor turns a scanned form into the raw JSON text produced by the
// OCR/LLM extraction service.
type Extractor interface {
	Extract(ctx context.Context, formType models.FormType, fileName string, content io.Reader) ([]byte, error)
}

// HTTPExtractor posts the scan as multipart form data to an extraction
// service and returns the response body.
type HTTPExtractor struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPExtractor(url, apiKey string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, formType models.FormType, fileName string, content io.Reader) ([]byte, error) {
	if e == nil || e.url == "" {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("form_type", string(formType)); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, bytes.TrimSpace(out))
	}
	return out, nil
}
