package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Uploader pushes JPEG frames to a relay's /upload endpoint. It is the
// counterpart a capture device runs when the relay itself has no camera.
type Uploader struct {
	baseURL string
	client  *http.Client
}

// NewUploader targets a relay at baseURL, e.g. "http://localhost:5000".
func NewUploader(baseURL string) *Uploader {
	return &Uploader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// UploadFile sends one JPEG file as a multipart frame.
func (u *Uploader) UploadFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return u.Upload(ctx, filepath.Base(path), file)
}

// Upload sends one JPEG frame read from r.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("frame", name)
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload frame: relay returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return nil
}
