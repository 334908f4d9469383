package uploads

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"textile-sync/internal/deadline"
	"textile-sync/internal/models"
	"textile-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObjectStore is the external durable asset store, specified at its
// interface boundary.
type ObjectStore interface {
	// Upload stores the bytes and returns a public URL.
	Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error)
}

// Pipeline moves a binary asset to durable storage, or falls back to an
// embedded-data encoding when the store is unavailable. Uploads never block
// the surrounding workflow on storage availability: Upload always returns a
// usable reference.
type Pipeline struct {
	store   ObjectStore
	bucket  string
	timeout time.Duration
	actor   func() *models.Actor
	logger  *zap.Logger
}

// NewPipeline wires the pipeline. actor supplies the current session Actor
// so offline-cached identities can skip the remote store entirely.
func NewPipeline(store ObjectStore, bucket string, timeout time.Duration, actor func() *models.Actor) *Pipeline {
	return &Pipeline{
		store:   store,
		bucket:  bucket,
		timeout: timeout,
		actor:   actor,
		logger:  util.GetLogger(),
	}
}

// Upload returns a durable reference to the asset: the store's public URL on
// success, an embedded data URI on any failure or for offline sessions.
func (p *Pipeline) Upload(ctx context.Context, filename string, data []byte) string {
	util.UploadsTotal.Inc()
	contentType := http.DetectContentType(data)

	if a := p.actor(); a != nil && a.Authenticity == models.AuthenticityCachedOffline {
		util.UploadFallbacksTotal.WithLabelValues("offline").Inc()
		return dataURI(contentType, data)
	}

	objectPath := objectPath(filename)
	publicURL, err := deadline.Race(ctx, p.timeout, func(ctx context.Context) (string, error) {
		return p.store.Upload(ctx, p.bucket, objectPath, data, contentType)
	})
	if err != nil {
		reason := "error"
		if deadline.Exceeded(err) {
			reason = "timeout"
		}
		util.UploadFallbacksTotal.WithLabelValues(reason).Inc()
		p.logger.Warn("Upload fell back to embedded data",
			zap.String("filename", filename),
			zap.String("reason", reason),
			zap.Error(err))
		return dataURI(contentType, data)
	}

	return publicURL
}

// CacheBust appends a one-shot token so a reference reused immediately for
// display is not served from a stale cache. Data URIs pass through.
func CacheBust(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return ref
	}
	sep := "?"
	if strings.Contains(ref, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sv=%d", ref, sep, time.Now().UnixMilli())
}

func dataURI(contentType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}

// objectPath builds a collision-free object name preserving the original
// extension.
func objectPath(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return uuid.New().String() + ext
}

// HTTPStore uploads assets to an HTTP object storage service with a
// bucket/path layout. The public reference is the upload URL itself.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (s *HTTPStore) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	target := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(bucket), url.PathEscape(objectPath))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("object store returned status %d", resp.StatusCode)
	}
	return target, nil
}
