package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/balkashynov/dtr/internal/evidence"
)

// ErrTransportRestricted means the photo cannot be uploaded from this host
// (no public endpoint, or the endpoint refuses binary uploads). The
// reconciler embeds the photo inline instead.
var ErrTransportRestricted = errors.New("evidence upload transport restricted")

// Uploader stores an evidence photo and returns its durable URL
type Uploader interface {
	Upload(ctx context.Context, path string, p *evidence.Payload) (string, error)
}

// EvidencePath is the object path of a session photo
func EvidencePath(uid, key string) string {
	return "evidence/" + uid + "/" + key + ".jpg"
}

// escapePath escapes each segment of an object path for use in a URL
func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// DBUploader keeps photos in the remote store's evidence table. They are
// served by the API under publicBase.
type DBUploader struct {
	store      *Store
	publicBase string
}

// NewDBUploader creates a DBUploader. Without a public base URL photos
// cannot be linked, so uploads report ErrTransportRestricted.
func NewDBUploader(store *Store, publicBase string) *DBUploader {
	return &DBUploader{store: store, publicBase: strings.TrimRight(publicBase, "/")}
}

func (u *DBUploader) Upload(ctx context.Context, path string, p *evidence.Payload) (string, error) {
	if u.publicBase == "" {
		return "", ErrTransportRestricted
	}
	if err := u.store.PutEvidence(ctx, &Evidence{Path: path, ContentType: p.ContentType, Data: p.Data}); err != nil {
		return "", fmt.Errorf("store evidence: %w", err)
	}
	return u.publicBase + "/" + escapePath(path), nil
}

// HTTPUploader PUTs photos to an object endpoint
type HTTPUploader struct {
	client   *http.Client
	endpoint string
}

// NewHTTPUploader creates an uploader for endpoint. client may be nil.
func NewHTTPUploader(endpoint string, client *http.Client) *HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUploader{client: client, endpoint: strings.TrimRight(endpoint, "/")}
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (u *HTTPUploader) Upload(ctx context.Context, path string, p *evidence.Payload) (string, error) {
	target := u.endpoint + "/" + escapePath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(p.Data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", p.ContentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnsupportedMediaType:
		return "", fmt.Errorf("%w: %s", ErrTransportRestricted, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("upload evidence: unexpected status %s", resp.Status)
	}

	var body uploadResponse
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	if body.URL != "" {
		return body.URL, nil
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	return target, nil
}
