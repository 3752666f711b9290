// Package fetch retrieves manifests and sample files from http(s) URLs,
// file:// URLs or plain local paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

// MaxManifestSize bounds manifest bodies read into memory
const MaxManifestSize = 16 * 1024 * 1024

const userAgent = "strudel-samples/0.1"

// Client fetches remote and local resources
type Client struct {
	http *http.Client
}

// New creates a client with a per-request timeout
func New(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewWithHTTP wraps an existing http.Client (tests use httptest clients)
func NewWithHTTP(hc *http.Client) *Client {
	return &Client{http: hc}
}

// IsRemote reports whether src is an http(s) URL
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// IsAbsolute reports whether a sample reference can be fetched without a base
func IsAbsolute(src string) bool {
	return IsRemote(src) || strings.HasPrefix(src, "file://")
}

// LocalPath converts a file:// URL to a path; other strings are returned unchanged
func LocalPath(src string) string {
	if strings.HasPrefix(src, "file://") {
		if u, err := url.Parse(src); err == nil {
			return u.Path
		}
		return strings.TrimPrefix(src, "file://")
	}
	return src
}

// Get reads a whole resource into memory
func (c *Client) Get(ctx context.Context, src string) ([]byte, error) {
	body, err := c.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxManifestSize+1))
	if err != nil {
		return nil, apperrors.NewFetchError(src, 0, err)
	}
	if len(data) > MaxManifestSize {
		return nil, apperrors.NewFetchError(src, 0, fmt.Errorf("body exceeds %d bytes", MaxManifestSize))
	}
	return data, nil
}

// Download streams a resource to dst and returns the byte count.
// dst is removed again if the transfer fails midway.
func (c *Client) Download(ctx context.Context, src, dst string) (int64, error) {
	body, err := c.open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, apperrors.NewFetchError(src, 0, err)
	}
	if n == 0 {
		os.Remove(dst)
		return 0, apperrors.NewFetchError(src, 0, fmt.Errorf("empty body"))
	}
	return n, nil
}

func (c *Client) open(ctx context.Context, src string) (io.ReadCloser, error) {
	if !IsRemote(src) {
		f, err := os.Open(LocalPath(src))
		if err != nil {
			return nil, apperrors.NewFetchError(src, 0, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, apperrors.NewFetchError(src, 0, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewFetchError(src, 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperrors.NewFetchError(src, resp.StatusCode, nil)
	}
	return resp.Body, nil
}
