// Package fetcher retrieves list artifacts over HTTP.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dtnitsch/blocklist-curator/pkg/fetchcache"
)

const userAgent = "blocklist-curator/1.0"

// DefaultTimeout bounds a single request including the body read.
const DefaultTimeout = 60 * time.Second

type Fetcher struct {
	client *http.Client
}

// Options tune the HTTP client.
type Options struct {
	Timeout time.Duration
	// AllowInsecureRedirects permits an https request to follow a redirect
	// onto a non-https target.
	AllowInsecureRedirects bool
}

func NewFetcher(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	if !opts.AllowInsecureRedirects {
		client.CheckRedirect = refuseInsecureRedirect
	}
	return &Fetcher{client: client}
}

// refuseInsecureRedirect stops an https chain from being downgraded.
func refuseInsecureRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if via[0].URL.Scheme == "https" && req.URL.Scheme != "https" {
		return fmt.Errorf("refusing redirect from https to %s", req.URL.Scheme)
	}
	return nil
}

// GetBytes downloads url and returns the body plus the response ETag.
func (f *Fetcher) GetBytes(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("failed to fetch list, status code: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return bodyBytes, resp.Header.Get("ETag"), nil
}

// RemoteUnchanged asks the server whether the cached artifact is still
// current. ETags compare when both sides have one; otherwise the advertised
// Content-Length must equal the stored size. A server that reports neither
// counts as changed.
func (f *Fetcher) RemoteUnchanged(ctx context.Context, url string, fp *fetchcache.Fingerprint) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to make HEAD request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("HEAD request failed, status code: %d", resp.StatusCode)
	}

	if etag := resp.Header.Get("ETag"); etag != "" && fp.ETag != "" {
		return etag == fp.ETag, nil
	}
	return resp.ContentLength >= 0 && resp.ContentLength == fp.ContentLength, nil
}
