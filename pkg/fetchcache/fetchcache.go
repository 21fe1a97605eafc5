// Package fetchcache stores fetched artifacts on disk between runs, one per
// list descriptor, each with a fingerprint sidecar used to decide reuse.
package fetchcache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/blocklist-curator/pkg/storage"
)

const metaSuffix = ".meta"

// Fingerprint is the sidecar recorded next to each cached artifact.
type Fingerprint struct {
	// ETag is the validator the server sent with the artifact, if any.
	ETag string `json:"etag,omitempty"`
	// ContentLength is the stored artifact size; compared against the
	// remote Content-Length when no ETag is available.
	ContentLength int64 `json:"content_length"`
	// SHA256 guards against torn or tampered cache files.
	SHA256 string `json:"sha256"`
	// ConfigHash is the owning descriptor's fingerprint at fetch time.
	// A descriptor edit invalidates the artifact even when the remote
	// bytes are unchanged.
	ConfigHash string    `json:"config_hash"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Cache is a disk cache keyed by list id. Distinct ids never share files, so
// concurrent workers can write without coordination.
type Cache struct {
	dir   string
	store *storage.Storage
}

// New opens a cache rooted at dir, creating the directory when absent.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, store: &storage.Storage{}}, nil
}

// ArtifactPath is the on-disk location of a list's cached artifact.
func (c *Cache) ArtifactPath(id string) string {
	return filepath.Join(c.dir, id)
}

func (c *Cache) metaPath(id string) string {
	return filepath.Join(c.dir, id+metaSuffix)
}

// Get returns the cached artifact and its fingerprint. A missing artifact,
// unreadable sidecar, or content hash mismatch is a plain miss.
func (c *Cache) Get(id string) ([]byte, *Fingerprint, bool) {
	metaRaw, err := os.ReadFile(c.metaPath(id))
	if err != nil {
		return nil, nil, false
	}
	var fp Fingerprint
	if err := json.Unmarshal(metaRaw, &fp); err != nil {
		return nil, nil, false
	}

	data, err := os.ReadFile(c.ArtifactPath(id))
	if err != nil {
		return nil, nil, false
	}
	if contentHash(data) != fp.SHA256 {
		return nil, nil, false
	}
	return data, &fp, true
}

// Put stores the artifact and rewrites its sidecar. The content hash and
// stored length are computed here; callers fill in the rest.
func (c *Cache) Put(id string, data []byte, fp Fingerprint) error {
	fp.SHA256 = contentHash(data)
	fp.ContentLength = int64(len(data))

	if err := c.store.SaveFile(c.ArtifactPath(id), data); err != nil {
		return fmt.Errorf("failed to cache artifact %s: %w", id, err)
	}
	metaRaw, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint for %s: %w", id, err)
	}
	if err := c.store.SaveFile(c.metaPath(id), metaRaw); err != nil {
		return fmt.Errorf("failed to cache fingerprint for %s: %w", id, err)
	}
	return nil
}

// contentHash computes the SHA256 of data as a hex string.
func contentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}
