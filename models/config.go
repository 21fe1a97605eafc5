// Package models defines the configuration document and list descriptors
// shared across the pipeline.
package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxArtifactBytes caps the decompressed size of a single artifact.
const DefaultMaxArtifactBytes = 512 << 20

// Config is the root of the configuration document.
type Config struct {
	TmpDir    string       `json:"tmp_dir" yaml:"tmp_dir"`
	OutDir    string       `json:"out_dir" yaml:"out_dir"`
	OutFormat OutputFormat `json:"out_format" yaml:"out_format"`
	Lists     []FilterList `json:"lists" yaml:"lists"`

	// MaxArtifactBytes overrides DefaultMaxArtifactBytes when positive.
	MaxArtifactBytes int64 `json:"max_artifact_bytes,omitempty" yaml:"max_artifact_bytes,omitempty"`
	// AllowInsecureRedirects permits an HTTPS source to redirect to a
	// non-HTTPS target. Off unless a list host genuinely needs it.
	AllowInsecureRedirects bool `json:"allow_insecure_redirects,omitempty" yaml:"allow_insecure_redirects,omitempty"`
}

// ConfigError reports a fatal problem with the configuration document.
// No network or filesystem work happens once one is raised.
type ConfigError struct {
	ListID string // offending list id, empty for document-level problems
	Reason string
}

func (e *ConfigError) Error() string {
	if e.ListID != "" {
		return fmt.Sprintf("config: list %q: %s", e.ListID, e.Reason)
	}
	return "config: " + e.Reason
}

// nameRe constrains ids and tags to strings that are safe as file names.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// LoadConfig reads, decodes, and validates a configuration document.
// JSON is the primary format; .yaml/.yml files decode the same structure.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot decode %s: %v", path, err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the document and compiles every descriptor's regex.
// All violations are ConfigErrors; the first one found is returned.
func (c *Config) Validate() error {
	if c.TmpDir == "" {
		return &ConfigError{Reason: "tmp_dir is required"}
	}
	if c.OutDir == "" {
		return &ConfigError{Reason: "out_dir is required"}
	}
	if c.MaxArtifactBytes < 0 {
		return &ConfigError{Reason: "max_artifact_bytes must not be negative"}
	}

	seen := make(map[string]bool, len(c.Lists))
	for i := range c.Lists {
		l := &c.Lists[i]
		if l.ID == "" {
			return &ConfigError{Reason: fmt.Sprintf("list at index %d has no id", i)}
		}
		if !nameRe.MatchString(l.ID) {
			return &ConfigError{ListID: l.ID, Reason: "id must contain only letters, digits, '.', '_' or '-'"}
		}
		if seen[l.ID] {
			return &ConfigError{ListID: l.ID, Reason: "duplicate list id"}
		}
		seen[l.ID] = true

		if err := validateSource(l.Source); err != nil {
			return &ConfigError{ListID: l.ID, Reason: err.Error()}
		}

		if len(l.Tags) == 0 {
			return &ConfigError{ListID: l.ID, Reason: "at least one tag is required"}
		}
		for _, tag := range l.Tags {
			if !nameRe.MatchString(tag) {
				return &ConfigError{ListID: l.ID, Reason: fmt.Sprintf("tag %q must contain only letters, digits, '.', '_' or '-'", tag)}
			}
		}

		if l.Regex == "" {
			return &ConfigError{ListID: l.ID, Reason: "regex is required"}
		}
		re, err := regexp.Compile(l.Regex)
		if err != nil {
			return &ConfigError{ListID: l.ID, Reason: fmt.Sprintf("invalid regex: %v", err)}
		}
		l.pattern = re
	}
	return nil
}

// validateSource rejects URLs the fetcher could never use.
func validateSource(source string) error {
	if source == "" {
		return fmt.Errorf("source is required")
	}
	parsed, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("source is not a valid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("source must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("source has no host")
	}
	return nil
}

// Tags returns every tag named by any descriptor, deduplicated, in first-seen
// order. Tags with no surviving contributors still produce output documents.
func (c *Config) Tags() []string {
	var tags []string
	seen := make(map[string]bool)
	for _, l := range c.Lists {
		for _, tag := range l.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// MaxBytes returns the effective decompression cap.
func (c *Config) MaxBytes() int64 {
	if c.MaxArtifactBytes > 0 {
		return c.MaxArtifactBytes
	}
	return DefaultMaxArtifactBytes
}

// SaveTo writes the validated document as indented JSON. The pipeline keeps
// the previous run's document next to the cache for inspection.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func sha256sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
