package models

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// CompressionKind identifies how a fetched artifact is packed.
type CompressionKind int

const (
	// CompressionGz is a plain gzip stream holding the list text.
	CompressionGz CompressionKind = iota
	// CompressionTarGz is a gzip-compressed tar archive; the list text is a
	// single member inside it.
	CompressionTarGz
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionGz:
		return "Gz"
	case CompressionTarGz:
		return "TarGz"
	}
	return fmt.Sprintf("CompressionKind(%d)", int(k))
}

// Compression describes the packing of a fetched artifact. A nil *Compression
// on a FilterList means the artifact is plain text.
type Compression struct {
	Kind CompressionKind
	// MemberPath is the path of the archive member holding the list,
	// relative to the archive root. Set iff Kind is CompressionTarGz.
	MemberPath string
}

// compressionWire is the on-disk shape of a compression declaration:
// {"type": "Gz"} or {"type": "TarGz", "archive_list_file": "<path>"}.
type compressionWire struct {
	Type            string `json:"type" yaml:"type"`
	ArchiveListFile string `json:"archive_list_file,omitempty" yaml:"archive_list_file,omitempty"`
}

func (c *Compression) fromWire(w compressionWire) error {
	switch w.Type {
	case "Gz":
		if w.ArchiveListFile != "" {
			return fmt.Errorf("archive_list_file is only valid for TarGz compression")
		}
		c.Kind = CompressionGz
		c.MemberPath = ""
	case "TarGz":
		if w.ArchiveListFile == "" {
			return fmt.Errorf("TarGz compression requires archive_list_file")
		}
		c.Kind = CompressionTarGz
		c.MemberPath = w.ArchiveListFile
	case "":
		return fmt.Errorf("compression requires a type (valid: Gz, TarGz)")
	default:
		return fmt.Errorf("unknown compression type %q (valid: Gz, TarGz)", w.Type)
	}
	return nil
}

func (c *Compression) toWire() compressionWire {
	return compressionWire{Type: c.Kind.String(), ArchiveListFile: c.MemberPath}
}

func (c Compression) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toWire())
}

func (c *Compression) UnmarshalJSON(data []byte) error {
	var w compressionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("compression must be an object: %w", err)
	}
	return c.fromWire(w)
}

func (c Compression) MarshalYAML() (interface{}, error) {
	return c.toWire(), nil
}

func (c *Compression) UnmarshalYAML(value *yaml.Node) error {
	var w compressionWire
	if err := value.Decode(&w); err != nil {
		return fmt.Errorf("compression must be a mapping: %w", err)
	}
	return c.fromWire(w)
}

// FilterList describes one remote block list: where to fetch it, how it is
// packed, how to pull entries out of it, and which tags collect the result.
// Descriptors are decoded once from the configuration document and treated as
// immutable for the rest of the run.
type FilterList struct {
	ID          string       `json:"id" yaml:"id"`
	Source      string       `json:"source" yaml:"source"`
	Tags        []string     `json:"tags" yaml:"tags"`
	Regex       string       `json:"regex" yaml:"regex"`
	Comment     string       `json:"comment,omitempty" yaml:"comment,omitempty"`
	Compression *Compression `json:"compression,omitempty" yaml:"compression,omitempty"`

	// pattern is compiled during Config.Validate; descriptors that reach the
	// pipeline always carry a usable pattern.
	pattern *regexp.Regexp
}

// Pattern returns the compiled extraction regex. Config.Validate compiles it
// ahead of time; an unvalidated descriptor compiles on first use and panics
// if the expression is malformed.
func (l *FilterList) Pattern() *regexp.Regexp {
	if l.pattern == nil {
		l.pattern = regexp.MustCompile(l.Regex)
	}
	return l.pattern
}

// Fingerprint is a stable hash of the descriptor's wire form. A cached
// artifact whose fingerprint no longer matches the descriptor is stale even
// when the remote bytes are unchanged.
func (l *FilterList) Fingerprint() string {
	raw, _ := json.Marshal(l)
	return fmt.Sprintf("%x", sha256sum(raw))
}
