// Package archive decodes fetched artifacts into list text.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/dtnitsch/blocklist-curator/models"
)

var (
	// ErrCorrupt marks gzip or tar structure that cannot be decoded.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrMemberNotFound marks a TarGz artifact missing its declared member.
	ErrMemberNotFound = errors.New("archive member not found")
	// ErrTooLarge marks an artifact whose decoded size exceeds the cap.
	ErrTooLarge = errors.New("artifact exceeds size limit")
	// ErrNotText marks decoded bytes that are not valid UTF-8.
	ErrNotText = errors.New("artifact is not valid UTF-8 text")
)

// Reader decodes raw artifacts according to their descriptor's compression.
// The decoded size is capped so a hostile or misconfigured source cannot
// exhaust memory.
type Reader struct {
	maxBytes int64
}

// NewReader returns a Reader with the given decoded-size cap. Non-positive
// caps fall back to the package default.
func NewReader(maxBytes int64) *Reader {
	if maxBytes <= 0 {
		maxBytes = models.DefaultMaxArtifactBytes
	}
	return &Reader{maxBytes: maxBytes}
}

// Decode returns the list text held by raw. A nil compression means raw is
// already the text. The decoded bytes must be valid UTF-8 in every case.
func (r *Reader) Decode(raw []byte, comp *models.Compression) ([]byte, error) {
	var text []byte
	var err error
	switch {
	case comp == nil:
		if int64(len(raw)) > r.maxBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
		}
		text = raw
	case comp.Kind == models.CompressionGz:
		text, err = r.gunzip(raw)
	case comp.Kind == models.CompressionTarGz:
		text, err = r.extractMember(raw, comp.MemberPath)
	default:
		return nil, fmt.Errorf("unsupported compression kind %v", comp.Kind)
	}
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(text) {
		return nil, ErrNotText
	}
	return text, nil
}

func (r *Reader) gunzip(raw []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()
	return r.readCapped(gz)
}

// extractMember scans the tar stream for the declared member. Paths compare
// after cleaning, so "./dir/list" in a header matches "dir/list" in config.
func (r *Reader) extractMember(raw []byte, member string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	want := path.Clean(member)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if path.Clean(hdr.Name) != want {
			continue
		}
		return r.readCapped(tr)
	}
	return nil, fmt.Errorf("%w: %q", ErrMemberNotFound, member)
}

func (r *Reader) readCapped(src io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, r.maxBytes)
	}
	return data, nil
}
