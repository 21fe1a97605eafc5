// Package extract pulls entity strings out of decoded list text, one line at
// a time.
package extract

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
)

// maxLineBytes caps a single line; block lists are line-oriented and a longer
// line means the artifact is not the list it claims to be.
const maxLineBytes = 1 << 20

// Extractor scans list text line by line and yields the first regex match of
// each matching line. The scan is lazy and restartable; Reset rewinds to the
// start of the same text.
type Extractor struct {
	text    []byte
	pattern *regexp.Regexp
	scanner *bufio.Scanner
	line    int
	err     error
}

// New returns an Extractor positioned at the start of text. The pattern's
// first capture group selects the entry; a pattern without groups yields the
// whole match.
func New(text []byte, pattern *regexp.Regexp) *Extractor {
	e := &Extractor{text: text, pattern: pattern}
	e.Reset()
	return e
}

// Reset rewinds the extractor to the start of its text.
func (e *Extractor) Reset() {
	e.scanner = bufio.NewScanner(bytes.NewReader(e.text))
	e.scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	e.line = 0
	e.err = nil
}

// Next returns the next entry in file order. It reports false when the text
// is exhausted or scanning failed; check Err to tell the two apart.
// Non-matching lines are skipped silently.
func (e *Extractor) Next() (string, bool) {
	if e.err != nil {
		return "", false
	}
	for e.scanner.Scan() {
		e.line++
		m := e.pattern.FindSubmatch(e.scanner.Bytes())
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != nil {
			return string(m[1]), true
		}
		return string(m[0]), true
	}
	if err := e.scanner.Err(); err != nil {
		e.err = fmt.Errorf("failed to scan line %d: %w", e.line+1, err)
	}
	return "", false
}

// Err reports the scan error that terminated the extractor, if any.
func (e *Extractor) Err() error {
	return e.err
}

// All drains the extractor from its current position.
func (e *Extractor) All() ([]string, error) {
	var entries []string
	for {
		entry, ok := e.Next()
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	return entries, e.Err()
}
