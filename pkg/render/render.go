// Package render turns a tag's merged entry set into output document bytes.
// Rendering is pure: the same entries always produce the same bytes, so a
// downstream consumer diffing committed documents only sees real changes.
package render

import (
	"strings"

	"github.com/dtnitsch/blocklist-curator/models"
)

// Hostsfile renders entries as hosts-file lines, one "0.0.0.0 <entry>" per
// line. An empty set renders as an empty document.
func Hostsfile(entries []string) []byte {
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString("0.0.0.0 ")
		sb.WriteString(entry)
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// Lua renders entries as a Lua table literal returning an array of strings.
// The closing brace carries no trailing newline; consumers loadstring the
// file as-is.
func Lua(entries []string) []byte {
	var sb strings.Builder
	sb.WriteString("return {\n")
	for _, entry := range entries {
		sb.WriteString("  \"")
		sb.WriteString(entry)
		sb.WriteString("\",\n")
	}
	sb.WriteString("}")
	return []byte(sb.String())
}

// Render dispatches on the configured output format.
func Render(format models.OutputFormat, entries []string) []byte {
	if format == models.FormatLua {
		return Lua(entries)
	}
	return Hostsfile(entries)
}

// FileName is the document name for a tag in the given format.
func FileName(tag string, format models.OutputFormat) string {
	return tag + format.Ext()
}
