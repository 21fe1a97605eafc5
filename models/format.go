package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects the syntax rendered for each tag's merged set.
type OutputFormat int

const (
	// FormatHostsfile renders one "0.0.0.0 <entry>" line per entry.
	FormatHostsfile OutputFormat = iota
	FormatLua                    // Lua table literal, one quoted entry per line
)

// formatNames are the wire values accepted in configuration documents.
var formatNames = map[string]OutputFormat{
	"Hostsfile": FormatHostsfile,
	"Lua":       FormatLua,
}

// ParseOutputFormat resolves a configuration string to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	if f, ok := formatNames[s]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown output format %q (valid: Hostsfile, Lua)", s)
}

func (f OutputFormat) String() string {
	switch f {
	case FormatHostsfile:
		return "Hostsfile"
	case FormatLua:
		return "Lua"
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}

// Ext returns the file extension for documents in this format.
func (f OutputFormat) Ext() string {
	if f == FormatLua {
		return ".lua"
	}
	return ".hosts"
}

func (f OutputFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *OutputFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("output format must be a string: %w", err)
	}
	parsed, err := ParseOutputFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f OutputFormat) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (f *OutputFormat) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("output format must be a string: %w", err)
	}
	parsed, err := ParseOutputFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
