// Package utils holds small JSON helpers shared across adapters and the
// tool registry.
package utils

import (
	"encoding/json"
	"fmt"
)

// PrettyJSON renders v as indented JSON for debug logging. Falls back to a
// Go-syntax dump if v can't be marshaled (never panics on caller data).
func PrettyJSON(v any) string {
	s, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(s)
}

// Transcode round-trips in through JSON encoding into out, the idiomatic
// way to convert a typed Go value (e.g. a jsonschema-tagged struct) into a
// generic map[string]any/any shape a schema compiler expects.
func Transcode(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("transcode: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transcode: unmarshal: %w", err)
	}
	return nil
}
