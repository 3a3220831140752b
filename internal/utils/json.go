package utils

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// MarshalNoEscape marshals JSON without HTML escaping.
// MT blocks and XML payloads carry '<', '>' and '&', which must reach the
// server as typed rather than as < escapes.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline; remove it for parity with json.Marshal.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// ParseJSON parses body, reporting false when it is not valid JSON.
func ParseJSON(body []byte) (gjson.Result, bool) {
	if len(bytes.TrimSpace(body)) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(body), true
}

// FirstString returns the first field of r holding a non-blank string, trimmed.
func FirstString(r gjson.Result, fields ...string) string {
	for _, field := range fields {
		v := r.Get(field)
		if v.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}
