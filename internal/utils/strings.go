// Package utils provides common utility functions.
package utils

// MaskKey masks a bearer credential for safe logging (shows first 8 and last 4 chars).
// Credentials must never reach logs or the journal in clear.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// MaskKeyShort masks a credential showing only first 4 and last 4 chars.
// Used by the shell's whoami output.
func MaskKeyShort(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Truncate shortens s to n bytes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
