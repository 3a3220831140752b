package auth

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrOAuthFailed is reported when the provider redirected with an error.
	ErrOAuthFailed = errors.New("auth: oauth provider returned an error")
	// ErrNoCallbackToken is reported when a callback carries neither token nor error.
	ErrNoCallbackToken = errors.New("auth: callback carried no token")
)

// ParseCallback extracts the credential from an OAuth callback URL or bare
// query string (token=... or error=...). An error parameter wins.
func ParseCallback(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", ErrNoCallbackToken
	}
	if values.Get("error") != "" {
		return "", ErrOAuthFailed
	}
	if token := strings.TrimSpace(values.Get("token")); token != "" {
		return token, nil
	}
	return "", ErrNoCallbackToken
}
