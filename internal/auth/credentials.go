// Package auth obtains session credentials: email/password authentication,
// registration, email verification and the OAuth websocket handoff.
//
// Nothing here stores a credential. Callers hand the returned token to
// session.Manager.Login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/transport"
	"github.com/swiftbridge/convert-client/internal/utils"
)

// API paths.
const (
	AuthenticatePath = "/api/v1/auth/authenticate"
	RegisterPath     = "/api/v1/auth/register"
	VerifyEmailPath  = "/api/v1/auth/verify-email"
)

// Token fields accepted in an authentication response, in priority order.
var tokenFields = []string{"token", "accessToken", "access_token"}

var (
	ErrMissingCredentials = errors.New("auth: email and password are required")
	ErrPasswordTooShort   = errors.New("auth: password too short")
	ErrNoToken            = errors.New("auth: response carried no token")
	ErrEmailInUse         = errors.New("auth: email already in use")
	ErrMissingVerifyToken = errors.New("auth: verification token is required")
	ErrVerifyExpired      = errors.New("auth: verification link expired")
)

// User-visible messages for local failures.
const (
	MessageMissingCredentials = "Please enter both email and password"
	MessagePasswordTooShort   = "Password must be at least 6 characters"
	MessageNoToken            = "Invalid response from server. No token received."
	MessageEmailInUse         = "Email already in use. Please use a different email or sign in."
	MessageMissingVerifyToken = "Invalid verification link - no token provided"
	MessageVerifyExpired      = "Verification link expired or invalid"
	MessageVerified           = "Email verified successfully! You now have 5 free credits."
	MessageOAuthFailed        = "OAuth2 authentication failed. Please try again or use email/password login."
	MessageNoCallbackToken    = "No authentication token received. Please try again."
)

// Doer executes API requests. *transport.Transport satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Client talks to the authentication endpoints.
type Client struct {
	api Doer
}

// NewClient creates an auth client.
func NewClient(api Doer) *Client {
	return &Client{api: api}
}

// Authenticate exchanges email and password for a credential.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", ErrMissingCredentials
	}
	return c.exchange(ctx, AuthenticatePath, email, password)
}

// Register creates an account and returns its first credential.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", ErrMissingCredentials
	}
	if len(password) < config.MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	token, err := c.exchange(ctx, RegisterPath, email, password)
	if err != nil {
		status := apierr.StatusOf(err)
		if status == http.StatusConflict || status == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %w", ErrEmailInUse, err)
		}
		return "", err
	}
	return token, nil
}

// VerifyEmail confirms an address with the token from the verification link.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingVerifyToken
	}

	resp, err := c.api.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   VerifyEmailPath,
		Query:  url.Values{"token": {token}},
	})
	if err != nil {
		if apierr.StatusOf(err) == http.StatusNotFound && apierr.Classify(err).ServerMessage == "" {
			return fmt.Errorf("%w: %w", ErrVerifyExpired, err)
		}
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("auth: verification returned status %d", resp.Status)
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, path, email, password string) (string, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "email", strings.TrimSpace(email))
	body, _ = sjson.SetBytes(body, "password", password)

	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return "", err
	}

	token := ExtractToken(resp.Body)
	if token == "" {
		log.Warn().Str("path", path).Int("status", resp.Status).Msg("auth: response without token")
		if msg := strings.TrimSpace(resp.JSON().Get("message").String()); msg != "" {
			return "", &apierr.Error{
				Kind:          apierr.KindServerRejected,
				Status:        resp.Status,
				Message:       msg,
				ServerMessage: msg,
				Err:           ErrNoToken,
			}
		}
		return "", ErrNoToken
	}
	return token, nil
}

// ExtractToken finds the credential in a response body: a bare JSON string,
// or the first non-blank of token, accessToken, access_token.
func ExtractToken(body []byte) string {
	parsed, ok := utils.ParseJSON(body)
	switch {
	case !ok:
		return ""
	case parsed.Type == gjson.String:
		return strings.TrimSpace(parsed.String())
	case parsed.IsObject():
		return utils.FirstString(parsed, tokenFields...)
	}
	return ""
}

// Message returns the text to show the user for an auth failure.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredentials):
		return MessageMissingCredentials
	case errors.Is(err, ErrPasswordTooShort):
		return MessagePasswordTooShort
	case errors.Is(err, ErrEmailInUse):
		return MessageEmailInUse
	case errors.Is(err, ErrMissingVerifyToken):
		return MessageMissingVerifyToken
	case errors.Is(err, ErrOAuthFailed):
		return MessageOAuthFailed
	case errors.Is(err, ErrNoCallbackToken):
		return MessageNoCallbackToken
	case errors.Is(err, ErrVerifyExpired):
		return MessageVerifyExpired
	case errors.Is(err, ErrNoToken):
		var withMessage *apierr.Error
		if apierr.As(err, &withMessage) {
			return withMessage.Message
		}
		return MessageNoToken
	}
	return apierr.Classify(err).Message
}
