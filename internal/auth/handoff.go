package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/swiftbridge/convert-client/internal/utils"
)

// HandoffPath is the websocket endpoint that relays OAuth results.
const HandoffPath = "/ws/auth"

// Message types pushed by the handoff endpoint.
const (
	msgSession = "session"
	msgToken   = "token"
	msgError   = "error"
)

// ErrNotConnected is returned by WaitForToken before Connect.
var ErrNotConnected = errors.New("auth: handoff not connected")

// Handoff receives an OAuth credential from the backend over a websocket.
// The shell has no browser callback to land on, so the backend pushes the
// token to the connection that started the flow, matched by state.
type Handoff struct {
	baseURL string
	state   string
	conn    *websocket.Conn
	mu      sync.Mutex
}

// NewHandoff prepares a handoff against the API at baseURL.
func NewHandoff(baseURL string) *Handoff {
	return &Handoff{
		baseURL: strings.TrimRight(baseURL, "/"),
		state:   newState(),
	}
}

// State returns the CSRF state sent to the backend.
func (h *Handoff) State() string { return h.state }

// Connect dials the backend and waits for the authorize URL the user must open.
func (h *Handoff) Connect(ctx context.Context) (authorizeURL string, err error) {
	wsURL := toWebSocketURL(h.baseURL) + HandoffPath + "?state=" + url.QueryEscape(h.state)

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return "", fmt.Errorf("failed to connect to auth server: %w", err)
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	msg, err := h.read(ctx)
	if err != nil {
		_ = h.Close()
		return "", fmt.Errorf("failed to read session message: %w", err)
	}

	switch msg.Get("type").String() {
	case msgSession:
		authorizeURL = msg.Get("authorize_url").String()
		if authorizeURL == "" {
			_ = h.Close()
			return "", errors.New("session message without authorize_url")
		}
		return authorizeURL, nil
	case msgError:
		_ = h.Close()
		return "", fmt.Errorf("auth server error: %s", msg.Get("error").String())
	default:
		_ = h.Close()
		return "", fmt.Errorf("unexpected message type: %s (expected session)", msg.Get("type").String())
	}
}

// WaitForToken blocks until the backend pushes the credential. ctx bounds the wait.
func (h *Handoff) WaitForToken(ctx context.Context) (string, error) {
	msg, err := h.read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return "", err
		}
		return "", fmt.Errorf("failed waiting for token: %w", err)
	}

	switch msg.Get("type").String() {
	case msgToken:
		token := strings.TrimSpace(msg.Get("token").String())
		if token == "" {
			return "", errors.New("received empty token from server")
		}
		return token, nil
	case msgError:
		return "", fmt.Errorf("%w: %s", ErrOAuthFailed, msg.Get("error").String())
	default:
		return "", fmt.Errorf("unexpected message type: %s (expected token)", msg.Get("type").String())
	}
}

// Close closes the connection. Safe to call more than once.
func (h *Handoff) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil {
		err := h.conn.Close(websocket.StatusNormalClosure, "done")
		h.conn = nil
		return err
	}
	return nil
}

func (h *Handoff) read(ctx context.Context) (gjson.Result, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		return gjson.Result{}, ErrNotConnected
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	msg, ok := utils.ParseJSON(data)
	if !ok {
		return gjson.Result{}, errors.New("invalid JSON message")
	}
	return msg, nil
}

// newState returns 32 random bytes hex encoded, or a random UUID if the
// system source fails.
func newState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

// toWebSocketURL converts an HTTP(S) URL to a WS(S) URL.
func toWebSocketURL(httpURL string) string {
	if strings.HasPrefix(httpURL, "https://") {
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	}
	if strings.HasPrefix(httpURL, "http://") {
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}
