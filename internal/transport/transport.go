// Package transport is the single outbound path to the conversion API.
//
// Every request gets the live bearer credential (if any) and the standard
// headers. A 401 from a protected path clears the credential, publishes
// authorization_expired and resolves as a superseded no-op rather than an
// error; every other failure is returned as a go-errors envelope that
// apierr.Classify understands.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/monitoring"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/utils"
)

// Header names set on every request.
const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	BearerPrefix        = "Bearer "
)

// HTTPDoer is the subset of *http.Client the transport needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Credentials is what the transport needs from the token store: read for
// header injection, clear for forced invalidation.
type Credentials interface {
	tokenstore.Reader
	tokenstore.Clearer
}

// Request describes one API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as JSON. []byte, json.RawMessage and string are sent as is.
	Body any
}

// Response is a completed call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// Superseded is set when a protected call was rejected and the session
	// has been torn down. Callers treat it as "nothing happened".
	Superseded bool
}

// JSON returns the body as a gjson result.
func (r *Response) JSON() gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Transport is the authorized HTTP client.
type Transport struct {
	baseURL         string
	httpClient      HTTPDoer
	credentials     Credentials
	publisher       events.Publisher
	metrics         *monitoring.Metrics
	protected       *ProtectedSet
	userAgent       string
	maxResponseSize int64
}

// Option configures the Transport.
type Option func(*Transport)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(t *Transport) {
		t.httpClient = c
	}
}

// WithTimeout sets the timeout of the default HTTP client.
// It has no effect after WithHTTPClient.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		if hc, ok := t.httpClient.(*http.Client); ok && timeout > 0 {
			hc.Timeout = timeout
		}
	}
}

// WithPublisher sets where authorization_expired is published.
func WithPublisher(p events.Publisher) Option {
	return func(t *Transport) {
		t.publisher = p
	}
}

// WithMetrics enables request counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithProtectedPrefixes replaces the default protected path prefixes.
func WithProtectedPrefixes(prefixes ...string) Option {
	return func(t *Transport) {
		t.protected = NewProtectedSet(prefixes...)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithMaxResponseSize bounds how much of a response body is read.
func WithMaxResponseSize(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxResponseSize = n
		}
	}
}

// New creates a transport for baseURL.
func New(baseURL string, credentials Credentials, opts ...Option) *Transport {
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}

	t := &Transport{
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
		httpClient: &http.Client{
			Timeout: config.DefaultRequestTimeout,
		},
		protected:       NewProtectedSet(config.DefaultProtectedPrefixes...),
		userAgent:       config.DefaultUserAgent,
		maxResponseSize: config.MaxResponseSize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// FromConfig builds a transport from loaded configuration.
func FromConfig(cfg *config.Config, credentials Credentials, opts ...Option) *Transport {
	base := []Option{
		WithTimeout(cfg.API.Timeout),
		WithUserAgent(cfg.API.UserAgent),
		WithMaxResponseSize(cfg.API.MaxResponseSize),
		WithProtectedPrefixes(cfg.Session.ProtectedPrefixes...),
	}
	return New(cfg.API.BaseURL, credentials, append(base, opts...)...)
}

// BaseURL returns the API base URL without a trailing slash.
func (t *Transport) BaseURL() string { return t.baseURL }

// IsProtected reports whether path is a protected route.
func (t *Transport) IsProtected(path string) bool { return t.protected.Matches(path) }

// =============================================================================
// Request execution
// =============================================================================

// Do executes req.
//
// A nil error with resp.Superseded set means a protected call was rejected and
// the session has already been invalidated.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := t.newRequest(ctx, method, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.recordRequest(false)
		if ctxErr := ctx.Err(); ctxErr != nil && ctxErr != context.DeadlineExceeded {
			return nil, fmt.Errorf("transport: %s %s: %w", method, req.Path, ctxErr)
		}
		log.Debug().Err(err).Str("method", method).Str("path", req.Path).Msg("transport: request failed")
		return nil, apierr.NewNetworkError(err, method, req.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize+1))
	if err != nil {
		t.recordRequest(false)
		return nil, apierr.NewNetworkError(fmt.Errorf("reading response: %w", err), method, req.Path)
	}
	if int64(len(body)) > t.maxResponseSize {
		t.recordRequest(false)
		return nil, apierr.NewDecodeError(
			fmt.Errorf("response exceeds %d bytes", t.maxResponseSize), method, req.Path, resp.StatusCode)
	}

	log.Debug().
		Str("method", method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Str("request_id", httpReq.Header.Get(HeaderRequestID)).
		Msg("transport: response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.recordRequest(true)
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}
	t.recordRequest(false)

	if resp.StatusCode == http.StatusUnauthorized && t.protected.Matches(req.Path) {
		t.expire(req.Path)
		return &Response{Status: resp.StatusCode, Header: resp.Header, Superseded: true}, nil
	}

	if len(body) > 0 {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("path", req.Path).
			Str("body", utils.Truncate(string(body), config.MaxErrorBodyLogLen)).
			Msg("transport: error response")
	}
	return nil, apierr.NewHTTPError(method, req.Path, resp.StatusCode, body)
}

// GetJSON issues a GET and decodes the body into out (if non-nil).
func (t *Transport) GetJSON(ctx context.Context, path string, query url.Values, out any) (*Response, error) {
	return t.doJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// PostJSON issues a POST with payload and decodes the body into out (if non-nil).
func (t *Transport) PostJSON(ctx context.Context, path string, payload, out any) (*Response, error) {
	return t.doJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: payload}, out)
}

// PutJSON issues a PUT with payload and decodes the body into out (if non-nil).
func (t *Transport) PutJSON(ctx context.Context, path string, payload, out any) (*Response, error) {
	return t.doJSON(ctx, Request{Method: http.MethodPut, Path: path, Body: payload}, out)
}

// Delete issues a DELETE.
func (t *Transport) Delete(ctx context.Context, path string) (*Response, error) {
	return t.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

func (t *Transport) doJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := t.Do(ctx, req)
	if err != nil || resp.Superseded || out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return resp, err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, apierr.NewDecodeError(err, req.Method, req.Path, resp.Status)
	}
	return resp, nil
}

func (t *Transport) newRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())

	if t.credentials != nil {
		if credential, ok := t.credentials.Get(); ok {
			httpReq.Header.Set(HeaderAuthorization, BearerPrefix+credential)
		}
	}
	return httpReq, nil
}

// expire tears down the credential after a protected-route rejection.
func (t *Transport) expire(path string) {
	if t.credentials != nil {
		if credential, ok := t.credentials.Get(); ok {
			log.Warn().Str("path", path).Str("token", utils.MaskKey(credential)).
				Msg("transport: protected request rejected, clearing session")
		}
		t.credentials.Clear()
	}
	if t.metrics != nil {
		t.metrics.RecordUnauthorized()
	}
	if t.publisher != nil {
		t.publisher.Publish(events.Event{
			Kind:   events.KindAuthorizationExpired,
			Path:   path,
			Reason: "protected request rejected with 401",
		})
	}
}

func (t *Transport) recordRequest(success bool) {
	if t.metrics != nil {
		t.metrics.RecordRequest(success)
	}
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return utils.MarshalNoEscape(v)
	}
}

