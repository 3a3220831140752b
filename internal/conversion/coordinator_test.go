package conversion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/journal"
	"github.com/swiftbridge/convert-client/internal/monitoring"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/transport"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *memoryRecorder) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type setup struct {
	calls    atomic.Int32
	recorder *events.Recorder
	journal  *memoryRecorder
	metrics  *monitoring.Metrics
	coord    *Coordinator
}

func newSetup(t *testing.T, status int, body string) *setup {
	t.Helper()
	s := &setup{
		recorder: &events.Recorder{},
		journal:  &memoryRecorder{},
		metrics:  monitoring.NewMetrics(),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	bus := events.NewBus()
	bus.Subscribe(s.recorder.Handle)
	tr := transport.New(srv.URL, tokenstore.NewMemoryStore(), transport.WithPublisher(bus))
	s.coord = NewCoordinator(tr, WithPublisher(bus), WithRecorder(s.journal), WithMetrics(s.metrics))
	return s
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            string
		wantTag         Tag
		wantMessage     string
		wantRemediation apierr.Remediation
	}{
		{
			name:            "insufficient credits",
			status:          http.StatusPaymentRequired,
			body:            `{"code":"INSUFFICIENT_CREDITS","message":"Credits exhausted"}`,
			wantTag:         TagQuotaExceeded,
			wantMessage:     apierr.MessageQuotaExceeded,
			wantRemediation: apierr.RemediationPurchaseCredits,
		},
		{
			name:            "anonymous limit",
			status:          http.StatusForbidden,
			body:            `{"code":"ANONYMOUS_LIMIT_REACHED"}`,
			wantTag:         TagAnonymousLimitReached,
			wantMessage:     apierr.MessageAnonymousLimitReached,
			wantRemediation: apierr.RemediationRegister,
		},
		{
			name:        "server message verbatim",
			status:      http.StatusBadRequest,
			body:        `{"message":"Invalid field 32A"}`,
			wantTag:     TagFailure,
			wantMessage: "Invalid field 32A",
		},
		{
			name:        "error field",
			status:      http.StatusUnprocessableEntity,
			body:        `{"error":"Block 4 missing"}`,
			wantTag:     TagFailure,
			wantMessage: "Block 4 missing",
		},
		{
			name:        "nothing usable",
			status:      http.StatusInternalServerError,
			body:        ``,
			wantTag:     TagFailure,
			wantMessage: MessageFallback,
		},
		{
			name:        "unauthorized without message",
			status:      http.StatusUnauthorized,
			body:        `{}`,
			wantTag:     TagFailure,
			wantMessage: MessageFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t, tt.status, tt.body)

			out := s.coord.Submit(context.Background(), Request{Source: "{1:F01BANKBEBBAXXX}", MessageType: MT103})

			assert.Equal(t, tt.wantTag, out.Tag)
			assert.Equal(t, tt.wantMessage, out.Message)
			assert.Equal(t, tt.wantRemediation, out.Remediation)
			assert.Empty(t, out.XML)
			assert.Equal(t, int32(1), s.calls.Load(), "exactly one call, no retries")
			assert.Zero(t, s.recorder.Count(events.KindRefreshCredits), "no refresh signal on failure")
		})
	}
}

func TestSubmit_Success(t *testing.T) {
	s := newSetup(t, http.StatusOK, `{"xml":"<xml/>"}`)

	out := s.coord.Submit(context.Background(), Request{Source: "{1:F01BANKBEBBAXXX}{4::20:REF-1-}", MessageType: MT103})

	require.True(t, out.OK())
	assert.Equal(t, "<xml/>", out.XML)
	assert.Empty(t, out.Kind)
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, 1, s.recorder.Count(events.KindRefreshCredits), "exactly one refresh signal")

	require.Len(t, s.journal.entries, 1)
	assert.Equal(t, "MT103", s.journal.entries[0].MessageType)
	assert.Equal(t, "success", s.journal.entries[0].Outcome)
	assert.Equal(t, int64(1), s.metrics.Snapshot().Conversions.Success)
}

func TestSubmit_RequestBody(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ConvertPath, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = io.WriteString(w, `{"xml":"<Document/>"}`)
	}))
	defer srv.Close()

	c := NewCoordinator(transport.New(srv.URL, tokenstore.NewMemoryStore()))
	out := c.Submit(context.Background(), Request{Source: ":20:REF\n:32A:260101EUR100,", MessageType: MT202COV})

	require.True(t, out.OK())
	assert.Equal(t, ":20:REF\n:32A:260101EUR100,", got["mtMessage"])
	assert.Equal(t, "MT202COV", got["messageType"])
}

func TestSubmit_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	metrics := monitoring.NewMetrics()
	c := NewCoordinator(transport.New(addr, tokenstore.NewMemoryStore()), WithMetrics(metrics))
	out := c.Submit(context.Background(), Request{Source: "x", MessageType: MT940})

	assert.Equal(t, TagFailure, out.Tag)
	assert.Equal(t, apierr.KindNetworkUnreachable, out.Kind)
	assert.Equal(t, apierr.MessageNetworkUnreachable, out.Message)
	assert.Error(t, out.Err)
	assert.Equal(t, int64(1), metrics.Snapshot().Conversions.Failure)
}

func TestSubmit_BareXMLBody(t *testing.T) {
	s := newSetup(t, http.StatusOK, `<Document xmlns="urn:iso:std:iso:20022"/>`)
	out := s.coord.Submit(context.Background(), Request{Source: "x", MessageType: MT102})
	require.True(t, out.OK())
	assert.Equal(t, `<Document xmlns="urn:iso:std:iso:20022"/>`, out.XML)
}

func TestParseMessageType(t *testing.T) {
	for _, in := range []string{"MT103", "mt103", " 103 "} {
		mt, err := ParseMessageType(in)
		require.NoError(t, err, in)
		assert.Equal(t, MT103, mt)
	}
	mt, err := ParseMessageType("202cov")
	require.NoError(t, err)
	assert.Equal(t, MT202COV, mt)

	_, err = ParseMessageType("MT999")
	assert.Error(t, err)
	_, err = ParseMessageType("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(Request{Source: "  ", MessageType: MT103}), ErrEmptySource)
	assert.Error(t, Validate(Request{Source: "x", MessageType: "MT999"}))
	assert.NoError(t, Validate(Request{Source: "x", MessageType: MT940}))
}
