package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/transport"
)

type harness struct {
	store    *tokenstore.MemoryStore
	bus      *events.Bus
	recorder *events.Recorder
	manager  *Manager
}

func newHarness(t *testing.T, handler http.HandlerFunc) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	h := &harness{
		store:    tokenstore.NewMemoryStore(),
		bus:      events.NewBus(),
		recorder: &events.Recorder{},
	}
	tr := transport.New(srv.URL, h.store, transport.WithPublisher(h.bus))
	h.manager = NewManager(h.store, tr, h.bus)
	t.Cleanup(h.manager.Close)
	h.bus.Subscribe(h.recorder.Handle)
	return h
}

func profileHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ProfilePath:
			_, _ = io.WriteString(w, body)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

func TestLogin_ThenRefreshMergesCredits(t *testing.T) {
	var auth string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"credits":5}`)
	})

	require.NoError(t, h.manager.Login("abc123"))

	snap := h.manager.State()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Nil(t, snap.Profile, "login does not fetch the profile")

	require.NoError(t, h.manager.Refresh(context.Background()))
	assert.Equal(t, "Bearer abc123", auth)

	credits, ok := h.manager.Credits()
	require.True(t, ok)
	assert.Equal(t, 5, credits)
}

func TestLogin_RejectsBlank(t *testing.T) {
	h := newHarness(t, profileHandler(`{}`))
	assert.ErrorIs(t, h.manager.Login("  "), ErrEmptyCredential)
	_, ok := h.store.Get()
	assert.False(t, ok)
}

func TestLoginLogout_RoundTrip(t *testing.T) {
	var logoutCalls atomic.Int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == LogoutPath {
			logoutCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	for _, credential := range []string{"a", "token-with-dots.x.y", "abc/+=="} {
		require.NoError(t, h.manager.Login(credential))
		got, ok := h.store.Get()
		require.True(t, ok)
		assert.Equal(t, credential, got)

		h.manager.Logout(context.Background())
		_, ok = h.store.Get()
		assert.False(t, ok)
		assert.Equal(t, StatusUnauthenticated, h.manager.State().Status)
	}

	assert.Equal(t, int32(3), logoutCalls.Load(), "remote failure must not block local teardown")
	navs := 0
	for _, ev := range h.recorder.Events() {
		if ev.Kind == events.KindNavigateLogin {
			navs++
			assert.Equal(t, config.LoginPath, ev.Path)
		}
	}
	assert.Equal(t, 3, navs)
}

func TestLogout_CancelledContextStillTearsDown(t *testing.T) {
	h := newHarness(t, profileHandler(`{}`))
	require.NoError(t, h.manager.Login("abc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.manager.Logout(ctx)

	assert.False(t, h.manager.Authenticated())
	assert.Equal(t, 1, h.recorder.Count(events.KindNavigateLogin))
}

func TestRefresh_PartialMergeKeepsFields(t *testing.T) {
	responses := []string{
		`{"id":"u1","email":"ops@bank.test","displayName":"Ops","credits":3,"plan":"pro"}`,
		`{"credits":2}`,
	}
	var n atomic.Int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		_, _ = io.WriteString(w, responses[i])
	})

	require.NoError(t, h.manager.Login("abc"))
	require.NoError(t, h.manager.Refresh(context.Background()))
	require.NoError(t, h.manager.Refresh(context.Background()))

	p := h.manager.State().Profile
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID())
	assert.Equal(t, "ops@bank.test", p.Email())
	assert.Equal(t, "Ops", p.DisplayName())
	assert.Equal(t, "pro", p.Get("plan").String(), "unknown fields are preserved")
	credits, _ := p.Credits()
	assert.Equal(t, 2, credits)
}

func TestRefresh_NotAuthenticated(t *testing.T) {
	h := newHarness(t, profileHandler(`{}`))
	assert.ErrorIs(t, h.manager.Refresh(context.Background()), ErrNotAuthenticated)
}

func TestRefresh_NonObjectBody(t *testing.T) {
	h := newHarness(t, profileHandler(`[1,2,3]`))
	require.NoError(t, h.manager.Login("abc"))

	err := h.manager.Refresh(context.Background())
	require.Error(t, err)
	assert.Nil(t, h.manager.State().Profile)
}

func TestRefresh_ServerError(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"db down"}`)
	})
	require.NoError(t, h.manager.Login("abc"))

	err := h.manager.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierr.KindServerRejected, apierr.KindOf(err))
	assert.True(t, h.manager.Authenticated(), "a failed refresh leaves the session alone")
}

func TestProtectedUnauthorized_InvalidatesSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	require.NoError(t, h.manager.Login("expired"))

	require.NoError(t, h.manager.Refresh(context.Background()), "superseded refresh is a no-op")

	_, ok := h.store.Get()
	assert.False(t, ok)
	assert.Equal(t, StatusUnauthenticated, h.manager.State().Status)
	assert.Equal(t, 1, h.recorder.Count(events.KindAuthorizationExpired))
	assert.Equal(t, 1, h.recorder.Count(events.KindNavigateLogin))
}

func TestRefresh_DropsStaleGeneration(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer first" {
			once.Do(func() { close(entered) })
			<-release
			_, _ = io.WriteString(w, `{"email":"first@bank.test","credits":1}`)
			return
		}
		_, _ = io.WriteString(w, `{"email":"second@bank.test","credits":9}`)
	})

	require.NoError(t, h.manager.Login("first"))
	done := make(chan error, 1)
	go func() { done <- h.manager.Refresh(context.Background()) }()

	<-entered
	require.NoError(t, h.manager.Login("second"))
	close(release)
	require.NoError(t, <-done)
	assert.Nil(t, h.manager.State().Profile, "response for the old credential is dropped")

	require.NoError(t, h.manager.Refresh(context.Background()))
	assert.Equal(t, "second@bank.test", h.manager.State().Profile.Email())
}

func TestInitialize_WithCredential(t *testing.T) {
	h := newHarness(t, profileHandler(`{"email":"ops@bank.test","credits":4}`))
	h.store.Set("restored")

	done := h.manager.Initialize(context.Background())
	assert.Equal(t, StatusAuthenticated, h.manager.State().Status, "authenticated before the fetch completes")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("initial profile fetch did not finish")
	}
	assert.Equal(t, "ops@bank.test", h.manager.State().Profile.Email())

	again := h.manager.Initialize(context.Background())
	assert.Equal(t, done, again, "initialize runs once")
}

func TestInitialize_FetchFailureKeepsState(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h.store.Set("restored")

	<-h.manager.Initialize(context.Background())
	snap := h.manager.State()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Nil(t, snap.Profile)
}

func TestInitialize_WithoutCredential(t *testing.T) {
	h := newHarness(t, profileHandler(`{}`))
	<-h.manager.Initialize(context.Background())
	assert.Equal(t, StatusUnauthenticated, h.manager.State().Status)
}

func TestUpdateProfile(t *testing.T) {
	var sent map[string]string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &sent)
			_, _ = io.WriteString(w, `{"displayName":"Treasury Ops"}`)
			return
		}
		_, _ = io.WriteString(w, `{"email":"ops@bank.test","displayName":"Ops"}`)
	})

	require.NoError(t, h.manager.Login("abc"))
	require.NoError(t, h.manager.Refresh(context.Background()))
	require.NoError(t, h.manager.UpdateProfile(context.Background(), "  Treasury Ops "))

	assert.Equal(t, "Treasury Ops", sent["displayName"])
	p := h.manager.State().Profile
	assert.Equal(t, "Treasury Ops", p.DisplayName())
	assert.Equal(t, "ops@bank.test", p.Email())

	assert.ErrorIs(t, h.manager.UpdateProfile(context.Background(), ""), ErrEmptyDisplayName)
}

func TestProfile_EscapesKeys(t *testing.T) {
	p := newProfile()
	require.True(t, p.merge([]byte(`{"a.b":1,"plain":"x"}`)))
	assert.Equal(t, int64(1), p.Get("a.b").Int())
	assert.Equal(t, "x", p.Get("plain").String())
	assert.False(t, p.Has("a"))

	var nilProfile *Profile
	_, ok := nilProfile.Credits()
	assert.False(t, ok)
	assert.Empty(t, nilProfile.Email())
}
