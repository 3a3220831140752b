// Package session owns the authentication state of the process.
//
// The Manager is the only writer of the token store (apart from the
// transport's forced clear) and the only component that decides whether the
// process is signed in. Consumers read State() or depend on the small
// interfaces they need.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/transport"
	"github.com/swiftbridge/convert-client/internal/utils"
)

// API paths used by the manager.
const (
	ProfilePath = "/api/v1/profile"
	LogoutPath  = "/api/v1/auth/logout"
)

var (
	// ErrEmptyCredential is returned by Login for a blank credential.
	ErrEmptyCredential = errors.New("session: credential is empty")
	// ErrNotAuthenticated is returned by operations that need a signed-in session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrEmptyDisplayName is returned by UpdateProfile for a blank name.
	ErrEmptyDisplayName = errors.New("session: display name is empty")
)

// Status is the coarse session state.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

// Snapshot is a copy of the session state.
type Snapshot struct {
	Status Status
	// Profile is nil until a refresh has succeeded for the current credential.
	Profile *Profile
}

// Doer executes API requests. *transport.Transport satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Bus is the part of events.Bus the manager uses.
type Bus interface {
	events.Publisher
	Subscribe(events.Handler) func()
}

// Manager holds the session state machine.
type Manager struct {
	store     tokenstore.Store
	api       Doer
	bus       Bus
	loginPath string

	mu      sync.Mutex
	status  Status
	profile *Profile
	// generation changes whenever the credential changes; profile responses
	// started under an older generation are dropped.
	generation uint64

	initOnce sync.Once
	initDone chan struct{}

	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLoginPath overrides the navigation target published on logout.
func WithLoginPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.loginPath = path
		}
	}
}

// NewManager creates a manager and subscribes it to authorization_expired.
func NewManager(store tokenstore.Store, api Doer, bus Bus, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		api:       api,
		bus:       bus,
		loginPath: config.LoginPath,
		status:    StatusUninitialized,
		initDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if bus != nil {
		m.unsubscribe = bus.Subscribe(func(ev events.Event) {
			if ev.Kind == events.KindAuthorizationExpired {
				m.Invalidate(ev.Reason)
			}
		})
	}
	return m
}

// Close detaches the manager from the bus.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Initialize runs once per process. With a stored credential the session
// becomes authenticated immediately and a profile fetch starts in the
// background; its failure is logged and leaves the state unchanged. The
// returned channel closes when that fetch (if any) has finished.
func (m *Manager) Initialize(ctx context.Context) <-chan struct{} {
	m.initOnce.Do(func() {
		m.mu.Lock()
		if m.status != StatusUninitialized {
			m.mu.Unlock()
			close(m.initDone)
			return
		}

		credential, ok := m.store.Get()
		if !ok {
			m.status = StatusUnauthenticated
			m.mu.Unlock()
			m.publish(events.KindSessionChanged, "", "initialized without credential")
			close(m.initDone)
			return
		}

		m.status = StatusAuthenticated
		m.profile = nil
		m.generation++
		m.mu.Unlock()

		log.Debug().Str("token", utils.MaskKey(credential)).Msg("session: restored credential")
		m.publish(events.KindSessionChanged, "", "initialized with credential")

		go func() {
			defer close(m.initDone)
			if err := m.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("session: initial profile fetch failed")
			}
		}()
	})
	return m.initDone
}

// Login adopts credential. No profile fetch happens here; callers refresh
// when they need profile data.
func (m *Manager) Login(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return ErrEmptyCredential
	}

	m.store.Set(credential)

	m.mu.Lock()
	m.status = StatusAuthenticated
	m.profile = nil
	m.generation++
	m.mu.Unlock()

	log.Info().Str("token", utils.MaskKey(credential)).Msg("session: logged in")
	m.publish(events.KindSessionChanged, "", "login")
	return nil
}

// Logout notifies the server (best effort) and always tears down locally.
func (m *Manager) Logout(ctx context.Context) {
	if m.api != nil {
		if _, ok := m.store.Get(); ok {
			if _, err := m.api.Do(ctx, transport.Request{Method: http.MethodPost, Path: LogoutPath}); err != nil {
				log.Debug().Err(err).Msg("session: remote logout failed, continuing locally")
			}
		}
	}
	m.teardown("logout")
}

// Invalidate ends the session without contacting the server.
func (m *Manager) Invalidate(reason string) {
	if reason == "" {
		reason = "invalidated"
	}
	log.Info().Str("reason", reason).Msg("session: invalidated")
	m.teardown(reason)
}

func (m *Manager) teardown(reason string) {
	m.store.Clear()

	m.mu.Lock()
	m.status = StatusUnauthenticated
	m.profile = nil
	m.generation++
	m.mu.Unlock()

	m.publish(events.KindSessionChanged, "", reason)
	m.publish(events.KindNavigateLogin, m.loginPath, reason)
}

// Refresh fetches the profile and merges it into the session. A response
// that arrives after the credential changed is discarded. A superseded
// response is a no-op.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	status, gen := m.status, m.generation
	m.mu.Unlock()

	if status != StatusAuthenticated {
		return ErrNotAuthenticated
	}

	resp, err := m.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: ProfilePath})
	if err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	if resp.Superseded {
		return nil
	}
	return m.apply(gen, http.MethodGet, resp)
}

// UpdateProfile changes the display name and merges the returned fields.
func (m *Manager) UpdateProfile(ctx context.Context, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ErrEmptyDisplayName
	}

	m.mu.Lock()
	status, gen := m.status, m.generation
	m.mu.Unlock()

	if status != StatusAuthenticated {
		return ErrNotAuthenticated
	}

	body, err := sjson.SetBytes([]byte(`{}`), FieldDisplayName, displayName)
	if err != nil {
		return fmt.Errorf("building profile update: %w", err)
	}

	resp, err := m.api.Do(ctx, transport.Request{Method: http.MethodPut, Path: ProfilePath, Body: body})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if resp.Superseded {
		return nil
	}
	return m.apply(gen, http.MethodPut, resp)
}

func (m *Manager) apply(gen uint64, method string, resp *transport.Response) error {
	m.mu.Lock()
	if m.generation != gen || m.status != StatusAuthenticated {
		m.mu.Unlock()
		log.Debug().Msg("session: dropping profile response from a previous session")
		return nil
	}

	profile := m.profile.clone()
	if profile == nil {
		profile = newProfile()
	}
	if !profile.merge(resp.Body) {
		m.mu.Unlock()
		return apierr.NewDecodeError(errors.New("profile is not a JSON object"), method, ProfilePath, resp.Status)
	}
	m.profile = profile
	m.mu.Unlock()

	m.publish(events.KindSessionChanged, "", "profile updated")
	return nil
}

// State returns a copy of the current state.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Status: m.status, Profile: m.profile.clone()}
}

// Authenticated reports whether a credential is live.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusAuthenticated
}

// Credits returns the profile's credit count, if a profile is loaded.
func (m *Manager) Credits() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return 0, false
	}
	return m.profile.Credits()
}

func (m *Manager) publish(kind events.Kind, path, reason string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Kind: kind, Path: path, Reason: reason})
}
