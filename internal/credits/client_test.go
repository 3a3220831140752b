package credits

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/session"
	"github.com/swiftbridge/convert-client/internal/tokenstore"
	"github.com/swiftbridge/convert-client/internal/transport"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *tokenstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := tokenstore.NewMemoryStore()
	return NewClient(transport.New(srv.URL, store)), store
}

func TestBalance(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, BalancePath, r.URL.Path)
		_, _ = io.WriteString(w, `{"availableCredits":12,"totalCreditsUsed":3,"totalCreditsPurchased":15,"lastUpdated":"2026-05-01T08:00:00Z"}`)
	})

	b, ok, err := c.Balance(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Balance{AvailableCredits: 12, TotalCreditsUsed: 3, TotalCreditsPurchased: 15, LastUpdated: "2026-05-01T08:00:00Z"}, b)
}

func TestBalance_Superseded(t *testing.T) {
	c, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store.Set("expired")

	_, ok, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	_, live := store.Get()
	assert.False(t, live)
}

func TestPackages(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"starter","name":"Starter","credits":10,"price":9.99,"currency":"EUR","popular":true,"features":"10 conversions"}]`)
	})

	pkgs, err := c.Packages(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "starter", pkgs[0].ID)
	assert.InDelta(t, 9.99, pkgs[0].Price, 0.001)
	assert.True(t, pkgs[0].Popular)
}

func TestPurchase(t *testing.T) {
	var sent map[string]string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &sent)
		switch sent["packageId"] {
		case "starter":
			_, _ = io.WriteString(w, `{"checkoutUrl":"https://checkout.example.test/s/1"}`)
		case "free":
			_, _ = io.WriteString(w, `{"message":"Credits added"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"Unknown package"}`)
		}
	})

	res, err := c.Purchase(context.Background(), "starter")
	require.NoError(t, err)
	assert.True(t, res.NeedsCheckout())
	assert.Equal(t, "https://checkout.example.test/s/1", res.CheckoutURL)

	res, err = c.Purchase(context.Background(), "free")
	require.NoError(t, err)
	assert.False(t, res.NeedsCheckout())
	assert.Equal(t, "Credits added", res.Message)

	_, err = c.Purchase(context.Background(), "bogus")
	require.Error(t, err)
	assert.Equal(t, "Unknown package", PurchaseMessage(err))

	_, err = c.Purchase(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyPackageID)
}

func TestReconcile_WithSessionAndTransport(t *testing.T) {
	var balanceCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case session.ProfilePath:
			_, _ = io.WriteString(w, `{"credits":0}`)
		case BalancePath:
			if balanceCalls.Add(1) < 3 {
				_, _ = io.WriteString(w, `{"availableCredits":0}`)
				return
			}
			_, _ = io.WriteString(w, `{"availableCredits":25}`)
		}
	}))
	defer srv.Close()

	store := tokenstore.NewMemoryStore()
	bus := events.NewBus()
	tr := transport.New(srv.URL, store, transport.WithPublisher(bus))
	mgr := session.NewManager(store, tr, bus)
	defer mgr.Close()
	require.NoError(t, mgr.Login("paid-user"))

	p := NewPoller(mgr, NewClient(tr), WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	res := p.Reconcile(context.Background())

	assert.True(t, res.Confirmed)
	assert.Equal(t, 25, res.Balance)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), balanceCalls.Load())
	credits, ok := mgr.Credits()
	assert.True(t, ok)
	assert.Equal(t, 0, credits)
}

func TestReconcile_SessionExpiresMidRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := tokenstore.NewMemoryStore()
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Handle)
	tr := transport.New(srv.URL, store, transport.WithPublisher(bus))
	mgr := session.NewManager(store, tr, bus)
	defer mgr.Close()
	require.NoError(t, mgr.Login("expired"))

	res := NewPoller(mgr, NewClient(tr)).Reconcile(context.Background())
	assert.True(t, res.Superseded)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, mgr.Authenticated())
	assert.GreaterOrEqual(t, rec.Count(events.KindNavigateLogin), 1)
}
