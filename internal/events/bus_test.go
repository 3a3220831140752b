package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var seen []string

	bus.Subscribe(func(ev Event) { seen = append(seen, "first:"+string(ev.Kind)) })
	bus.Subscribe(func(ev Event) { seen = append(seen, "second:"+string(ev.Kind)) })

	bus.Publish(Event{Kind: KindRefreshCredits})

	assert.Equal(t, []string{"first:refresh_credits", "second:refresh_credits"}, seen)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	rec := &Recorder{}
	unsubscribe := bus.Subscribe(rec.Handle)

	bus.Publish(Event{Kind: KindNavigateLogin})
	unsubscribe()
	unsubscribe() // idempotent
	bus.Publish(Event{Kind: KindNavigateLogin})

	assert.Equal(t, 1, rec.Count(KindNavigateLogin))
}

func TestBus_NestedPublish(t *testing.T) {
	bus := NewBus()
	rec := &Recorder{}
	bus.Subscribe(func(ev Event) {
		if ev.Kind == KindAuthorizationExpired {
			bus.Publish(Event{Kind: KindNavigateLogin, Path: "/auth/login"})
		}
	})
	bus.Subscribe(rec.Handle)

	bus.Publish(Event{Kind: KindAuthorizationExpired, Path: "/api/v1/profile"})

	events := rec.Events()
	assert.Len(t, events, 2)
	assert.Equal(t, KindNavigateLogin, events[0].Kind)
	assert.Equal(t, KindAuthorizationExpired, events[1].Kind)
	assert.False(t, events[0].At.IsZero())
}

func TestBus_NilSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: KindRefreshCredits}) })
}

func TestRecorder_Drain(t *testing.T) {
	rec := &Recorder{}
	rec.Handle(Event{Kind: KindRefreshCredits})
	rec.Handle(Event{Kind: KindSessionChanged})

	assert.Len(t, rec.Drain(), 2)
	assert.Empty(t, rec.Events())
}
