package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeAndBroadcast(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Broadcast(Event{Name: "analyze:start", SessionKey: "sess-1"})

	ev := <-ch
	require.Equal(t, "analyze:start", ev.Name)
	require.Equal(t, "sess-1", ev.SessionKey)
}

func TestBroadcastIsScopedToSession(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("sess-1")
	defer cancel()

	b.Broadcast(Event{Name: "analyze:start", SessionKey: "other"})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q for foreign session", ev.Name)
	default:
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("sess-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Broadcast(Event{Name: "analyze:result", SessionKey: "sess-1"})
	}

	// The buffer is full; the overflow was dropped, not blocked on.
	require.Len(t, ch, subscriberBuffer)
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe("sess-1")
	require.Equal(t, 1, b.SubscriberCount("sess-1"))

	cancel()
	require.Zero(t, b.SubscriberCount("sess-1"))

	// Broadcasting after cancel must not panic.
	b.Broadcast(Event{Name: "finalize:done", SessionKey: "sess-1"})
}
