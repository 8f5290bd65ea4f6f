package bus

import (
	"sync"
	"testing"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	got := make(map[string]int)
	for _, id := range []string{"a", "b"} {
		id := id
		b.Subscribe(id, func(e Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
	}

	b.Broadcast(Event{Name: EventMessageCreated})
	b.Broadcast(Event{Name: EventChatState})

	mu.Lock()
	defer mu.Unlock()
	if got["a"] != 2 || got["b"] != 2 {
		t.Errorf("deliveries = %v, want 2 per subscriber", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe("a", func(e Event) { calls++ })
	b.Broadcast(Event{Name: EventMessageCreated})
	b.Unsubscribe("a")
	b.Broadcast(Event{Name: EventMessageCreated})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}
