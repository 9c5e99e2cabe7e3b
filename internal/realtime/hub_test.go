package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHubDeliversOnlyToJoinedTopics(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	a, b := h.Subscribe(), h.Subscribe()
	defer a.Close()
	defer b.Close()
	a.Join("order-1")
	b.Join("admin-room")

	if err := h.Publish(context.Background(), "order-1", "order-update", map[string]string{"status": "processing"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-a.C():
		var got map[string]string
		if err := json.Unmarshal(m.Data, &got); err != nil || got["status"] != "processing" {
			t.Fatalf("data = %s, %v", m.Data, err)
		}
		if m.Topic != "order-1" || m.Event != "order-update" {
			t.Fatalf("message = %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("joined subscriber got nothing")
	}
	select {
	case m := <-b.C():
		t.Fatalf("other topic leaked: %+v", m)
	default:
	}
}

func TestHubNoReplayAndLeave(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	h.Deliver(Message{Topic: "order-1", Event: "order-update"})

	s := h.Subscribe()
	defer s.Close()
	s.Join("order-1")
	select {
	case m := <-s.C():
		t.Fatalf("late joiner saw earlier message: %+v", m)
	default:
	}

	s.Leave("order-1")
	if n := h.Deliver(Message{Topic: "order-1", Event: "order-update"}); n != 0 {
		t.Fatalf("delivered to %d after leave", n)
	}
	if h.Subscribers("order-1") != 0 {
		t.Fatal("empty topic not cleaned up")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(2, zap.NewNop())
	slow, fast := h.Subscribe(), h.Subscribe()
	defer slow.Close()
	defer fast.Close()
	slow.Join("admin-room")
	fast.Join("admin-room")

	received := 0
	for i := 0; i < 5; i++ {
		h.Deliver(Message{Topic: "admin-room", Event: "new-order"})
		<-fast.C()
		received++
	}
	if received != 5 {
		t.Fatalf("fast subscriber got %d", received)
	}
	if h.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", h.Dropped())
	}
	if len(slow.C()) != 2 {
		t.Fatalf("slow buffer = %d", len(slow.C()))
	}
}

func TestHubConcurrentCloseAndPublish(t *testing.T) {
	h := NewHub(1, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		s := h.Subscribe()
		s.Join("admin-room")
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Deliver(Message{Topic: "admin-room", Event: "new-order"})
		}()
		go func() {
			defer wg.Done()
			s.Close()
			s.Close()
			s.Join("admin-room")
		}()
	}
	wg.Wait()
	if h.Subscribers("admin-room") != 0 {
		t.Fatalf("closed subscriptions still registered: %d", h.Subscribers("admin-room"))
	}
}
