package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Message is what a subscriber receives and what travels over the wire.
type Message struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const defaultBuffer = 64

// Hub fans messages out to topic subscribers in this process. Delivery is
// at-most-once: a subscriber whose buffer is full misses the message, and a
// subscriber that joins late never sees earlier ones.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buf    int
	log    *zap.Logger

	dropped atomic.Int64
}

func NewHub(buf int, log *zap.Logger) *Hub {
	if buf <= 0 {
		buf = defaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{topics: map[string]map[*Subscription]struct{}{}, buf: buf, log: log}
}

// Publish encodes payload and delivers it to the current subscribers of topic.
func (h *Hub) Publish(_ context.Context, topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	h.Deliver(Message{Topic: topic, Event: event, Data: data})
	return nil
}

// Deliver never blocks. It returns how many subscribers got the message.
func (h *Hub) Deliver(m Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for sub := range h.topics[m.Topic] {
		select {
		case sub.ch <- m:
			n++
		default:
			h.dropped.Add(1)
			h.log.Debug("subscriber buffer full, message dropped",
				zap.String("topic", m.Topic), zap.String("event", m.Event))
		}
	}
	return n
}

// Dropped is the number of deliveries lost to full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Subscribers reports how many subscribers topic has right now.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Subscribe() *Subscription {
	return &Subscription{hub: h, ch: make(chan Message, h.buf), joined: map[string]struct{}{}}
}

// Subscription is one consumer's view of the hub; it can join any number of topics.
type Subscription struct {
	hub    *Hub
	ch     chan Message
	joined map[string]struct{} // guarded by hub.mu
	closed bool
}

func (s *Subscription) C() <-chan Message { return s.ch }

func (s *Subscription) Join(topic string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = map[*Subscription]struct{}{}
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.joined[topic] = struct{}{}
}

func (s *Subscription) Leave(topic string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s, topic)
}

// Close leaves every topic and closes C.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for topic := range s.joined {
		h.remove(s, topic)
	}
	s.closed = true
	close(s.ch)
}

func (h *Hub) remove(s *Subscription, topic string) {
	delete(s.joined, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}
