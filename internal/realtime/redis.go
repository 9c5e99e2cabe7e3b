package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

// RedisBroker publishes hub messages to Redis so every API instance can
// relay them to its own WebSocket clients.
type RedisBroker struct {
	RDB redis.Cmdable
}

func (b *RedisBroker) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	body, err := json.Marshal(Message{Topic: topic, Event: event, Data: data})
	if err != nil {
		return err
	}
	return b.RDB.Publish(ctx, fmt.Sprintf(redisx.KeyRealtimeChannel, topic), body).Err()
}

// Relay feeds every rt:* channel into the local hub until ctx ends.
type Relay struct {
	RDB *redis.Client
	Hub *Hub
	Log *zap.Logger
}

func (r *Relay) Run(ctx context.Context) error {
	ps := r.RDB.PSubscribe(ctx, redisx.PatternRealtime)
	defer ps.Close()

	// tunggu konfirmasi subscribe dulu
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("psubscribe %s: %w", redisx.PatternRealtime, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pm, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(pm.Payload), &m); err != nil {
				r.Log.Warn("bad realtime payload", zap.String("channel", pm.Channel), zap.Error(err))
				continue
			}
			if m.Topic == "" {
				m.Topic = strings.TrimPrefix(pm.Channel, strings.TrimSuffix(redisx.PatternRealtime, "*"))
			}
			r.Hub.Deliver(m)
		}
	}
}
