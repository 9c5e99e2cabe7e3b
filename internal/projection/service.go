package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

const statCreated = "created"

// Service projects order events into the Redis read models.
type Service struct {
	Redis redis.Cmdable
	Log   *zap.Logger
	// Name namespaces the dedup keys.
	Name string
}

// HandleMessage: dipasang sebagai handler consumer.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.EventID == "" {
		// pesan rusak tidak akan pernah sukses, jangan di-retry
		s.Log.Warn("undecodable event skipped",
			zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !fresh {
		return nil
	}

	// 3) apply; kalau gagal, lepas dedup supaya retry bisa jalan lagi
	if err := s.apply(ctx, env); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			s.Log.Warn("bad order created payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.project(ctx, StatusView{
			OrderID:     p.OrderID,
			OrderNumber: p.OrderNumber,
			OwnerID:     p.OwnerID,
			Status:      orders.StatusPending,
			UpdatedAt:   p.CreatedAt,
		}, statCreated)

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			s.Log.Warn("bad status changed payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.project(ctx, StatusView{
			OrderID:     p.OrderID,
			OrderNumber: p.OrderNumber,
			OwnerID:     p.OwnerID,
			Status:      p.To,
			UpdatedAt:   p.UpdatedAt,
		}, string(p.To))
	}
	return nil // ignore
}

func (s *Service) project(ctx context.Context, sv StatusView, stat string) error {
	key := statsKey(sv.UpdatedAt)
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := putStatus(ctx, pipe, sv); err != nil {
			return err
		}
		pipe.HIncrBy(ctx, key, stat, 1)
		pipe.Expire(ctx, key, redisx.TTLDailyStats)
		return nil
	})
	if err != nil {
		return fmt.Errorf("project %s: %w", sv.OrderID, err)
	}
	s.Log.Debug("projected", zap.String("order_id", sv.OrderID), zap.String("status", string(sv.Status)))
	return nil
}
