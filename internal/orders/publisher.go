package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

const envelopeVersion = 1

// Producer is the subset of the kafka producer used to emit events.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

// KafkaEvents wraps domain payloads in an Envelope and hands them to Kafka,
// keyed by order id.
type KafkaEvents struct {
	Producer Producer
	Service  string
	Now      func() time.Time
}

func (k *KafkaEvents) Emit(ctx context.Context, topic, eventType, orderID string, payload any) error {
	env, err := NewEnvelope(ctx, k.Service, eventType, orderID, payload, k.now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return k.Producer.Publish(ctx, topic, PartitionKey(orderID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
}

func (k *KafkaEvents) now() time.Time {
	if k.Now != nil {
		return k.Now().UTC()
	}
	return time.Now().UTC()
}

func NewEnvelope(ctx context.Context, producer, eventType, orderID string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    at,
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env, nil
}
