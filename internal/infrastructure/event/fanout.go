package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/logger"
)

// DefaultFanoutChannel is the Redis channel record change events are published to
const DefaultFanoutChannel = "ordersync:events"

// Envelope is the wire format of a fanned-out event
type Envelope struct {
	Kind       string         `json:"kind"`
	SubjectID  string         `json:"subjectId"`
	TenantID   string         `json:"tenantId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload"`
}

// NewEnvelope wraps a domain event. Record change events carry their
// changed fields; other events carry no payload.
func NewEnvelope(event shared.DomainEvent) Envelope {
	env := Envelope{
		Kind:       event.EventType(),
		SubjectID:  event.AggregateID().String(),
		TenantID:   event.TenantID().String(),
		OccurredAt: event.OccurredAt(),
		Payload:    map[string]any{"id": event.AggregateID().String()},
	}
	if changed, ok := event.(*integration.RecordChangedEvent); ok && changed.Payload != nil {
		env.Payload = changed.Payload
	}
	return env
}

// RedisPublisher is the part of the go-redis client the fan-out uses
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisFanoutHandler republishes every event to a Redis channel so other
// services can react to record changes
type RedisFanoutHandler struct {
	client  RedisPublisher
	channel string
}

// NewRedisFanoutHandler creates a fan-out handler. An empty channel selects
// DefaultFanoutChannel.
func NewRedisFanoutHandler(client RedisPublisher, channel string) *RedisFanoutHandler {
	if channel == "" {
		channel = DefaultFanoutChannel
	}
	return &RedisFanoutHandler{client: client, channel: channel}
}

var _ shared.EventHandler = (*RedisFanoutHandler)(nil)

// EventTypes subscribes to every event
func (h *RedisFanoutHandler) EventTypes() []string {
	return nil
}

// Handle publishes the event envelope
func (h *RedisFanoutHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	data, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return fmt.Errorf("event fanout: encode %s: %w", event.EventType(), err)
	}
	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("event fanout: publish %s: %w", event.EventType(), err)
	}
	return nil
}

// LoggingHandler writes every event to the log. It is the sink of last
// resort when no fan-out is configured.
type LoggingHandler struct{}

var _ shared.EventHandler = LoggingHandler{}

// EventTypes subscribes to every event
func (LoggingHandler) EventTypes() []string {
	return nil
}

// Handle logs the event
func (LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	env := NewEnvelope(event)
	logger.L(ctx).Info("Record changed",
		zap.String("kind", env.Kind),
		zap.String("subject_id", env.SubjectID),
		zap.String("tenant_id", env.TenantID),
		zap.Any("payload", env.Payload),
	)
	return nil
}
