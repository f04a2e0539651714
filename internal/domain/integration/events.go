package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
)

// Event types published to the event sink
const (
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderUpdated   = "order.updated"
	EventTypeProductCreated = "product.created"
	EventTypeProductUpdated = "product.updated"
	EventTypeProductDeleted = "product.deleted"
	EventTypeSupportCreated = "support.created"
	EventTypeSupportUpdated = "support.updated"
)

// RecordChangedEvent announces that a canonical record was created or modified.
// Payload is {id, externalId, ...changedFields}.
type RecordChangedEvent struct {
	shared.BaseDomainEvent
	StoreID     uuid.UUID      `json:"store_id"`
	Marketplace Marketplace    `json:"marketplace"`
	Payload     map[string]any `json:"payload"`
}

func newRecordChangedEvent(eventType, aggType string, id, tenantID, storeID uuid.UUID, m Marketplace, externalID string, changes FieldChanges, now time.Time) *RecordChangedEvent {
	payload := make(map[string]any, len(changes)+2)
	for k, v := range changes {
		payload[k] = v
	}
	payload["id"] = id.String()
	if externalID != "" {
		payload["externalId"] = externalID
	}
	return &RecordChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggType, id, tenantID, now),
		StoreID:         storeID,
		Marketplace:     m,
		Payload:         payload,
	}
}

// NewOrderEvent builds order.created or order.updated
func NewOrderEvent(o *Order, changes FieldChanges, created bool, now time.Time) *RecordChangedEvent {
	eventType := EventTypeOrderUpdated
	if created {
		eventType = EventTypeOrderCreated
	}
	return newRecordChangedEvent(eventType, AggregateTypeOrder, o.ID, o.TenantID, o.StoreID, o.Marketplace, o.ExternalID, changes, now)
}

// NewProductEvent builds product.created, product.updated or product.deleted
func NewProductEvent(p *Product, changes FieldChanges, created bool, now time.Time) *RecordChangedEvent {
	eventType := EventTypeProductUpdated
	switch {
	case created:
		eventType = EventTypeProductCreated
	case p.BecameDeleted(changes):
		eventType = EventTypeProductDeleted
	}
	return newRecordChangedEvent(eventType, AggregateTypeProduct, p.ID, p.TenantID, p.StoreID, p.Marketplace, p.ExternalID, changes, now)
}

// NewSupportTicketEvent builds support.created or support.updated
func NewSupportTicketEvent(t *SupportTicket, changes FieldChanges, created bool, now time.Time) *RecordChangedEvent {
	eventType := EventTypeSupportUpdated
	if created {
		eventType = EventTypeSupportCreated
	}
	externalID := t.ExternalID
	if t.Kind == SupportKindMessage {
		externalID = t.PackID
	}
	return newRecordChangedEvent(eventType, AggregateTypeSupportTicket, t.ID, t.TenantID, t.StoreID, t.Marketplace, externalID, changes, now)
}
