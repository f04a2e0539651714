package integration

import (
	"strings"
	"time"
)

// TopicClass is the coarse routing class of a webhook notification
type TopicClass string

const (
	TopicClassOrders   TopicClass = "orders"
	TopicClassMessages TopicClass = "messages"
	TopicClassProducts TopicClass = "products"
	TopicClassUnknown  TopicClass = "unknown"
)

// String returns the string representation
func (c TopicClass) String() string {
	return string(c)
}

// ClassifyTopic maps a marketplace topic name to its routing class
func ClassifyTopic(topic string) TopicClass {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case "orders", "orders_v2", "created_orders", "order_status_push":
		return TopicClassOrders
	case "messages", "questions":
		return TopicClassMessages
	case "items", "items_prices", "stock_locations":
		return TopicClassProducts
	}
	return TopicClassUnknown
}

// Notification is a normalized marketplace push notification
type Notification struct {
	ID            string     `json:"_id"`
	Topic         string     `json:"topic" validate:"required"`
	Resource      string     `json:"resource" validate:"required"`
	UserID        string     `json:"user_id" validate:"required"`
	ApplicationID string     `json:"application_id,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
	SentAt        *time.Time `json:"sent,omitempty"`
}

// Class returns the routing class of the notification topic
func (n *Notification) Class() TopicClass {
	return ClassifyTopic(n.Topic)
}

// SupportKind returns the kind of support ticket a messages-class notification refers to
func (n *Notification) SupportKind() SupportKind {
	if strings.EqualFold(strings.TrimSpace(n.Topic), "messages") {
		return SupportKindMessage
	}
	return SupportKindQuestion
}

// ResourceID extracts the trailing identifier of the resource path.
// "/orders/555" yields "555".
func (n *Notification) ResourceID() string {
	res := n.Resource
	if i := strings.IndexAny(res, "?#"); i >= 0 {
		res = res[:i]
	}
	res = strings.TrimRight(strings.TrimSpace(res), "/")
	if i := strings.LastIndex(res, "/"); i >= 0 {
		res = res[i+1:]
	}
	return res
}

// DedupKey identifies a delivery for duplicate suppression.
// Notifications without an id return an empty key and are never deduplicated.
func (n *Notification) DedupKey(m Marketplace) string {
	if n.ID == "" {
		return ""
	}
	return string(m) + ":" + n.ID
}
