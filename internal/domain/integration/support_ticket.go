package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
)

// AggregateTypeSupportTicket is the aggregate type for support events
const AggregateTypeSupportTicket = "SupportTicket"

// SupportTicketRetention is how long an untouched ticket is kept after its question date
const SupportTicketRetention = 30 * 24 * time.Hour

// SupportKind distinguishes pre-sale questions from post-sale message threads
type SupportKind string

const (
	SupportKindQuestion SupportKind = "QUESTION"
	SupportKindMessage  SupportKind = "MESSAGE"
)

// IsValid returns true if the kind is known
func (k SupportKind) IsValid() bool {
	return k == SupportKindQuestion || k == SupportKindMessage
}

// SupportStatus is the ticket status machine
type SupportStatus string

const (
	SupportStatusUnanswered SupportStatus = "UNANSWERED"
	SupportStatusAnswered   SupportStatus = "ANSWERED"
	SupportStatusClosed     SupportStatus = "CLOSED"
)

// IsValid returns true if the status is known
func (s SupportStatus) IsValid() bool {
	switch s {
	case SupportStatusUnanswered, SupportStatusAnswered, SupportStatusClosed:
		return true
	}
	return false
}

// String returns the string representation
func (s SupportStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the status machine allows moving to target.
// Transitions only move forward so a stale redelivery cannot reopen a ticket.
func (s SupportStatus) CanTransitionTo(target SupportStatus) bool {
	switch s {
	case "":
		return target.IsValid()
	case SupportStatusUnanswered:
		return target == SupportStatusAnswered || target == SupportStatusClosed
	case SupportStatusAnswered:
		return target == SupportStatusClosed
	}
	return false
}

// SupportTicketDraft is the canonical shape an adapter produces from a question or message thread
type SupportTicketDraft struct {
	Marketplace     Marketplace
	Kind            SupportKind
	ExternalID      string
	PackID          string
	ItemExternalID  string
	OrderExternalID string
	BuyerID         string
	BuyerName       string
	Text            string
	AnswerText      string
	Status          SupportStatus
	CanAnswer       *bool
	QuestionDate    *time.Time
	AnsweredAt      *time.Time
	RawPayload      Payload
}

// NaturalKey returns the identity used for upsert matching
func (d *SupportTicketDraft) NaturalKey() string {
	if d.Kind == SupportKindMessage {
		return d.PackID
	}
	return d.ExternalID
}

// Validate checks the draft carries its natural key
func (d *SupportTicketDraft) Validate() error {
	if !d.Marketplace.IsValid() {
		return ErrMarketplaceNotSupported
	}
	if !d.Kind.IsValid() || d.NaturalKey() == "" {
		return ErrInvalidExternalID
	}
	return nil
}

// SupportTicket is a canonical customer question or post-sale conversation
type SupportTicket struct {
	shared.BaseEntity
	TenantID        uuid.UUID
	StoreID         uuid.UUID
	Marketplace     Marketplace
	Kind            SupportKind
	ExternalID      string
	PackID          string
	ItemExternalID  string
	OrderExternalID string
	BuyerID         string
	BuyerName       string
	Text            string
	AnswerText      string
	Status          SupportStatus
	CanAnswer       bool
	QuestionDate    time.Time
	AnsweredAt      *time.Time
	RawPayload      Payload
}

// NewSupportTicketFromDraft creates a ticket and returns every field the draft populated
func NewSupportTicketFromDraft(tenantID, storeID uuid.UUID, d *SupportTicketDraft, now time.Time) (*SupportTicket, FieldChanges, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	t := &SupportTicket{
		BaseEntity:   shared.NewBaseEntity(now),
		TenantID:     tenantID,
		StoreID:      storeID,
		Marketplace:  d.Marketplace,
		Kind:         d.Kind,
		QuestionDate: now.UTC(),
	}
	if d.QuestionDate != nil && !d.QuestionDate.IsZero() {
		t.QuestionDate = d.QuestionDate.UTC()
	}
	changes := t.Merge(d, now)
	if t.Status == "" {
		t.Status = SupportStatusUnanswered
		changes["status"] = string(SupportStatusUnanswered)
	}
	changes["questionDate"] = t.QuestionDate
	return t, changes, nil
}

// IsDuplicateText reports whether the draft is a redelivery of the stored
// question or message text. A message thread with identical text is a
// duplicate. A question with identical text is one only while its answer
// side is unchanged too, since answers arrive under the same question text.
func (t *SupportTicket) IsDuplicateText(d *SupportTicketDraft) bool {
	if d.Text == "" || d.Text != t.Text {
		return false
	}
	if t.Kind == SupportKindMessage {
		return true
	}
	return (d.AnswerText == "" || d.AnswerText == t.AnswerText) &&
		(d.Status == "" || d.Status == t.Status) &&
		(d.CanAnswer == nil || *d.CanAnswer == t.CanAnswer)
}

// Merge applies the draft and returns the fields it changed
func (t *SupportTicket) Merge(d *SupportTicketDraft, now time.Time) FieldChanges {
	changes := FieldChanges{}
	mergeString(changes, "externalId", &t.ExternalID, d.ExternalID)
	mergeString(changes, "packId", &t.PackID, d.PackID)
	mergeString(changes, "itemExternalId", &t.ItemExternalID, d.ItemExternalID)
	mergeString(changes, "orderExternalId", &t.OrderExternalID, d.OrderExternalID)
	mergeString(changes, "buyerId", &t.BuyerID, d.BuyerID)
	mergeString(changes, "buyerName", &t.BuyerName, d.BuyerName)
	mergeString(changes, "text", &t.Text, d.Text)
	mergeString(changes, "answerText", &t.AnswerText, d.AnswerText)
	if d.Status != t.Status && t.Status.CanTransitionTo(d.Status) {
		t.Status = d.Status
		changes["status"] = string(d.Status)
	}
	mergeBool(changes, "canAnswer", &t.CanAnswer, d.CanAnswer)
	mergeTime(changes, "answeredAt", &t.AnsweredAt, d.AnsweredAt)
	if len(d.RawPayload) > 0 {
		t.RawPayload = d.RawPayload
	}
	if changes.Changed() {
		t.Touch(now)
	}
	return changes
}

// IsStale reports whether the ticket falls outside the retention window and
// has not been modified within it
func (t *SupportTicket) IsStale(cutoff time.Time) bool {
	return t.QuestionDate.Before(cutoff) && t.UpdatedAt.Before(cutoff)
}

// SupportTicketRepository persists support tickets
type SupportTicketRepository interface {
	FindByQuestion(ctx context.Context, m Marketplace, externalID string) (*SupportTicket, error)
	FindByPack(ctx context.Context, m Marketplace, packID string) (*SupportTicket, error)
	// Create returns ErrDuplicateKey when the natural key is taken
	Create(ctx context.Context, ticket *SupportTicket) error
	Update(ctx context.Context, ticket *SupportTicket) error
	// DeleteStale removes a store's tickets whose question date and last
	// update both precede cutoff, returning the number removed
	DeleteStale(ctx context.Context, storeID uuid.UUID, cutoff time.Time) (int64, error)
}
