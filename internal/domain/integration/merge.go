package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldChanges records the fields a merge actually modified, keyed by the
// camelCase name used in event payloads
type FieldChanges map[string]any

// Changed returns true if at least one field was modified
func (c FieldChanges) Changed() bool {
	return len(c) > 0
}

// Fields returns the names of the modified fields
func (c FieldChanges) Fields() []string {
	fields := make([]string, 0, len(c))
	for k := range c {
		fields = append(fields, k)
	}
	return fields
}

// The merge helpers below apply a single rule: a non-empty incoming value
// replaces the stored value, an empty incoming value never erases it.

func mergeString(changes FieldChanges, key string, dst *string, incoming string) {
	if incoming == "" || *dst == incoming {
		return
	}
	*dst = incoming
	changes[key] = incoming
}

func mergeDecimal(changes FieldChanges, key string, dst *decimal.Decimal, incoming decimal.Decimal) {
	if incoming.IsZero() || dst.Equal(incoming) {
		return
	}
	*dst = incoming
	changes[key] = incoming.String()
}

func mergeInt(changes FieldChanges, key string, dst *int, incoming *int) {
	if incoming == nil || *dst == *incoming {
		return
	}
	*dst = *incoming
	changes[key] = *incoming
}

func mergeBool(changes FieldChanges, key string, dst *bool, incoming *bool) {
	if incoming == nil || *dst == *incoming {
		return
	}
	*dst = *incoming
	changes[key] = *incoming
}

func mergeTime(changes FieldChanges, key string, dst **time.Time, incoming *time.Time) {
	if incoming == nil || incoming.IsZero() {
		return
	}
	if *dst != nil && (*dst).Equal(*incoming) {
		return
	}
	t := incoming.UTC()
	*dst = &t
	changes[key] = t
}
