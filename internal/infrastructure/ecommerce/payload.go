package ecommerce

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// Payload accessors. Marketplace JSON is decoded with json.Number, so
// identifiers and amounts arrive as json.Number, strings or (in tests)
// plain Go numbers; every accessor accepts all of them.

// lookup walks nested objects. A missing key or a non-object step yields nil.
func lookup(p integration.Payload, path ...string) any {
	var cur any = map[string]any(p)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case integration.Payload:
		return m, true
	}
	return nil, false
}

// stringAt returns the value at path rendered as a string. Numbers keep
// their exact digits.
func stringAt(p integration.Payload, path ...string) string {
	switch v := lookup(p, path...).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// decimalAt returns the number at path, or zero when absent or malformed
func decimalAt(p integration.Payload, path ...string) decimal.Decimal {
	switch v := lookup(p, path...).(type) {
	case json.Number:
		return ParseDecimal(v.String())
	case string:
		return ParseDecimal(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	}
	return decimal.Zero
}

// intAt returns the integer at path; ok is false when the value is absent
func intAt(p integration.Payload, path ...string) (int, bool) {
	s := stringAt(p, path...)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// intPtrAt is intAt for optional fields where zero is meaningful
func intPtrAt(p integration.Payload, path ...string) *int {
	n, ok := intAt(p, path...)
	if !ok {
		return nil
	}
	return &n
}

// boolPtrAt returns the boolean at path, or nil when absent
func boolPtrAt(p integration.Payload, path ...string) *bool {
	v, ok := lookup(p, path...).(bool)
	if !ok {
		return nil
	}
	return &v
}

// timeAt parses an RFC 3339 timestamp. Fractional seconds are accepted.
func timeAt(p integration.Payload, path ...string) *time.Time {
	s := stringAt(p, path...)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// unixAt parses a Unix timestamp in seconds. Zero is treated as absent.
func unixAt(p integration.Payload, path ...string) *time.Time {
	n, ok := intAt(p, path...)
	if !ok || n <= 0 {
		return nil
	}
	t := time.Unix(int64(n), 0).UTC()
	return &t
}

// objectAt returns the nested object at path
func objectAt(p integration.Payload, path ...string) integration.Payload {
	m, _ := asMap(lookup(p, path...))
	return m
}

// objectsAt returns the objects of the array at path, skipping other elements
func objectsAt(p integration.Payload, path ...string) []integration.Payload {
	arr, _ := lookup(p, path...).([]any)
	out := make([]integration.Payload, 0, len(arr))
	for _, el := range arr {
		if m, ok := asMap(el); ok {
			out = append(out, m)
		}
	}
	return out
}

// stringsAt returns the scalar elements of the array at path as strings
func stringsAt(p integration.Payload, path ...string) []string {
	arr, _ := lookup(p, path...).([]any)
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s := stringAt(integration.Payload{"v": el}, "v"); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstNonEmpty returns the first non-empty value
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseDecimal parses a decimal string, returning zero on malformed input
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// placeholderSKU identifies listings that carry no seller SKU
func placeholderSKU(m integration.Marketplace, externalID string) string {
	if externalID == "" {
		return ""
	}
	return strings.ToUpper(string(m)) + "-" + externalID
}
