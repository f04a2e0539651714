package ecommerce

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordersync/backend/internal/domain/integration"
)

func TestPayloadAccessors(t *testing.T) {
	p := integration.Payload{
		"id":     json.Number("2000003508419013"),
		"price":  json.Number("39.90"),
		"float":  12.5,
		"name":   "  Caneca  ",
		"nested": map[string]any{"city": map[string]any{"name": "Campinas"}},
		"list":   []any{map[string]any{"a": 1}, "skip", map[string]any{"a": 2}},
		"ids":    []any{json.Number("1"), "MLB2", nil},
		"flag":   false,
		"sold":   json.Number("0"),
	}

	assert.Equal(t, "2000003508419013", stringAt(p, "id"))
	assert.Equal(t, "Caneca", stringAt(p, "name"))
	assert.Equal(t, "12.5", stringAt(p, "float"))
	assert.Equal(t, "Campinas", stringAt(p, "nested", "city", "name"))
	assert.Equal(t, "", stringAt(p, "name", "deeper"))
	assert.Equal(t, "39.9", decimalAt(p, "price").String())
	assert.True(t, decimalAt(p, "missing").IsZero())

	n, ok := intAt(p, "sold")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	_, ok = intAt(p, "missing")
	assert.False(t, ok)
	assert.Nil(t, intPtrAt(p, "missing"))

	flag := boolPtrAt(p, "flag")
	if assert.NotNil(t, flag) {
		assert.False(t, *flag)
	}
	assert.Len(t, objectsAt(p, "list"), 2)
	assert.Equal(t, []string{"1", "MLB2"}, stringsAt(p, "ids"))
	assert.Nil(t, timeAt(integration.Payload{"t": "yesterday"}, "t"))
	assert.Nil(t, unixAt(integration.Payload{"t": 0}, "t"))
}

func TestPlaceholderSKU(t *testing.T) {
	assert.Equal(t, "MERCADOLIVRE-MLB1", placeholderSKU(integration.MarketplaceMercadoLivre, "MLB1"))
	assert.Equal(t, "", placeholderSKU(integration.MarketplaceShopee, ""))
	assert.True(t, ParseDecimal("abc").IsZero())
}
