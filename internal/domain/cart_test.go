package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItem_ProductKey(t *testing.T) {
	item := LineItem{ProductNo: 12, OptionID: "000A", SetProductNo: 0, DeliveryType: ""}
	assert.Equal(t, "12:000A:0:", item.ProductKey())

	item = LineItem{ProductNo: 7, OptionID: "P00B", SetProductNo: 31, DeliveryType: "A"}
	assert.Equal(t, "7:P00B:31:A", item.ProductKey())
}

func TestLineItem_RowNo(t *testing.T) {
	assert.Equal(t, int64(99), LineItem{BasketProductNo: 5, BasketPrdNo: 99}.RowNo())
	assert.Equal(t, int64(5), LineItem{BasketProductNo: 5}.RowNo())
}

func TestNewQuantityUpdate_WireShape(t *testing.T) {
	item := LineItem{
		ProductNo:       12,
		OptionID:        "000A",
		BasketProductNo: 400,
		BasketPrdNo:     401,
		DeliveryType:    "A",
	}

	data, err := json.Marshal(NewQuantityUpdate(item, 4))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, map[string]any{
		"command":       "update",
		"num_of_prod":   float64(1),
		"prod_id0":      "12:000A:0:A",
		"quantity0":     float64(4),
		"basket_type":   "A0000",
		"delvtype":      "A",
		"basket_prd_no": float64(401),
	}, got)
}

func TestNewQuantityUpdate_EmptyDeliveryTypeIsSent(t *testing.T) {
	data, err := json.Marshal(NewQuantityUpdate(LineItem{ProductNo: 1, BasketProductNo: 2}, 1))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"delvtype":""`)
}

func TestDeleteTarget_Valid(t *testing.T) {
	assert.True(t, DeleteTarget{ProductNo: 1, BasketProductNo: 2}.Valid())
	assert.False(t, DeleteTarget{ProductNo: 1}.Valid())
	assert.False(t, DeleteTarget{BasketProductNo: 2}.Valid())
}

func TestLineItem_DeleteTarget(t *testing.T) {
	item := LineItem{ProductNo: 3, OptionID: "000B", BasketProductNo: 8, Quantity: 2}
	assert.Equal(t, DeleteTarget{ProductNo: 3, OptionID: "000B", BasketProductNo: 8}, item.DeleteTarget())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12,500", 12500},
		{"1,234.50", 1234.5},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNumber(tt.in))
		})
	}
}

func TestProductData_PriceValue(t *testing.T) {
	assert.Equal(t, float64(19900), ProductData{Price: "19,900"}.PriceValue())
}
