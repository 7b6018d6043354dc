package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire constants of the platform basket API.
const (
	CommandUpdate  = "update"
	BasketTypeA    = "A0000"
	DeleteModeA    = "A"
	MinQuantity    = 1
	MinQuantityMsg = "minimum quantity is 1"
)

// LineItem is one product/option/quantity row in the cart as returned by the
// platform basket API. Position in the returned list is its only identity
// as far as the storefront is concerned.
type LineItem struct {
	ProductNo       int64  `json:"product_no"`
	OptionID        string `json:"option_id"`
	BasketProductNo int64  `json:"basket_product_no"`
	BasketPrdNo     int64  `json:"basket_prd_no,omitempty"`
	Quantity        int    `json:"quantity"`
	DeliveryType    string `json:"delvtype,omitempty"`
	SetProductNo    int64  `json:"set_product_no,omitempty"`
	ProductName     string `json:"product_name,omitempty"`
}

// ProductKey returns the composite key the basket API expects in prod_id0:
// productNo:optionId:setProductNo:deliveryType.
func (li LineItem) ProductKey() string {
	return fmt.Sprintf("%d:%s:%d:%s", li.ProductNo, li.OptionID, li.SetProductNo, li.DeliveryType)
}

// OptionKey identifies the product option of the row, independent of the
// basket it sits in.
func (li LineItem) OptionKey() string {
	return optionKey(li.ProductNo, li.OptionID)
}

// RowNo returns the basket row number sent with quantity updates. The platform
// exposes it as basket_prd_no on some skins and basket_product_no on others.
func (li LineItem) RowNo() int64 {
	if li.BasketPrdNo != 0 {
		return li.BasketPrdNo
	}
	return li.BasketProductNo
}

// DeleteTarget converts the line item into the triple used by bulk deletes.
func (li LineItem) DeleteTarget() DeleteTarget {
	return DeleteTarget{
		ProductNo:       li.ProductNo,
		OptionID:        li.OptionID,
		BasketProductNo: li.BasketProductNo,
	}
}

// UpdateRequest is the quantity update payload for a single basket row.
type UpdateRequest struct {
	Command      string `json:"command"`
	NumOfProd    int    `json:"num_of_prod"`
	ProdID0      string `json:"prod_id0"`
	Quantity0    int    `json:"quantity0"`
	BasketType   string `json:"basket_type"`
	DeliveryType string `json:"delvtype"`
	BasketPrdNo  int64  `json:"basket_prd_no"`
}

// NewQuantityUpdate builds the update payload that sets item's quantity.
func NewQuantityUpdate(item LineItem, quantity int) UpdateRequest {
	return UpdateRequest{
		Command:      CommandUpdate,
		NumOfProd:    1,
		ProdID0:      item.ProductKey(),
		Quantity0:    quantity,
		BasketType:   BasketTypeA,
		DeliveryType: item.DeliveryType,
		BasketPrdNo:  item.RowNo(),
	}
}

// DeleteTarget identifies one basket row in a bulk delete request.
type DeleteTarget struct {
	ProductNo       int64  `json:"product_no"`
	OptionID        string `json:"option_id"`
	BasketProductNo int64  `json:"basket_product_no"`
}

// Valid reports whether the target carries both a product and a basket row identifier.
func (d DeleteTarget) Valid() bool {
	return d.ProductNo != 0 && d.BasketProductNo != 0
}

// ProductData is display-only metadata for one basket row. Name, price and
// option text depend on the chosen option, so rows of the same product carry
// separate entries.
type ProductData struct {
	ProductNo       int64  `json:"product_no"`
	OptionID        string `json:"option_id,omitempty"`
	BasketProductNo int64  `json:"basket_product_no,omitempty"`
	ProductName     string `json:"product_name"`
	Price           string `json:"product_price"`
	OptionText      string `json:"option_text,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// OptionKey identifies the product option the metadata describes.
func (p ProductData) OptionKey() string {
	return optionKey(p.ProductNo, p.OptionID)
}

func optionKey(productNo int64, optionID string) string {
	return strconv.FormatInt(productNo, 10) + ":" + optionID
}

// PriceValue returns Price as a number, tolerating thousands separators.
func (p ProductData) PriceValue() float64 {
	return ParseNumber(p.Price)
}

// Cart is a snapshot of a session's view of the basket. Products is keyed by
// BasketProductNo.
type Cart struct {
	Items    []LineItem            `json:"items"`
	Count    int                   `json:"count"`
	Products map[int64]ProductData `json:"products,omitempty"`
}

// ParseNumber converts a display number such as "12,500" or "1,234.50" to a
// float. Unparseable input yields 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
