package ecommerce

import (
	"encoding/json"
	"strings"
)

// wooMeta is one entry of a product's meta_data list. Values are arbitrary JSON.
type wooMeta struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// stringValue returns the value when it is a JSON string or number
func (m wooMeta) stringValue() string {
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(m.Value, &n); err == nil {
		return n.String()
	}
	return ""
}

type wooAttribute struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// wooProduct is the subset of /products fields the feed needs
type wooProduct struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	SKU            string    `json:"sku"`
	GlobalUniqueID string    `json:"global_unique_id"`
	ManageStock    bool      `json:"manage_stock"`
	StockQuantity  *float64  `json:"stock_quantity"`
	Variations     []int64   `json:"variations"`
	MetaData       []wooMeta `json:"meta_data"`
}

// wooVariation is the subset of /products/{id}/variations fields the feed needs
type wooVariation struct {
	ID             int64           `json:"id"`
	SKU            string          `json:"sku"`
	GlobalUniqueID string          `json:"global_unique_id"`
	ManageStock    json.RawMessage `json:"manage_stock"` // true, false or "parent"
	StockQuantity  *float64        `json:"stock_quantity"`
	Attributes     []wooAttribute  `json:"attributes"`
	MetaData       []wooMeta       `json:"meta_data"`
}

// wooError is the body WooCommerce returns with 4xx/5xx responses
type wooError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// barcodeMetaKeys are meta keys common barcode plugins write, in precedence order
var barcodeMetaKeys = []string{"_global_unique_id", "_barcode", "barcode", "_ean", "ean", "_alg_ean", "_wpm_gtin_code", "_gtin"}

func barcodeCandidates(globalUniqueID string, meta []wooMeta, sku string) []string {
	candidates := make([]string, 0, len(barcodeMetaKeys)+2)
	candidates = append(candidates, globalUniqueID)
	for _, key := range barcodeMetaKeys {
		for _, m := range meta {
			if strings.EqualFold(m.Key, key) {
				candidates = append(candidates, m.stringValue())
			}
		}
	}
	return append(candidates, sku)
}

// displayText joins the option values so pack sizes like "6-pack" stay visible
func (v wooVariation) displayText(productName string) string {
	if len(v.Attributes) == 0 {
		return productName
	}
	opts := make([]string, 0, len(v.Attributes))
	for _, a := range v.Attributes {
		if a.Option != "" {
			opts = append(opts, a.Option)
		}
	}
	if len(opts) == 0 {
		return productName
	}
	return productName + " - " + strings.Join(opts, ", ")
}
