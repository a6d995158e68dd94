package reconciliation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// FeedVariant is one marketplace-reported variant
type FeedVariant struct {
	// MarketplaceID is empty when the marketplace does not track the variant
	// on its own (simple products carry stock on the product only).
	MarketplaceID string           `json:"marketplace_id,omitempty"`
	SKU           string           `json:"sku,omitempty"`
	EAN           string           `json:"ean,omitempty"`
	DisplayText   string           `json:"display_text"`
	ReportedStock *decimal.Decimal `json:"reported_stock,omitempty"`
}

// Stock returns the reported stock, treating "not reported" as zero
func (v FeedVariant) Stock() decimal.Decimal {
	if v.ReportedStock == nil {
		return decimal.Zero
	}
	return *v.ReportedStock
}

// FeedProduct groups the variants of one parent product
type FeedProduct struct {
	MarketplaceID string           `json:"marketplace_id,omitempty"`
	Name          string           `json:"name"`
	ReportedStock *decimal.Decimal `json:"reported_stock,omitempty"`
	Variants      []FeedVariant    `json:"variants"`
}

// Stock returns the product-level reported stock, zero when absent
func (p FeedProduct) Stock() decimal.Decimal {
	if p.ReportedStock == nil {
		return decimal.Zero
	}
	return *p.ReportedStock
}

// Feed is a read-only snapshot of marketplace stock grouped by parent product
type Feed struct {
	Products []FeedProduct `json:"products"`
}

// VariantCount returns the number of variants across all products
func (f Feed) VariantCount() int {
	n := 0
	for _, p := range f.Products {
		n += len(p.Variants)
	}
	return n
}

// Hash fingerprints the feed contents. Identical snapshots hash identically.
func (f Feed) Hash() string {
	payload, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ExtractEAN returns the first candidate that is a valid GTIN-8/12/13/14,
// in the order given. Callers pass candidates by precedence: dedicated
// barcode field, then barcode-like metadata, then the SKU.
func ExtractEAN(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if IsValidGTIN(c) {
			return c
		}
	}
	return ""
}

// IsValidGTIN checks length, digits and the GS1 mod-10 check digit
func IsValidGTIN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	sum := 0
	// weights alternate 3,1 starting from the digit left of the check digit
	for i := len(code) - 2; i >= 0; i-- {
		ch := code[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if (len(code)-2-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	last := code[len(code)-1]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}
