package reconciliation

import "github.com/shopspring/decimal"

// DesiredQuantity is the stock a variant should show internally
type DesiredQuantity struct {
	Variant  FeedVariant
	PackSize int
	// PackKnown is false when no pack size could be parsed
	PackKnown bool
	Desired   decimal.Decimal
	// Collapsed is true when the variant is a non-carrier in a multi-pack group
	Collapsed bool
}

// ProductPlan is the collapse outcome for one product group
type ProductPlan struct {
	Product   FeedProduct
	Multipack bool
	Variants  []DesiredQuantity
}

// StockSource picks the reported quantity for a variant:
//  1. the variant's own reported stock when non-zero;
//  2. otherwise the product-level stock when the variant has no marketplace id;
//  3. otherwise the variant's own value (zero).
func StockSource(product FeedProduct, variant FeedVariant) decimal.Decimal {
	own := variant.Stock()
	if !own.IsZero() {
		return own
	}
	if variant.MarketplaceID == "" {
		return product.Stock()
	}
	return own
}

// ComputeDesired applies the multi-pack collapse rule. When a group holds a
// 1-pack and at least one N>1 pack, the first 1-pack carries all physical
// stock and every other variant (any other pack size, or unknown) is zero.
// Otherwise each variant gets its own stock source.
func ComputeDesired(product FeedProduct) ProductPlan {
	plan := ProductPlan{Product: product, Variants: make([]DesiredQuantity, len(product.Variants))}

	carrier := -1
	hasMulti := false
	for i, v := range product.Variants {
		size, ok := ParsePackSize(v.DisplayText)
		plan.Variants[i] = DesiredQuantity{Variant: v, PackSize: size, PackKnown: ok}
		if ok && size == 1 && carrier < 0 {
			carrier = i
		}
		if ok && size > 1 {
			hasMulti = true
		}
	}

	if carrier >= 0 && hasMulti {
		plan.Multipack = true
		for i := range plan.Variants {
			if i == carrier {
				plan.Variants[i].Desired = StockSource(product, plan.Variants[i].Variant)
				continue
			}
			plan.Variants[i].Desired = decimal.Zero
			plan.Variants[i].Collapsed = true
		}
		return plan
	}

	for i := range plan.Variants {
		plan.Variants[i].Desired = StockSource(product, plan.Variants[i].Variant)
	}
	return plan
}
