package inventory

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceKey identifies one balance scope. Untracked lot or container is uuid.Nil.
type BalanceKey struct {
	CompanyID   uuid.UUID
	LocationID  uuid.UUID
	VariantID   uuid.UUID
	LotID       uuid.UUID
	ContainerID uuid.UUID
}

// NewBalanceKey builds a key, mapping absent lot/container to uuid.Nil
func NewBalanceKey(companyID, locationID, variantID uuid.UUID, lotID, containerID *uuid.UUID) BalanceKey {
	key := BalanceKey{CompanyID: companyID, LocationID: locationID, VariantID: variantID}
	if lotID != nil {
		key.LotID = *lotID
	}
	if containerID != nil {
		key.ContainerID = *containerID
	}
	return key
}

// IsPrimary reports whether the key is the bare scope with no lot or container
func (k BalanceKey) IsPrimary() bool {
	return k.LotID == uuid.Nil && k.ContainerID == uuid.Nil
}

// String returns a stable textual form of the key
func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.CompanyID, k.LocationID, k.VariantID, k.LotID, k.ContainerID)
}

// Less orders keys deterministically. Row locks are taken in this order.
func (k BalanceKey) Less(other BalanceKey) bool {
	for _, pair := range [][2]uuid.UUID{
		{k.CompanyID, other.CompanyID},
		{k.LocationID, other.LocationID},
		{k.VariantID, other.VariantID},
		{k.LotID, other.LotID},
		{k.ContainerID, other.ContainerID},
	} {
		if c := bytes.Compare(pair[0][:], pair[1][:]); c != 0 {
			return c < 0
		}
	}
	return false
}

// SortBalanceKeys sorts keys in lock order and removes duplicates
func SortBalanceKeys(keys []BalanceKey) []BalanceKey {
	sorted := append([]BalanceKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	out := sorted[:0]
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}

// StockBalance is the derived on-hand quantity for one scope. It must always
// equal the signed sum of the ledger entries touching that scope.
type StockBalance struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_scope,priority:1"`
	LocationID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_scope,priority:2;index"`
	VariantID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_scope,priority:3;index"`
	LotID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_scope,priority:4"`
	ContainerID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_scope,priority:5"`
	OnHandQty   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReservedQty decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Version     int             `gorm:"not null;default:1"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockBalance) TableName() string {
	return "stock_balances"
}

// NewStockBalance creates a zero-initialized balance row for a scope
func NewStockBalance(key BalanceKey) *StockBalance {
	now := time.Now()
	return &StockBalance{
		ID:          uuid.New(),
		CompanyID:   key.CompanyID,
		LocationID:  key.LocationID,
		VariantID:   key.VariantID,
		LotID:       key.LotID,
		ContainerID: key.ContainerID,
		OnHandQty:   decimal.Zero,
		ReservedQty: decimal.Zero,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the scope of this balance row
func (b *StockBalance) Key() BalanceKey {
	return BalanceKey{
		CompanyID:   b.CompanyID,
		LocationID:  b.LocationID,
		VariantID:   b.VariantID,
		LotID:       b.LotID,
		ContainerID: b.ContainerID,
	}
}

// Available returns on-hand minus reserved. It is never stored.
func (b *StockBalance) Available() decimal.Decimal {
	return b.OnHandQty.Sub(b.ReservedQty)
}

// Apply adds a signed delta to on-hand. Going negative is allowed and
// reported through the returned warning.
func (b *StockBalance) Apply(delta decimal.Decimal) *NegativeBalanceWarning {
	before := b.OnHandQty
	b.OnHandQty = b.OnHandQty.Add(delta)
	b.Version++
	b.UpdatedAt = time.Now()
	if b.OnHandQty.IsNegative() {
		return &NegativeBalanceWarning{Key: b.Key(), Before: before, After: b.OnHandQty}
	}
	return nil
}

// NegativeBalanceWarning is a non-fatal signal that a scope went below zero
type NegativeBalanceWarning struct {
	Key    BalanceKey      `json:"-"`
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
}

// Code returns the warning code
func (w NegativeBalanceWarning) Code() string {
	return shared.CodeNegativeBalance
}

// Message returns a human readable description
func (w NegativeBalanceWarning) Message() string {
	return fmt.Sprintf("on-hand at location %s went negative: %s -> %s", w.Key.LocationID, w.Before, w.After)
}

// BalanceTotals sums balances of one variant at one location across lots and containers
type BalanceTotals struct {
	OnHandQty   decimal.Decimal
	ReservedQty decimal.Decimal
}

// Available returns on-hand minus reserved
func (t BalanceTotals) Available() decimal.Decimal {
	return t.OnHandQty.Sub(t.ReservedQty)
}

// SumBalances folds a set of balance rows into totals
func SumBalances(rows []StockBalance) BalanceTotals {
	totals := BalanceTotals{OnHandQty: decimal.Zero, ReservedQty: decimal.Zero}
	for i := range rows {
		totals.OnHandQty = totals.OnHandQty.Add(rows[i].OnHandQty)
		totals.ReservedQty = totals.ReservedQty.Add(rows[i].ReservedQty)
	}
	return totals
}

// ReplayDiscrepancy is a scope whose stored on-hand differs from the ledger sum
type ReplayDiscrepancy struct {
	Key      BalanceKey
	Stored   decimal.Decimal
	Replayed decimal.Decimal
}

// ReplayBalances folds movements (already in occurred order) into per-scope
// on-hand sums. Only scopes at stock-holding locations are included.
func ReplayBalances(movements []StockMovement, holdsStock func(uuid.UUID) bool) map[BalanceKey]decimal.Decimal {
	sums := make(map[BalanceKey]decimal.Decimal)
	for i := range movements {
		for _, eff := range movements[i].Effects() {
			if !holdsStock(eff.Key.LocationID) {
				continue
			}
			sums[eff.Key] = sums[eff.Key].Add(eff.Delta)
		}
	}
	return sums
}

// CompareReplay reports every scope where stored rows and replayed sums disagree
func CompareReplay(stored []StockBalance, replayed map[BalanceKey]decimal.Decimal) []ReplayDiscrepancy {
	seen := make(map[BalanceKey]bool, len(stored))
	var out []ReplayDiscrepancy
	for i := range stored {
		key := stored[i].Key()
		seen[key] = true
		want := replayed[key]
		if !stored[i].OnHandQty.Equal(want) {
			out = append(out, ReplayDiscrepancy{Key: key, Stored: stored[i].OnHandQty, Replayed: want})
		}
	}
	for key, sum := range replayed {
		if !seen[key] && !sum.IsZero() {
			out = append(out, ReplayDiscrepancy{Key: key, Stored: decimal.Zero, Replayed: sum})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
