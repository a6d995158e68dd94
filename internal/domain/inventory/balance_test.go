package inventory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockBalance_Apply(t *testing.T) {
	key := NewBalanceKey(uuid.New(), uuid.New(), uuid.New(), nil, nil)
	b := NewStockBalance(key)

	assert.Nil(t, b.Apply(decimal.NewFromInt(10)))
	assert.True(t, b.OnHandQty.Equal(decimal.NewFromInt(10)))

	b.ReservedQty = decimal.NewFromInt(4)
	assert.True(t, b.Available().Equal(decimal.NewFromInt(6)))

	warn := b.Apply(decimal.NewFromInt(-12))
	require.NotNil(t, warn)
	assert.Equal(t, "NEGATIVE_BALANCE", warn.Code())
	assert.True(t, warn.After.Equal(decimal.NewFromInt(-2)))
	assert.True(t, b.OnHandQty.Equal(decimal.NewFromInt(-2)))
}

func TestSortBalanceKeys(t *testing.T) {
	company := uuid.New()
	variant := uuid.New()
	a := NewBalanceKey(company, uuid.MustParse("00000000-0000-0000-0000-000000000002"), variant, nil, nil)
	b := NewBalanceKey(company, uuid.MustParse("00000000-0000-0000-0000-000000000001"), variant, nil, nil)

	sorted := SortBalanceKeys([]BalanceKey{a, b, a})

	require.Len(t, sorted, 2)
	assert.Equal(t, b, sorted[0])
	assert.Equal(t, a, sorted[1])
}

func TestReplayBalances_MatchesStoredRows(t *testing.T) {
	company, variant := uuid.New(), uuid.New()
	internal, bin, customer := uuid.New(), uuid.New(), uuid.New()
	holds := func(id uuid.UUID) bool { return id != customer }

	mk := func(d MovementDraft) StockMovement {
		d.CompanyID, d.VariantID, d.ActorID = company, variant, uuid.New()
		m, err := NewStockMovement(d)
		require.NoError(t, err)
		return *m
	}
	movements := []StockMovement{
		mk(MovementDraft{Type: MovementTypeInbound, DestLocationID: ptr(internal), Quantity: decimal.NewFromInt(10)}),
		mk(MovementDraft{Type: MovementTypeTransfer, SourceLocationID: ptr(internal), DestLocationID: ptr(bin), Quantity: decimal.NewFromInt(4)}),
		mk(MovementDraft{Type: MovementTypeTransfer, SourceLocationID: ptr(bin), DestLocationID: ptr(customer), Quantity: decimal.NewFromInt(1)}),
	}

	replayed := ReplayBalances(movements, holds)

	rows := []StockBalance{*NewStockBalance(NewBalanceKey(company, internal, variant, nil, nil)), *NewStockBalance(NewBalanceKey(company, bin, variant, nil, nil))}
	rows[0].OnHandQty = decimal.NewFromInt(6)
	rows[1].OnHandQty = decimal.NewFromInt(3)

	assert.Empty(t, CompareReplay(rows, replayed))
	_, hasCustomer := replayed[NewBalanceKey(company, customer, variant, nil, nil)]
	assert.False(t, hasCustomer)

	rows[1].OnHandQty = decimal.NewFromInt(5)
	diffs := CompareReplay(rows, replayed)
	require.Len(t, diffs, 1)
	assert.Equal(t, bin, diffs[0].Key.LocationID)
	assert.True(t, diffs[0].Replayed.Equal(decimal.NewFromInt(3)))
}

func TestSumBalances(t *testing.T) {
	rows := []StockBalance{
		{OnHandQty: decimal.NewFromInt(5), ReservedQty: decimal.NewFromInt(1)},
		{OnHandQty: decimal.NewFromInt(2), ReservedQty: decimal.Zero},
	}
	totals := SumBalances(rows)
	assert.True(t, totals.OnHandQty.Equal(decimal.NewFromInt(7)))
	assert.True(t, totals.Available().Equal(decimal.NewFromInt(6)))
}
