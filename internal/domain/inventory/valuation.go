package inventory

import (
	"slices"
	"sort"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// wacPrecision is the number of decimal places kept on a weighted average unit cost
const wacPrecision = 6

// ValuationLayer is a cost-tracking record for one (variant, location, method).
// FIFO keeps one layer per receipt; WAC keeps a single rolling layer.
type ValuationLayer struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_valuation_layer_seq,priority:1"`
	VariantID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_valuation_layer_seq,priority:2"`
	LocationID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_valuation_layer_seq,priority:3"`
	Method        CostMethod      `gorm:"type:varchar(10);not null;uniqueIndex:idx_valuation_layer_seq,priority:4"`
	Sequence      int64           `gorm:"not null;uniqueIndex:idx_valuation_layer_seq,priority:5"`
	MovementID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	QtyIn         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	QtyOut        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingQty  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ValuationLayer) TableName() string {
	return "valuation_layers"
}

// IsExhausted returns true if nothing remains in the layer
func (l *ValuationLayer) IsExhausted() bool {
	return !l.RemainingQty.IsPositive()
}

// LayerConsumption is the part of one layer an issue consumed
type LayerConsumption struct {
	LayerID  uuid.UUID
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

// IssueResult describes the cost of an outbound quantity.
// When layers cannot cover the request the uncovered part is zero-floored:
// Insufficient is set and Shortfall holds the uncovered quantity.
type IssueResult struct {
	Requested    decimal.Decimal
	Covered      decimal.Decimal
	Shortfall    decimal.Decimal
	Cost         decimal.Decimal
	Consumed     []LayerConsumption
	Insufficient bool
}

// AverageUnitCost returns cost per covered unit, zero when nothing was covered
func (r IssueResult) AverageUnitCost() decimal.Decimal {
	if r.Covered.IsZero() {
		return decimal.Zero
	}
	return r.Cost.Div(r.Covered).Round(wacPrecision)
}

// InsufficientLayersFlag is surfaced to callers when an issue was zero-floored
type InsufficientLayersFlag struct {
	VariantID  uuid.UUID       `json:"variant_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Method     CostMethod      `json:"method"`
	Shortfall  decimal.Decimal `json:"shortfall"`
}

// Code returns the flag code
func (f InsufficientLayersFlag) Code() string {
	return shared.CodeInsufficientLayers
}

// CostBook holds the layers of one (company, variant, location, method) and
// applies receipts and issues to them in memory. Callers load the layers under
// a row lock and persist NewLayers and TouchedLayers in the same transaction.
type CostBook struct {
	companyID  uuid.UUID
	variantID  uuid.UUID
	locationID uuid.UUID
	method     CostMethod
	layers     []*ValuationLayer
	nextSeq    int64
	created    map[uuid.UUID]bool
	touched    map[uuid.UUID]bool
}

// NewCostBook builds a cost book over existing layers, ordered by sequence
func NewCostBook(method CostMethod, companyID, variantID, locationID uuid.UUID, layers []*ValuationLayer) *CostBook {
	sorted := append([]*ValuationLayer(nil), layers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var next int64 = 1
	if n := len(sorted); n > 0 {
		next = sorted[n-1].Sequence + 1
	}
	return &CostBook{
		companyID:  companyID,
		variantID:  variantID,
		locationID: locationID,
		method:     method,
		layers:     sorted,
		nextSeq:    next,
		created:    make(map[uuid.UUID]bool),
		touched:    make(map[uuid.UUID]bool),
	}
}

// Method returns the costing method of the book
func (b *CostBook) Method() CostMethod {
	return b.method
}

// Layers returns all layers in sequence order
func (b *CostBook) Layers() []*ValuationLayer {
	return b.layers
}

// Receive books an inbound quantity at unitCost and returns the affected layer.
func (b *CostBook) Receive(movementID uuid.UUID, qty, unitCost decimal.Decimal) (*ValuationLayer, error) {
	if !qty.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Received quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unit cost cannot be negative")
	}

	if b.method == CostMethodWAC {
		return b.receiveWAC(movementID, qty, unitCost), nil
	}
	return b.appendLayer(movementID, qty, unitCost), nil
}

func (b *CostBook) receiveWAC(movementID uuid.UUID, qty, unitCost decimal.Decimal) *ValuationLayer {
	if len(b.layers) == 0 {
		return b.appendLayer(movementID, qty, unitCost)
	}
	layer := b.layers[len(b.layers)-1]
	inCost := qty.Mul(unitCost)
	newQty := layer.RemainingQty.Add(qty)
	newCost := layer.RemainingCost.Add(inCost)

	layer.QtyIn = layer.QtyIn.Add(qty)
	layer.TotalCost = layer.TotalCost.Add(inCost)
	layer.RemainingQty = newQty
	layer.RemainingCost = newCost
	if newQty.IsPositive() {
		layer.UnitCost = newCost.Div(newQty).Round(wacPrecision)
	} else {
		layer.UnitCost = unitCost
	}
	layer.MovementID = movementID
	b.touch(layer)
	return layer
}

func (b *CostBook) appendLayer(movementID uuid.UUID, qty, unitCost decimal.Decimal) *ValuationLayer {
	now := time.Now()
	total := qty.Mul(unitCost)
	layer := &ValuationLayer{
		ID:            uuid.New(),
		CompanyID:     b.companyID,
		VariantID:     b.variantID,
		LocationID:    b.locationID,
		Method:        b.method,
		Sequence:      b.nextSeq,
		MovementID:    movementID,
		QtyIn:         qty,
		QtyOut:        decimal.Zero,
		UnitCost:      unitCost,
		TotalCost:     total,
		RemainingQty:  qty,
		RemainingCost: total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.nextSeq++
	b.layers = append(b.layers, layer)
	b.created[layer.ID] = true
	return layer
}

// Issue consumes qty from the book. FIFO depletes the oldest non-exhausted
// layers first; WAC reduces the rolling layer at its current unit cost.
func (b *CostBook) Issue(qty decimal.Decimal) (IssueResult, error) {
	if !qty.IsPositive() {
		return IssueResult{}, shared.NewDomainError(shared.CodeInvalidInput, "Issued quantity must be positive")
	}

	result := IssueResult{Requested: qty, Covered: decimal.Zero, Cost: decimal.Zero}
	need := qty
	for _, layer := range b.layers {
		if need.IsZero() {
			break
		}
		if layer.IsExhausted() {
			continue
		}
		take := decimal.Min(need, layer.RemainingQty)
		cost := take.Mul(layer.UnitCost)

		layer.QtyOut = layer.QtyOut.Add(take)
		layer.RemainingQty = layer.RemainingQty.Sub(take)
		if layer.RemainingQty.IsZero() {
			layer.RemainingCost = decimal.Zero
		} else {
			layer.RemainingCost = layer.RemainingCost.Sub(cost)
		}
		b.touch(layer)

		result.Consumed = append(result.Consumed, LayerConsumption{
			LayerID:  layer.ID,
			Quantity: take,
			UnitCost: layer.UnitCost,
			Cost:     cost,
		})
		result.Covered = result.Covered.Add(take)
		result.Cost = result.Cost.Add(cost)
		need = need.Sub(take)
	}

	result.Shortfall = need
	result.Insufficient = need.IsPositive()
	return result, nil
}

// CurrentUnitCost is the WAC of the rolling layer, or for FIFO the unit cost
// of the most recent receipt. Zero when the book is empty.
func (b *CostBook) CurrentUnitCost() decimal.Decimal {
	if len(b.layers) == 0 {
		return decimal.Zero
	}
	return b.layers[len(b.layers)-1].UnitCost
}

// RemainingQty sums remaining quantity across layers
func (b *CostBook) RemainingQty() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.layers {
		total = total.Add(l.RemainingQty)
	}
	return total
}

// RemainingCost sums remaining cost across layers. This is the valuation of
// the scope under the book's method.
func (b *CostBook) RemainingCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.layers {
		total = total.Add(l.RemainingCost)
	}
	return total
}

// NewLayers returns layers created since the book was loaded
func (b *CostBook) NewLayers() []*ValuationLayer {
	var out []*ValuationLayer
	for _, l := range b.layers {
		if b.created[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

// TouchedLayers returns pre-existing layers modified since the book was loaded
func (b *CostBook) TouchedLayers() []*ValuationLayer {
	var out []*ValuationLayer
	for _, l := range b.layers {
		if b.touched[l.ID] && !b.created[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func (b *CostBook) touch(layer *ValuationLayer) {
	layer.UpdatedAt = time.Now()
	b.touched[layer.ID] = true
}

// ValuationKey identifies a cost book
type ValuationKey struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
}

// ReplayValuation folds movements through fresh cost books in recorded
// order, the order live books consumed their layers, whatever order the
// slice arrives in. A backdated occurred_at does not move a receipt ahead in
// the FIFO queue. Movements at locations that do not hold stock are skipped
// on that side.
func ReplayValuation(method CostMethod, companyID uuid.UUID, movements []StockMovement, holdsStock func(uuid.UUID) bool) map[ValuationKey]*CostBook {
	movements = slices.Clone(movements)
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].RecordedAt.Before(movements[j].RecordedAt)
	})
	books := make(map[ValuationKey]*CostBook)
	book := func(variantID, locationID uuid.UUID) *CostBook {
		key := ValuationKey{VariantID: variantID, LocationID: locationID}
		if b, ok := books[key]; ok {
			return b
		}
		b := NewCostBook(method, companyID, variantID, locationID, nil)
		books[key] = b
		return b
	}

	for i := range movements {
		m := &movements[i]
		var issuedUnitCost *decimal.Decimal
		for _, eff := range m.Effects() {
			if !holdsStock(eff.Key.LocationID) || !eff.Delta.IsNegative() {
				continue
			}
			res, _ := book(m.VariantID, eff.Key.LocationID).Issue(eff.Delta.Abs())
			avg := res.AverageUnitCost()
			issuedUnitCost = &avg
		}
		for _, eff := range m.Effects() {
			if !holdsStock(eff.Key.LocationID) || !eff.Delta.IsPositive() {
				continue
			}
			b := book(m.VariantID, eff.Key.LocationID)
			_, _ = b.Receive(m.ID, eff.Delta, ReceiptUnitCost(m, issuedUnitCost, b))
		}
	}
	return books
}

// ReceiptUnitCost picks the unit cost for a positive effect: an explicit
// movement cost, then the cost issued at the other side of a transfer, then
// the book's current unit cost.
func ReceiptUnitCost(m *StockMovement, issuedUnitCost *decimal.Decimal, book *CostBook) decimal.Decimal {
	if m.UnitCost != nil {
		return *m.UnitCost
	}
	if issuedUnitCost != nil {
		return *issuedUnitCost
	}
	return book.CurrentUnitCost()
}
