package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationService reads inventory value from the stored cost layers.
// Layers are only written by StockLedger.
type ValuationService struct {
	repos         Repositories
	defaultMethod inventory.CostMethod
}

// NewValuationService creates a new ValuationService
func NewValuationService(repos Repositories, defaultMethod inventory.CostMethod) *ValuationService {
	if !defaultMethod.IsValid() {
		defaultMethod = inventory.CostMethodFIFO
	}
	return &ValuationService{repos: repos, defaultMethod: defaultMethod}
}

func (s *ValuationService) method(raw string) (inventory.CostMethod, error) {
	if raw == "" {
		return s.defaultMethod, nil
	}
	m := inventory.CostMethod(raw)
	if !m.IsValid() {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Unknown costing method "+raw)
	}
	return m, nil
}

// Valuation sums remaining cost over every layer of a method. It is computed
// on each call.
func (s *ValuationService) Valuation(ctx context.Context, companyID uuid.UUID, method string) (*ValuationResponse, error) {
	m, err := s.method(method)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Layers.SumRemainingCost(ctx, companyID, m)
	if err != nil {
		return nil, err
	}
	return &ValuationResponse{CompanyID: companyID, Method: string(m), Total: total}, nil
}

// ValuationByVariant returns the company total with a per-variant breakdown
func (s *ValuationService) ValuationByVariant(ctx context.Context, companyID uuid.UUID, method string) (*ValuationResponse, error) {
	m, err := s.method(method)
	if err != nil {
		return nil, err
	}
	rows, err := s.repos.Layers.SumByVariant(ctx, companyID, m)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.RemainingCost)
	}
	return &ValuationResponse{CompanyID: companyID, Method: string(m), Total: total, Variants: rows}, nil
}

// Layers lists cost layers in sequence order
func (s *ValuationService) Layers(ctx context.Context, companyID uuid.UUID, q LayerQuery) ([]LayerResponse, error) {
	filter := inventory.LayerFilter{
		VariantID:  q.VariantID,
		LocationID: q.LocationID,
		OnlyOpen:   q.OnlyOpen,
	}
	if q.Method != "" {
		m, err := s.method(q.Method)
		if err != nil {
			return nil, err
		}
		filter.Method = m
	}
	layers, err := s.repos.Layers.List(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]LayerResponse, len(layers))
	for i := range layers {
		out[i] = ToLayerResponse(&layers[i])
	}
	return out, nil
}

// Replay folds the ledger of a variant through fresh cost books and compares
// the result with the stored layers.
func (s *ValuationService) Replay(ctx context.Context, companyID, variantID uuid.UUID) (*ValuationReplayResponse, error) {
	variant, err := s.repos.Variants.FindByID(ctx, companyID, variantID)
	if err != nil {
		return nil, err
	}
	method := variant.EffectiveCostMethod(s.defaultMethod)

	movements, err := s.repos.Movements.ListForVariant(ctx, companyID, variantID)
	if err != nil {
		return nil, err
	}
	holds, err := locationHolds(ctx, s.repos.Locations, companyID, movements)
	if err != nil {
		return nil, err
	}
	books := inventory.ReplayValuation(method, companyID, movements, func(id uuid.UUID) bool { return holds[id] })

	resp := &ValuationReplayResponse{
		VariantID:       variantID,
		Method:          string(method),
		StoredQty:       decimal.Zero,
		StoredCost:      decimal.Zero,
		ReplayedQty:     decimal.Zero,
		ReplayedCost:    decimal.Zero,
		MovementsFolded: len(movements),
	}
	for _, b := range books {
		resp.ReplayedQty = resp.ReplayedQty.Add(b.RemainingQty())
		resp.ReplayedCost = resp.ReplayedCost.Add(b.RemainingCost())
	}

	vid := variantID
	layers, err := s.repos.Layers.List(ctx, companyID, inventory.LayerFilter{VariantID: &vid, Method: method})
	if err != nil {
		return nil, err
	}
	for i := range layers {
		resp.StoredQty = resp.StoredQty.Add(layers[i].RemainingQty)
		resp.StoredCost = resp.StoredCost.Add(layers[i].RemainingCost)
	}

	resp.Consistent = resp.StoredQty.Equal(resp.ReplayedQty) &&
		resp.StoredCost.Round(4).Equal(resp.ReplayedCost.Round(4))
	return resp, nil
}
