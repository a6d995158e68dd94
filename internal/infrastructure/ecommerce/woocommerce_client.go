package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Errors returned by the WooCommerce client
var (
	// ErrWooUnavailable marks transport failures and 429/5xx responses that
	// survived every retry. Callers may retry the whole fetch later.
	ErrWooUnavailable = errors.New("woocommerce: store unavailable")
	// ErrWooRequestFailed marks non-retryable 4xx responses
	ErrWooRequestFailed = errors.New("woocommerce: request failed")
)

// WooCommerceFeedSource builds a stock feed from the WooCommerce REST API:
// every published product, and for variable products every variation.
type WooCommerceFeedSource struct {
	config     WooCommerceConfig
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ inventory.FeedSource = (*WooCommerceFeedSource)(nil)

// NewWooCommerceFeedSource validates config and creates the client
func NewWooCommerceFeedSource(config WooCommerceConfig, logger *zap.Logger) (*WooCommerceFeedSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WooCommerceFeedSource{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("woocommerce"),
		sleep:      sleepContext,
	}, nil
}

// WithHTTPClient replaces the HTTP client (instrumented transports, tests)
func (s *WooCommerceFeedSource) WithHTTPClient(c *http.Client) *WooCommerceFeedSource {
	s.httpClient = c
	return s
}

// IsTransient reports whether a fetch error is worth retrying later
func IsTransient(err error) bool {
	return errors.Is(err, ErrWooUnavailable)
}

// FetchFeed downloads the full catalogue snapshot
func (s *WooCommerceFeedSource) FetchFeed(ctx context.Context) (*reconciliation.Feed, error) {
	start := time.Now()
	products, err := listAll[wooProduct](ctx, s, "/products", url.Values{"status": {"publish"}})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	feed := &reconciliation.Feed{Products: make([]reconciliation.FeedProduct, 0, len(products))}
	for i := range products {
		fp, err := s.feedProduct(ctx, &products[i])
		if err != nil {
			return nil, err
		}
		feed.Products = append(feed.Products, fp)
	}

	s.logger.Info("Fetched marketplace feed",
		zap.Int("products", len(feed.Products)),
		zap.Int("variants", feed.VariantCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return feed, nil
}

func (s *WooCommerceFeedSource) feedProduct(ctx context.Context, p *wooProduct) (reconciliation.FeedProduct, error) {
	fp := reconciliation.FeedProduct{
		MarketplaceID: strconv.FormatInt(p.ID, 10),
		Name:          p.Name,
	}
	if p.Type != "variable" {
		// Simple products carry stock on the product itself.
		fp.ReportedStock = stockQuantity(p.StockQuantity)
		fp.Variants = []reconciliation.FeedVariant{{
			SKU:         p.SKU,
			EAN:         reconciliation.ExtractEAN(barcodeCandidates(p.GlobalUniqueID, p.MetaData, p.SKU)...),
			DisplayText: p.Name,
		}}
		return fp, nil
	}

	// Parent-level stock only counts when the parent manages it.
	if p.ManageStock {
		fp.ReportedStock = stockQuantity(p.StockQuantity)
	}

	path := fmt.Sprintf("/products/%d/variations", p.ID)
	variations, err := listAll[wooVariation](ctx, s, path, nil)
	if err != nil {
		return fp, fmt.Errorf("list variations of product %d: %w", p.ID, err)
	}
	fp.Variants = make([]reconciliation.FeedVariant, 0, len(variations))
	for _, v := range variations {
		fp.Variants = append(fp.Variants, reconciliation.FeedVariant{
			MarketplaceID: strconv.FormatInt(v.ID, 10),
			SKU:           v.SKU,
			EAN:           reconciliation.ExtractEAN(barcodeCandidates(v.GlobalUniqueID, v.MetaData, v.SKU)...),
			DisplayText:   v.displayText(p.Name),
			ReportedStock: stockQuantity(v.StockQuantity),
		})
	}
	return fp, nil
}

func stockQuantity(q *float64) *decimal.Decimal {
	if q == nil {
		return nil
	}
	d := decimal.NewFromFloat(*q)
	return &d
}

// listAll walks every page of a collection endpoint using X-WP-TotalPages
func listAll[T any](ctx context.Context, s *WooCommerceFeedSource, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(s.config.PerPage))
		q.Set("page", strconv.Itoa(page))

		body, header, err := s.get(ctx, path, q)
		if err != nil {
			return nil, err
		}
		var batch []T
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("woocommerce: decode %s page %d: %w", path, page, err)
		}
		all = append(all, batch...)

		totalPages, _ := strconv.Atoi(header.Get("X-WP-TotalPages"))
		if len(batch) == 0 || (totalPages > 0 && page >= totalPages) || (totalPages == 0 && len(batch) < s.config.PerPage) {
			return all, nil
		}
	}
}

// get performs one GET with retries on 429, 5xx and transport errors
func (s *WooCommerceFeedSource) get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	endpoint := s.config.endpoint(path) + "?" + query.Encode()
	backoff := s.config.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("Retrying WooCommerce request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			if err := s.sleep(ctx, backoff); err != nil {
				return nil, nil, err
			}
			backoff *= 2
		}

		body, header, retry, err := s.do(ctx, endpoint)
		if err == nil {
			return body, header, nil
		}
		if !retry {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrWooUnavailable, lastErr)
}

func (s *WooCommerceFeedSource) do(ctx context.Context, endpoint string) ([]byte, http.Header, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("woocommerce: failed to create request: %w", err)
	}
	req.SetBasicAuth(s.config.ConsumerKey, s.config.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, false, ctx.Err()
		}
		return nil, nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWooResponseSize))
	if err != nil {
		return nil, nil, true, fmt.Errorf("woocommerce: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, nil, true, fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		var we wooError
		_ = json.Unmarshal(body, &we)
		return nil, nil, false, fmt.Errorf("%w: HTTP %d %s %s", ErrWooRequestFailed, resp.StatusCode, we.Code, we.Message)
	}
	return body, resp.Header, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
