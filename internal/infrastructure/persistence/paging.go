package persistence

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortable whitelists the columns a listing may be ordered by. Client input
// never reaches ORDER BY unless it names one of them.
type sortable map[string]struct{}

func columns(names ...string) sortable {
	s := make(sortable, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

var (
	balanceSort      = columns("variant_id", "on_hand_qty", "reserved_qty", "updated_at")
	countSessionSort = columns("opened_at", "closed_at", "status")
	alertSort        = columns("triggered_at", "current_value", "alert_type")
	ruleSort         = columns("created_at")
)

func (s sortable) pick(requested, fallback string) string {
	if _, ok := s[strings.TrimSpace(requested)]; ok {
		return strings.TrimSpace(requested)
	}
	return fallback
}

// descending reports whether dir asks for newest or largest first
func descending(dir string) bool {
	return strings.EqualFold(strings.TrimSpace(dir), "desc")
}

// pageQuery orders by the "sort_by" filter (or fallback) and applies paging
func pageQuery(query *gorm.DB, filter shared.Filter, allowed sortable, fallback string) *gorm.DB {
	f := filter.Normalize()
	sortBy, _ := f.Filters["sort_by"].(string)
	return query.
		Order(clause.OrderByColumn{
			Column: clause.Column{Name: allowed.pick(sortBy, fallback)},
			Desc:   descending(f.OrderDir),
		}).
		Offset(f.Offset()).
		Limit(f.PageSize)
}
