package persistence

import (
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestSortable_Pick(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"whitelisted", "on_hand_qty", "on_hand_qty"},
		{"trimmed", "  updated_at ", "updated_at"},
		{"empty falls back", "", "variant_id"},
		{"unknown falls back", "company_id", "variant_id"},
		{"injection falls back", "variant_id; DROP TABLE stock_balances;--", "variant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, balanceSort.pick(tt.requested, "variant_id"))
		})
	}
}

func TestDescending(t *testing.T) {
	assert.True(t, descending("desc"))
	assert.True(t, descending(" DESC "))
	assert.False(t, descending("asc"))
	assert.False(t, descending(""))
	assert.False(t, descending("sideways"))
}

func TestPageQuery_SQL(t *testing.T) {
	db, _, _ := setupMockDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []map[string]any
		q := tx.Table("stock_alerts")
		return pageQuery(q, shared.Filter{
			Page:     3,
			PageSize: 20,
			OrderDir: "desc",
			Filters:  map[string]any{"sort_by": "current_value"},
		}, alertSort, "triggered_at").Find(&rows)
	})

	assert.Contains(t, sql, `ORDER BY "current_value" DESC`)
	assert.Contains(t, sql, "LIMIT 20 OFFSET 40")
}
