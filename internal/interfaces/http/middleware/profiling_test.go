package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfilingLabelsRequestContext(t *testing.T) {
	var route, company string

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(logger.GinCompanyIDKey, "company-9")
		c.Next()
	}, Profiling(true))
	r.GET("/api/v1/valuation", func(c *gin.Context) {
		route, _ = pprof.Label(c.Request.Context(), telemetry.LabelRoute)
		company, _ = pprof.Label(c.Request.Context(), telemetry.LabelCompanyID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/valuation", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/v1/valuation", route)
	assert.Equal(t, "company-9", company)
}
